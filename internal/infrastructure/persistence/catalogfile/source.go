// Package catalogfile serves the course catalog from a YAML document.
package catalogfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
)

type document struct {
	Courses course.Catalog `yaml:"courses"`
}

// Source reads the catalog file on every fetch, so edits are picked up once
// the in-process cache expires.
type Source struct {
	path string
}

// NewSource creates a Source for path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// FetchCourses implements course.Source.
func (s *Source) FetchCourses(ctx context.Context) (course.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, shared.WrapError("catalog", "Fetch", shared.ErrServiceUnavailable, "course catalog is unavailable", err)
		}
		return nil, fmt.Errorf("read catalog %s: %w", s.path, err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes and validates a catalog document with a top-level "courses" list.
func Parse(r io.Reader) (course.Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, shared.WrapError("catalog", "Parse", shared.ErrInvalidFormat, "invalid catalog document", err)
	}
	if err := doc.Courses.Validate(); err != nil {
		return nil, err
	}
	return doc.Courses, nil
}
