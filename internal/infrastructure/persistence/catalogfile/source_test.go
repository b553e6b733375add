package catalogfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
)

const sample = `
courses:
  - id: bb
    title: Business Blueprint
    track: foundation
    modules:
      - id: bb-1
        title: Basics
        lessons:
          - { id: bb-1-1, title: Welcome, duration_minutes: 5 }
          - { id: bb-1-2, title: Goals }
  - id: tm
    title: Traffic Mastery
    track: advanced
    modules:
      - id: tm-1
        title: Ads
        lessons:
          - { id: tm-1-1, title: Paid Ads }
`

func TestParse(t *testing.T) {
	cat, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, cat, 2)
	assert.Equal(t, course.TrackAdvanced, cat[1].Track)
	assert.Equal(t, 2, cat[0].TotalLessons())
	assert.Equal(t, 5, cat[0].Modules[0].Lessons[0].DurationMinutes)
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":    "courses:\n  - id: a\n    title: A\n    colour: red\n",
		"duplicate lesson": "courses:\n  - id: a\n    title: A\n    modules:\n      - id: m\n        lessons: [{id: x}, {id: x}]\n",
		"not yaml":         "courses: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestSource_FetchCourses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cat, err := NewSource(path).FetchCourses(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat, 2)

	_, err = NewSource(filepath.Join(dir, "missing.yaml")).FetchCourses(context.Background())
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
}

func TestShippedCatalogIsValid(t *testing.T) {
	cat, err := NewSource(filepath.Join("..", "..", "..", "..", "configs", "catalog.yaml")).FetchCourses(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, cat)
}
