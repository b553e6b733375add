package course

import (
	"context"
	"fmt"

	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// Catalog is the ordered list of courses as served by a Source.
type Catalog []Course

// Source loads the catalog. Implementations live in infrastructure.
type Source interface {
	FetchCourses(ctx context.Context) (Catalog, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Catalog, error)

func (f SourceFunc) FetchCourses(ctx context.Context) (Catalog, error) { return f(ctx) }

// Find returns the course with the given id.
func (c Catalog) Find(courseID string) (Course, bool) {
	for _, co := range c {
		if co.ID == courseID {
			return co, true
		}
	}
	return Course{}, false
}

// LessonCount is the number of lessons across every course.
func (c Catalog) LessonCount() int {
	n := 0
	for _, co := range c {
		n += co.TotalLessons()
	}
	return n
}

// LessonLocation points at a lesson inside the catalog.
type LessonLocation struct {
	Course Course
	Module Module
	Lesson Lesson
}

// FindLesson locates a lesson by id.
func (c Catalog) FindLesson(lessonID string) (LessonLocation, bool) {
	for _, co := range c {
		for _, m := range co.Modules {
			for _, l := range m.Lessons {
				if l.ID == lessonID {
					return LessonLocation{Course: co, Module: m, Lesson: l}, true
				}
			}
		}
	}
	return LessonLocation{}, false
}

// Validate checks every course and that course and lesson ids are unique.
func (c Catalog) Validate() error {
	courses := make(map[string]struct{}, len(c))
	lessons := make(map[string]string)
	for _, co := range c {
		if err := co.Validate(); err != nil {
			return err
		}
		if _, dup := courses[co.ID]; dup {
			return shared.WrapError("catalog", "Validate", shared.ErrAlreadyExists, "duplicate course id", fmt.Errorf("%q", co.ID))
		}
		courses[co.ID] = struct{}{}
		for _, id := range co.LessonIDs() {
			if owner, dup := lessons[id]; dup {
				return shared.WrapError("catalog", "Validate", shared.ErrAlreadyExists, "duplicate lesson id",
					fmt.Errorf("%q in %s and %s", id, owner, co.ID))
			}
			lessons[id] = co.ID
		}
	}
	return nil
}

// Clone returns a deep copy so cached catalogs are never mutated by callers.
func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	out := make(Catalog, len(c))
	for i, co := range c {
		cp := co
		cp.Modules = make([]Module, len(co.Modules))
		for j, m := range co.Modules {
			mm := m
			mm.Lessons = append([]Lesson(nil), m.Lessons...)
			cp.Modules[j] = mm
		}
		out[i] = cp
	}
	return out
}
