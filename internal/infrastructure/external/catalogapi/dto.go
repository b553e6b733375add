package catalogapi

import (
	"strings"

	"github.com/learnpath/academy-hub/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the envelope of every catalog API response.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// APIErrorDTO is the body of a 4xx/5xx response.
type APIErrorDTO struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIErrorDTO) Error() string {
	if e.Code != "" {
		return "catalog api: " + e.Code + ": " + e.Message
	}
	return "catalog api: " + e.Message
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// CourseDTO is a course as served by the API.
type CourseDTO struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Track       string      `json:"track,omitempty"`
	Modules     []ModuleDTO `json:"modules"`
}

// ModuleDTO is a module as served by the API.
type ModuleDTO struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Lessons []LessonDTO `json:"lessons"`
}

// LessonDTO is a lesson as served by the API.
// IsCompleted is a legacy per-user flag. Completion is tracked locally, so it is
// decoded but never mapped.
type LessonDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Duration    int    `json:"duration,omitempty"`
	IsCompleted bool   `json:"isCompleted,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// ToCatalog converts API courses to the domain catalog.
func ToCatalog(dtos []CourseDTO) course.Catalog {
	out := make(course.Catalog, 0, len(dtos))
	for _, d := range dtos {
		c := course.Course{
			ID:          strings.TrimSpace(d.ID),
			Title:       d.Title,
			Description: d.Description,
			Track:       course.Track(strings.ToLower(strings.TrimSpace(d.Track))),
			Modules:     make([]course.Module, 0, len(d.Modules)),
		}
		for _, m := range d.Modules {
			mod := course.Module{ID: m.ID, Title: m.Title, Lessons: make([]course.Lesson, 0, len(m.Lessons))}
			for _, l := range m.Lessons {
				mod.Lessons = append(mod.Lessons, course.Lesson{
					ID:              strings.TrimSpace(l.ID),
					Title:           l.Title,
					DurationMinutes: l.Duration,
				})
			}
			c.Modules = append(c.Modules, mod)
		}
		out = append(out, c)
	}
	return out
}
