package course

import (
	"fmt"

	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// Track groups courses for continuation ordering.
type Track string

const (
	TrackFoundation Track = "foundation"
	TrackAdvanced   Track = "advanced"
)

// IsValid reports whether t is a known track. Empty means foundation.
func (t Track) IsValid() bool {
	return t == "" || t == TrackFoundation || t == TrackAdvanced
}

// Lesson is a single playable unit.
type Lesson struct {
	ID              string `json:"id" yaml:"id"`
	Title           string `json:"title" yaml:"title"`
	DurationMinutes int    `json:"durationMinutes,omitempty" yaml:"duration_minutes"`
}

// Module is an ordered group of lessons.
type Module struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Lessons []Lesson `json:"lessons" yaml:"lessons"`
}

// Course is a catalog entry.
type Course struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Track       Track    `json:"track,omitempty" yaml:"track"`
	Modules     []Module `json:"modules" yaml:"modules"`
}

// Membership answers whether a lesson id is in the learner's completion set.
type Membership func(lessonID string) bool

// TotalLessons counts lessons across all modules.
func (c Course) TotalLessons() int {
	n := 0
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}

// LessonIDs returns all lesson ids in play order.
func (c Course) LessonIDs() []string {
	ids := make([]string, 0, c.TotalLessons())
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// CountCompleted counts lessons of c present in the completion set.
func (c Course) CountCompleted(done Membership) int {
	n := 0
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if done(l.ID) {
				n++
			}
		}
	}
	return n
}

// IsCompletedBy reports whether every lesson of a non-empty course is done.
func (c Course) IsCompletedBy(done Membership) bool {
	total := c.TotalLessons()
	return total > 0 && c.CountCompleted(done) == total
}

// ProgressPercent is round(completed/total*100), 0 for an empty course.
func (c Course) ProgressPercent(done Membership) int {
	return Percent(c.CountCompleted(done), c.TotalLessons())
}

// FirstLesson returns the first lesson of the first non-empty module.
func (c Course) FirstLesson() (Module, Lesson, bool) {
	for _, m := range c.Modules {
		if len(m.Lessons) > 0 {
			return m, m.Lessons[0], true
		}
	}
	return Module{}, Lesson{}, false
}

// NextIncomplete scans modules and lessons in order for the first lesson not done.
func (c Course) NextIncomplete(done Membership) (Module, Lesson, bool) {
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if !done(l.ID) {
				return m, l, true
			}
		}
	}
	return Module{}, Lesson{}, false
}

// Validate checks ids and track. Lesson id uniqueness is checked at catalog level.
func (c Course) Validate() error {
	if !shared.IsSlug(c.ID) {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "invalid course id", fmt.Errorf("%q", c.ID))
	}
	if !c.Track.IsValid() {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidInput, "unknown track", fmt.Errorf("%q", c.Track))
	}
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if !shared.IsSlug(l.ID) {
				return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "invalid lesson id", fmt.Errorf("%s/%q", c.ID, l.ID))
			}
		}
	}
	return nil
}

// EffectiveTrack maps the empty track to foundation.
func (c Course) EffectiveTrack() Track {
	if c.Track == "" {
		return TrackFoundation
	}
	return c.Track
}

// Percent returns round(part/total*100), 0 when total is not positive.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	// integer half-up rounding of part*100/total
	return (part*200 + total) / (total * 2)
}
