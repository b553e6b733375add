package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Learner, course and lesson ids are URL slugs: they appear verbatim in
// deep links such as /courses/{courseId}/{lessonId}.
var slugRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)

// LearnerID identifies the owner of a progress namespace.
type LearnerID string

func (l LearnerID) IsValid() bool  { return slugRegex.MatchString(string(l)) }
func (l LearnerID) String() string { return string(l) }

// NewLearnerID creates a new LearnerID with validation.
func NewLearnerID(id string) (LearnerID, error) {
	lid := LearnerID(strings.TrimSpace(id))
	if !lid.IsValid() {
		return "", ErrInvalidLearnerID
	}
	return lid, nil
}

// LessonID identifies a lesson across the whole catalog.
type LessonID string

func (l LessonID) IsValid() bool  { return slugRegex.MatchString(string(l)) }
func (l LessonID) String() string { return string(l) }

// NewLessonID creates a new LessonID with validation.
func NewLessonID(id string) (LessonID, error) {
	lid := LessonID(strings.TrimSpace(id))
	if !lid.IsValid() {
		return "", ErrInvalidLessonID
	}
	return lid, nil
}

// IsSlug reports whether s is a valid catalog identifier.
func IsSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ═══════════════════════════════════════════════════════════════════════════

// XP represents experience points derived from completion state.
type XP int

const (
	XPPerLesson = 50
	XPPerCourse = 250
)

// ComputeXP derives total XP from completion counts.
func ComputeXP(completedLessons, completedCourses int) XP {
	if completedLessons < 0 {
		completedLessons = 0
	}
	if completedCourses < 0 {
		completedCourses = 0
	}
	return XP(completedLessons*XPPerLesson + completedCourses*XPPerCourse)
}

func (x XP) Int() int { return int(x) }
