package query

import (
	"context"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTINUE LEARNING
// Picks the lesson to show behind the "continue" button.
//
// Course order: configured priority ids, then the remaining foundation
// courses, then advanced courses, each in catalog order. The first course that
// has lessons and is not fully complete wins. When everything is complete the
// first ordered course is returned as a completed marker that links to /courses.
// ══════════════════════════════════════════════════════════════════════════════

// CoursesHref is the link used once every course is complete.
const CoursesHref = "/courses"

// ContinueCopy is a headline and call to action.
type ContinueCopy struct {
	Headline string `json:"headline"`
	CTA      string `json:"cta"`
}

// ContinueOptions configures the resolver.
type ContinueOptions struct {
	// Priority lists course ids tried before the track order.
	Priority []string

	NewUser    ContinueCopy
	InProgress ContinueCopy
	Completed  ContinueCopy
}

// ContinuationTarget is where the learner should go next.
type ContinuationTarget struct {
	CourseID        string `json:"courseId"`
	CourseTitle     string `json:"courseTitle"`
	ModuleTitle     string `json:"moduleTitle,omitempty"`
	LessonID        string `json:"lessonId,omitempty"`
	LessonTitle     string `json:"lessonTitle,omitempty"`
	ProgressPercent int    `json:"progressPercent"`
	Href            string `json:"href"`
	IsNewUser       bool   `json:"isNewUser"`
	IsCompleted     bool   `json:"isCompleted"`
	Headline        string `json:"headline,omitempty"`
	CTA             string `json:"cta,omitempty"`
}

// LessonHref deep-links a lesson.
func LessonHref(courseID, lessonID string) string {
	return "/courses/" + courseID + "/" + lessonID
}

// StateLoader supplies the catalog and completion set.
type StateLoader interface {
	LoadState(ctx context.Context) (course.Catalog, *progress.CompletionState, error)
}

// ContinuationResolver selects the next lesson for one learner.
type ContinuationResolver struct {
	state  StateLoader
	opts   ContinueOptions
	logger *logger.Logger
}

// NewContinuationResolver creates a resolver.
func NewContinuationResolver(state StateLoader, opts ContinueOptions, log *logger.Logger) *ContinuationResolver {
	if log == nil {
		log = logger.Nop()
	}
	return &ContinuationResolver{
		state:  state,
		opts:   opts,
		logger: log.With(logger.Component("continuation_resolver")),
	}
}

// GetContinueData returns the next target, or nil when nothing can be resolved.
// Failures are logged and reported as nil.
func (r *ContinuationResolver) GetContinueData(ctx context.Context) *ContinuationTarget {
	cat, state, err := r.state.LoadState(ctx)
	if err != nil {
		r.logger.Error("continue data unavailable", logger.Err(err))
		return nil
	}
	return Resolve(cat, state, r.opts)
}

// Resolve is the pure selection used by GetContinueData.
func Resolve(cat course.Catalog, state *progress.CompletionState, opts ContinueOptions) *ContinuationTarget {
	ordered := OrderCourses(cat, opts.Priority)
	if len(ordered) == 0 {
		return nil
	}

	isNewUser := state.Count() == 0
	for _, c := range ordered {
		if c.IsCompletedBy(state.Has) {
			continue
		}
		return lessonTarget(c, state, isNewUser, opts)
	}
	return completedTarget(ordered[0], state, isNewUser, opts)
}

func lessonTarget(c course.Course, state *progress.CompletionState, isNewUser bool, opts ContinueOptions) *ContinuationTarget {
	pct := c.ProgressPercent(state.Has)

	var (
		m  course.Module
		l  course.Lesson
		ok bool
	)
	if isNewUser || pct == 0 {
		m, l, ok = c.FirstLesson()
	} else {
		m, l, ok = c.NextIncomplete(state.Has)
	}
	if !ok {
		return completedTarget(c, state, isNewUser, opts)
	}

	copyBlock := opts.InProgress
	if isNewUser {
		copyBlock = opts.NewUser
	}
	return &ContinuationTarget{
		CourseID:        c.ID,
		CourseTitle:     c.Title,
		ModuleTitle:     m.Title,
		LessonID:        l.ID,
		LessonTitle:     l.Title,
		ProgressPercent: pct,
		Href:            LessonHref(c.ID, l.ID),
		IsNewUser:       isNewUser,
		Headline:        copyBlock.Headline,
		CTA:             copyBlock.CTA,
	}
}

func completedTarget(c course.Course, state *progress.CompletionState, isNewUser bool, opts ContinueOptions) *ContinuationTarget {
	return &ContinuationTarget{
		CourseID:        c.ID,
		CourseTitle:     c.Title,
		ProgressPercent: c.ProgressPercent(state.Has),
		Href:            CoursesHref,
		IsNewUser:       isNewUser,
		IsCompleted:     true,
		Headline:        opts.Completed.Headline,
		CTA:             opts.Completed.CTA,
	}
}

// OrderCourses returns the candidate courses in continuation order.
// Unknown priority ids and courses without lessons are skipped.
func OrderCourses(cat course.Catalog, priority []string) []course.Course {
	seen := make(map[string]struct{}, len(cat))
	ordered := make([]course.Course, 0, len(cat))

	add := func(c course.Course) {
		if _, dup := seen[c.ID]; dup || c.TotalLessons() == 0 {
			return
		}
		seen[c.ID] = struct{}{}
		ordered = append(ordered, c)
	}

	for _, id := range priority {
		if c, ok := cat.Find(id); ok {
			add(c)
		}
	}
	for _, track := range []course.Track{course.TrackFoundation, course.TrackAdvanced} {
		for _, c := range cat {
			if c.EffectiveTrack() == track {
				add(c)
			}
		}
	}
	for _, c := range cat {
		add(c)
	}
	return ordered
}
