// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"errors"

	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LESSON COMPLETED HANDLER
// Runs the side effects of a lesson completion:
// 1. Streak update for today (the first completion of the day counts)
// 2. Course, XP, level and streak achievement checks
// 3. AchievementUnlocked for each new record
//
// Each step is independent. A failing step is logged and the rest still run.
// ═══════════════════════════════════════════════════════════════════════════

// Gate decides whether a feature is on for a learner.
type Gate func(learnerID string) bool

func allow(string) bool { return true }

// LessonCompletedConfig toggles the side effects.
type LessonCompletedConfig struct {
	Streaks      Gate
	Achievements Gate
}

// DefaultLessonCompletedConfig enables everything.
func DefaultLessonCompletedConfig() LessonCompletedConfig {
	return LessonCompletedConfig{Streaks: allow, Achievements: allow}
}

// OnLessonCompletedHandler handles LessonCompletedEvent.
type OnLessonCompletedHandler struct {
	workspaces *workspace.Factory
	publisher  shared.EventPublisher
	config     LessonCompletedConfig
	logger     *logger.Logger
}

// NewOnLessonCompletedHandler creates the handler. publisher may be nil.
func NewOnLessonCompletedHandler(workspaces *workspace.Factory, publisher shared.EventPublisher, config LessonCompletedConfig, log *logger.Logger) *OnLessonCompletedHandler {
	if config.Streaks == nil {
		config.Streaks = allow
	}
	if config.Achievements == nil {
		config.Achievements = allow
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OnLessonCompletedHandler{
		workspaces: workspaces,
		publisher:  publisher,
		config:     config,
		logger:     log.With(logger.String("handler", "on_lesson_completed")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnLessonCompletedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.LessonCompletedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	ws, err := h.workspaces.For(e.LearnerID)
	if err != nil {
		return err
	}

	unlock := h.workspaces.Lock(e.LearnerID)
	defer unlock()

	log := h.logger.With(logger.LearnerID(e.LearnerID), logger.LessonID(e.LessonID))
	var errs []error

	// Only the first completion of a day can land the streak on a milestone.
	streakDays := 0
	if h.config.Streaks(e.LearnerID) {
		rec, advanced, err := ws.Streaks.RecordCompletion(ctx)
		switch {
		case err != nil:
			log.Error("streak update failed", logger.Err(err))
			errs = append(errs, err)
		case advanced:
			streakDays = rec.CurrentStreak
		}
	}

	if !h.config.Achievements(e.LearnerID) {
		return errors.Join(errs...)
	}

	checks := []func() (*progress.Achievement, error){
		func() (*progress.Achievement, error) {
			return ws.Achievements.CheckCourseCompletion(ctx, e.CourseID, e.CourseTitle, e.CourseLessonsCompleted, e.CourseLessonsTotal)
		},
		func() (*progress.Achievement, error) {
			return ws.Achievements.CheckXPMilestone(ctx, e.PreviousXP, e.CurrentXP)
		},
		func() (*progress.Achievement, error) {
			return ws.Achievements.CheckLevelUp(ctx,
				course.CalculateUserLevel(e.PreviousCompletedCourses),
				course.CalculateUserLevel(e.CurrentCompletedCourses))
		},
	}
	if streakDays > 0 {
		checks = append(checks, func() (*progress.Achievement, error) {
			return ws.Achievements.CheckStreakAchievement(ctx, streakDays)
		})
	}

	for _, check := range checks {
		a, err := check()
		if err != nil {
			log.Error("achievement check failed", logger.Err(err))
			errs = append(errs, err)
			continue
		}
		if a != nil {
			h.publish(ctx, e, a)
		}
	}
	return errors.Join(errs...)
}

func (h *OnLessonCompletedHandler) publish(ctx context.Context, e shared.LessonCompletedEvent, a *progress.Achievement) {
	if h.publisher == nil {
		return
	}
	out := shared.NewAchievementUnlockedEvent(e.LearnerID, a.ID, string(a.Kind), a.Title, a.Timestamp)
	out.BaseEvent = out.BaseEvent.WithCorrelationID(e.CorrelationID)
	if err := h.publisher.Publish(ctx, out); err != nil {
		h.logger.Warn("failed to publish achievement", logger.Err(err))
	}
}
