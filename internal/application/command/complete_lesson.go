// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnpath/academy-hub/internal/application/query"
	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE LESSON COMMAND
// The only mutation of learner progress. Adds the lesson to the completion
// set, sets the invalidation marker and publishes LessonCompletedEvent with
// the before/after figures. Streaks and achievements react to the event.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLessonCommand marks one lesson complete for one learner.
type CompleteLessonCommand struct {
	LearnerID string
	LessonID  string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CompleteLessonCommand) Validate() error {
	if _, err := shared.NewLearnerID(c.LearnerID); err != nil {
		return err
	}
	if _, err := shared.NewLessonID(c.LessonID); err != nil {
		return err
	}
	return nil
}

// CompleteLessonResult describes the outcome.
type CompleteLessonResult struct {
	LearnerID string `json:"learnerId"`
	LessonID  string `json:"lessonId"`
	CourseID  string `json:"courseId"`

	// AlreadyCompleted is true when the lesson was in the set before; nothing changed.
	AlreadyCompleted bool `json:"alreadyCompleted"`

	CourseJustCompleted bool `json:"courseJustCompleted"`

	Progress query.UnifiedProgress `json:"progress"`
}

// CompleteLessonHandler handles CompleteLessonCommand.
type CompleteLessonHandler struct {
	workspaces *workspace.Factory
	publisher  shared.EventPublisher
	logger     *logger.Logger
}

// NewCompleteLessonHandler creates a new CompleteLessonHandler.
func NewCompleteLessonHandler(workspaces *workspace.Factory, publisher shared.EventPublisher, log *logger.Logger) *CompleteLessonHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CompleteLessonHandler{
		workspaces: workspaces,
		publisher:  publisher,
		logger:     log.With(logger.Component("complete_lesson")),
	}
}

// Handle executes the command.
func (h *CompleteLessonHandler) Handle(ctx context.Context, cmd CompleteLessonCommand) (*CompleteLessonResult, error) {
	cmd.LearnerID = strings.TrimSpace(cmd.LearnerID)
	cmd.LessonID = strings.TrimSpace(cmd.LessonID)
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}

	ws, err := h.workspaces.For(cmd.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}

	result, event, err := h.apply(ctx, ws, cmd)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return result, nil
	}

	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, *event); err != nil {
			h.logger.Warn("failed to publish lesson completed",
				logger.LearnerID(cmd.LearnerID),
				logger.LessonID(cmd.LessonID),
				logger.Err(err),
			)
		}
	}
	return result, nil
}

// apply mutates the completion set under the learner lock.
// The returned event is nil when the lesson was already complete.
func (h *CompleteLessonHandler) apply(ctx context.Context, ws *workspace.Workspace, cmd CompleteLessonCommand) (*CompleteLessonResult, *shared.LessonCompletedEvent, error) {
	unlock := h.workspaces.Lock(cmd.LearnerID)
	defer unlock()

	catalog, err := ws.Progress.GetCachedCourseData(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("complete_lesson: %w", err)
	}
	loc, ok := catalog.FindLesson(cmd.LessonID)
	if !ok {
		return nil, nil, shared.WrapError("progress", "CompleteLesson", shared.ErrNotFound, "lesson not found in catalog", fmt.Errorf("%q", cmd.LessonID))
	}

	state, err := ws.Progress.LoadCompletion(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("complete_lesson: %w", err)
	}
	before := query.Summarize(catalog, state)

	now := h.workspaces.Clock().Now()
	result := &CompleteLessonResult{
		LearnerID: cmd.LearnerID,
		LessonID:  cmd.LessonID,
		CourseID:  loc.Course.ID,
	}

	if !state.Add(cmd.LessonID, now) {
		result.AlreadyCompleted = true
		result.Progress = ws.Progress.GetUnifiedProgress(ctx)
		return result, nil, nil
	}

	if err := ws.Progress.SaveCompletion(ctx, state); err != nil {
		return nil, nil, fmt.Errorf("complete_lesson: %w", err)
	}
	if err := ws.Progress.MarkInvalidated(ctx); err != nil {
		// the completion is saved; caches expire on their own TTL
		h.logger.Warn("failed to mark progress invalidated", logger.LearnerID(cmd.LearnerID), logger.Err(err))
	}

	after := query.Summarize(catalog, state)
	courseDone := loc.Course.CountCompleted(state.Has)
	courseTotal := loc.Course.TotalLessons()

	event := shared.NewLessonCompletedEvent(cmd.LearnerID, loc.Course.ID, cmd.LessonID, now)
	event.CourseTitle = loc.Course.Title
	event.CourseLessonsCompleted = courseDone
	event.CourseLessonsTotal = courseTotal
	event.PreviousXP = before.TotalXP
	event.CurrentXP = after.TotalXP
	event.PreviousCompletedCourses = before.CompletedCourses
	event.CurrentCompletedCourses = after.CompletedCourses

	result.CourseJustCompleted = event.CourseJustCompleted()
	result.Progress = ws.Progress.GetUnifiedProgress(ctx)

	h.logger.Info("lesson completed",
		logger.LearnerID(cmd.LearnerID),
		logger.CourseID(loc.Course.ID),
		logger.LessonID(cmd.LessonID),
		logger.XPAmount(after.TotalXP-before.TotalXP),
	)
	return result, &event, nil
}
