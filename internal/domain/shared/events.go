package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Lesson completion is the only event that mutates
// learner progress; the rest are derived notifications.
const (
	// Progress events
	EventLessonCompleted     EventType = "progress.lesson_completed"
	EventAchievementUnlocked EventType = "progress.achievement_unlocked"

	// Admin events
	EventAdminLoggedIn      EventType = "admin.logged_in"
	EventAdminLoggedOut     EventType = "admin.logged_out"
	EventAdminSessionClosed EventType = "admin.session_closed"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID is the learner or admin user the event belongs to.
	AggregateID() string
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event stamped at the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent carries the before/after progress figures so handlers
// can evaluate milestones without recomputing the previous snapshot.
type LessonCompletedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`
	LessonID  string `json:"lesson_id"`

	CourseTitle            string `json:"course_title"`
	CourseLessonsCompleted int    `json:"course_lessons_completed"`
	CourseLessonsTotal     int    `json:"course_lessons_total"`

	PreviousXP               int `json:"previous_xp"`
	CurrentXP                int `json:"current_xp"`
	PreviousCompletedCourses int `json:"previous_completed_courses"`
	CurrentCompletedCourses  int `json:"current_completed_courses"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":                 e.LearnerID,
		"course_id":                  e.CourseID,
		"lesson_id":                  e.LessonID,
		"course_title":               e.CourseTitle,
		"course_lessons_completed":   e.CourseLessonsCompleted,
		"course_lessons_total":       e.CourseLessonsTotal,
		"previous_xp":                e.PreviousXP,
		"current_xp":                 e.CurrentXP,
		"previous_completed_courses": e.PreviousCompletedCourses,
		"current_completed_courses":  e.CurrentCompletedCourses,
	}
}

// CourseJustCompleted reports whether this lesson finished its course.
func (e LessonCompletedEvent) CourseJustCompleted() bool {
	return e.CourseLessonsTotal > 0 && e.CourseLessonsCompleted == e.CourseLessonsTotal
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(learnerID, courseID, lessonID string, at time.Time) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent: NewBaseEvent(EventLessonCompleted, learnerID, at),
		LearnerID: learnerID,
		CourseID:  courseID,
		LessonID:  lessonID,
	}
}

// AchievementUnlockedEvent is emitted after an achievement is appended to the log.
type AchievementUnlockedEvent struct {
	BaseEvent
	LearnerID     string `json:"learner_id"`
	AchievementID string `json:"achievement_id"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":     e.LearnerID,
		"achievement_id": e.AchievementID,
		"kind":           e.Kind,
		"title":          e.Title,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(learnerID, achievementID, kind, title string, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, learnerID, at),
		LearnerID:     learnerID,
		AchievementID: achievementID,
		Kind:          kind,
		Title:         title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Admin Events
// ═══════════════════════════════════════════════════════════════════════════

// AdminSessionEvent records admin session lifecycle changes.
type AdminSessionEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e AdminSessionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"session_id": e.SessionID,
		"reason":     e.Reason,
	}
}

// NewAdminSessionEvent creates an admin lifecycle event of the given type.
func NewAdminSessionEvent(eventType EventType, userID, sessionID, reason string, at time.Time) AdminSessionEvent {
	return AdminSessionEvent{
		BaseEvent: NewBaseEvent(eventType, userID, at),
		UserID:    userID,
		SessionID: sessionID,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
