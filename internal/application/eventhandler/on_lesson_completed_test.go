package eventhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/learnpath/academy-hub/internal/application/query"
	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

type capture struct{ events []shared.Event }

func (c *capture) Publish(_ context.Context, e shared.Event) error {
	c.events = append(c.events, e)
	return nil
}

func newFactory(t *testing.T) (*workspace.Factory, *kv.Memory, *timeutil.ManualClock) {
	t.Helper()
	clock := timeutil.NewManualClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	store := kv.NewMemory()
	cat := course.Catalog{{ID: "bb", Title: "Business Blueprint", Modules: []course.Module{
		{ID: "m1", Title: "M1", Lessons: []course.Lesson{{ID: "l1"}, {ID: "l2"}}},
	}}}
	cache := query.NewCatalogCache(course.SourceFunc(func(context.Context) (course.Catalog, error) { return cat, nil }), clock, time.Second, nil)
	return workspace.NewFactory(store, cache, clock, workspace.Config{}, nil), store, clock
}

func completedEvent() shared.LessonCompletedEvent {
	e := shared.NewLessonCompletedEvent("learner-1", "bb", "l2", time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	e.CourseTitle = "Business Blueprint"
	e.CourseLessonsCompleted = 2
	e.CourseLessonsTotal = 2
	e.PreviousXP = 50
	e.CurrentXP = 350
	e.PreviousCompletedCourses = 0
	e.CurrentCompletedCourses = 1
	return e
}

func TestOnLessonCompleted_RecordsStreakAndAchievements(t *testing.T) {
	ctx := context.Background()
	factory, _, _ := newFactory(t)
	pub := &capture{}
	h := NewOnLessonCompletedHandler(factory, pub, DefaultLessonCompletedConfig(), nil)

	require.NoError(t, h.Handle(ctx, completedEvent()))

	ws, err := factory.For("learner-1")
	require.NoError(t, err)

	streak, err := ws.Streaks.GetCurrentStreak(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)

	views, err := ws.Achievements.GetRecentAchievements(ctx)
	require.NoError(t, err)
	titles := make([]string, 0, len(views))
	for _, v := range views {
		titles = append(titles, v.Title)
	}
	assert.ElementsMatch(t, []string{
		"Course Completed: Business Blueprint",
		"100 XP Milestone",
		"Level Up: Explorer",
	}, titles)
	assert.Len(t, pub.events, 3)
	for _, e := range pub.events {
		assert.Equal(t, shared.EventAchievementUnlocked, e.EventType())
	}

	// Replaying the event inside the dedup window adds nothing.
	require.NoError(t, h.Handle(ctx, completedEvent()))
	views, err = ws.Achievements.GetRecentAchievements(ctx)
	require.NoError(t, err)
	assert.Len(t, views, 3)
}

func TestOnLessonCompleted_StreakMilestone(t *testing.T) {
	ctx := context.Background()
	factory, _, _ := newFactory(t)
	ws, err := factory.For("learner-1")
	require.NoError(t, err)
	require.NoError(t, kv.SetJSON(ctx, ws.Store, kv.KeyLearningStreak, progress.StreakRecord{
		CurrentStreak: 2, LongestStreak: 2, LastActivityDate: "2026-06-30", StreakActive: true,
	}))

	e := completedEvent()
	e.CourseLessonsCompleted = 1
	e.PreviousXP, e.CurrentXP = 0, 50
	e.CurrentCompletedCourses = 0
	require.NoError(t, NewOnLessonCompletedHandler(factory, nil, DefaultLessonCompletedConfig(), nil).Handle(ctx, e))

	views, err := ws.Achievements.GetRecentAchievements(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "3-Day Streak", views[0].Title)
}

func TestOnLessonCompleted_StreakMilestoneOncePerDay(t *testing.T) {
	ctx := context.Background()
	factory, _, clock := newFactory(t)
	ws, err := factory.For("learner-1")
	require.NoError(t, err)
	require.NoError(t, kv.SetJSON(ctx, ws.Store, kv.KeyLearningStreak, progress.StreakRecord{
		CurrentStreak: 2, LongestStreak: 2, LastActivityDate: "2026-06-30", StreakActive: true,
	}))
	h := NewOnLessonCompletedHandler(factory, nil, DefaultLessonCompletedConfig(), nil)

	e := completedEvent()
	e.CourseLessonsCompleted = 1
	e.PreviousXP, e.CurrentXP = 0, 50
	e.CurrentCompletedCourses = 0
	require.NoError(t, h.Handle(ctx, e))

	// Later lessons the same day, well past the dedup window.
	for i := 0; i < 3; i++ {
		clock.Advance(5 * time.Minute)
		next := completedEvent()
		next.CourseLessonsCompleted = 1
		next.PreviousXP, next.CurrentXP = 50, 50
		next.PreviousCompletedCourses, next.CurrentCompletedCourses = 0, 0
		require.NoError(t, h.Handle(ctx, next))
	}

	streak, err := ws.Streaks.GetCurrentStreak(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, streak.CurrentStreak)

	views, err := ws.Achievements.GetRecentAchievements(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "3-Day Streak", views[0].Title)
}

func TestOnLessonCompleted_Gates(t *testing.T) {
	ctx := context.Background()
	factory, store, _ := newFactory(t)
	off := func(string) bool { return false }
	h := NewOnLessonCompletedHandler(factory, nil, LessonCompletedConfig{Streaks: off, Achievements: off}, nil)

	require.NoError(t, h.Handle(ctx, completedEvent()))
	assert.Zero(t, store.Len())
}

func TestOnLessonCompleted_IgnoresOtherEvents(t *testing.T) {
	factory, store, _ := newFactory(t)
	h := NewOnLessonCompletedHandler(factory, nil, DefaultLessonCompletedConfig(), nil)
	ev := shared.NewAdminSessionEvent(shared.EventAdminLoggedIn, "admin-1", "sid", "", time.Now())
	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Zero(t, store.Len())
}

func TestAuditLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewAuditLogger(logger.NewFromZap(zap.New(core)))

	require.NoError(t, a.Handle(context.Background(), completedEvent()))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "event", entry.Message)
	assert.Equal(t, string(shared.EventLessonCompleted), entry.ContextMap()["event_type"])
}
