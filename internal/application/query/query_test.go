package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// countingSource serves a fixed catalog and counts calls.
type countingSource struct {
	catalog course.Catalog
	err     error
	calls   atomic.Int32
}

func (s *countingSource) FetchCourses(ctx context.Context) (course.Catalog, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.catalog.Clone(), nil
}

func lessons(ids ...string) []course.Lesson {
	out := make([]course.Lesson, 0, len(ids))
	for _, id := range ids {
		out = append(out, course.Lesson{ID: id, Title: "Lesson " + id})
	}
	return out
}

func testCatalog() course.Catalog {
	return course.Catalog{
		{ID: "a", Title: "Course A", Track: course.TrackFoundation, Modules: []course.Module{
			{ID: "a-m1", Title: "A One", Lessons: lessons("a1", "a2")},
			{ID: "a-m2", Title: "A Two", Lessons: lessons("a3")},
		}},
		{ID: "b", Title: "Course B", Track: course.TrackFoundation, Modules: []course.Module{
			{ID: "b-m1", Title: "B One", Lessons: lessons("b1", "b2")},
		}},
		{ID: "c", Title: "Course C", Track: course.TrackAdvanced, Modules: []course.Module{
			{ID: "c-m1", Title: "C One", Lessons: lessons("c1")},
		}},
		{ID: "empty", Title: "Coming Soon", Track: course.TrackFoundation},
	}
}

type fixedStreak struct{ rec progress.StreakRecord }

func (f fixedStreak) GetCurrentStreak(context.Context) (progress.StreakRecord, error) {
	return f.rec, nil
}

type fixture struct {
	store  *kv.Memory
	source *countingSource
	clock  *timeutil.ManualClock
	cache  *CatalogCache
	agg    *ProgressAggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := timeutil.NewManualClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	store := kv.NewMemory().WithClock(clock.Now)
	src := &countingSource{catalog: testCatalog()}
	cache := NewCatalogCache(src, clock, time.Second, nil)
	streak := fixedStreak{rec: progress.StreakRecord{CurrentStreak: 4, StreakActive: true, LastActivityDate: "2026-06-01"}}
	agg := NewProgressAggregator(store, cache, streak, clock, 500*time.Millisecond, nil)
	return &fixture{store: store, source: src, clock: clock, cache: cache, agg: agg}
}

func (f *fixture) complete(t *testing.T, ids ...string) {
	t.Helper()
	ctx := context.Background()
	state, err := f.agg.LoadCompletion(ctx)
	require.NoError(t, err)
	for _, id := range ids {
		state.Add(id, f.clock.Now())
	}
	require.NoError(t, f.agg.SaveCompletion(ctx, state))
	require.NoError(t, f.agg.MarkInvalidated(ctx))
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestGetCachedCourseData_TTLAndInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.agg.GetCachedCourseData(ctx)
	require.NoError(t, err)
	_, err = f.agg.GetCachedCourseData(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.source.calls.Load())

	require.NoError(t, f.agg.MarkInvalidated(ctx))
	_, err = f.agg.GetCachedCourseData(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.source.calls.Load())

	_, err = f.agg.GetCachedCourseData(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.source.calls.Load(), "marker must be consumed once")

	f.clock.Advance(time.Second)
	_, err = f.agg.GetCachedCourseData(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.source.calls.Load())
}

func TestCatalogCache_ConcurrentRefetchCollapses(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	src := course.SourceFunc(func(ctx context.Context) (course.Catalog, error) {
		calls.Add(1)
		<-release
		return testCatalog(), nil
	})
	cache := NewCatalogCache(src, nil, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestCatalogCache_ReturnsCopies(t *testing.T) {
	cache := NewCatalogCache(&countingSource{catalog: testCatalog()}, nil, time.Minute, nil)
	first, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	first[0].Title = "mutated"

	second, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Course A", second[0].Title)
}

func TestCatalogCache_RejectsInvalidCatalog(t *testing.T) {
	bad := course.Catalog{{ID: "x", Modules: []course.Module{{Lessons: lessons("dup")}}}, {ID: "y", Modules: []course.Module{{Lessons: lessons("dup")}}}}
	cache := NewCatalogCache(&countingSource{catalog: bad}, nil, time.Minute, nil)
	_, err := cache.Get(context.Background(), false)
	assert.Error(t, err)
}

func TestCatalogCache_FetchFailureServesNothingStale(t *testing.T) {
	clock := timeutil.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	src := &countingSource{catalog: testCatalog()}
	cache := NewCatalogCache(src, clock, time.Second, nil)

	_, err := cache.Get(context.Background(), false)
	require.NoError(t, err)

	src.err = errors.New("catalog down")
	clock.Set(clock.Now().Add(2 * time.Second))
	cat, err := cache.Get(context.Background(), false)
	assert.Error(t, err)
	assert.Nil(t, cat)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIFIED PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestCompute_CompletionDerivedFromSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.complete(t, "a1", "a2", "a3", "b1")
	p, err := f.agg.Compute(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, p.CompletedCourses)
	assert.Equal(t, 4, p.TotalCourses)
	assert.Equal(t, 25, p.ProgressPercent)
	assert.Equal(t, 4*50+250, p.TotalXP)
	assert.Equal(t, "Explorer", p.CurrentLevel.Name)
	assert.Equal(t, 4, p.StreakDays)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3", "b1"}, p.CompletedLessons)

	byID := map[string]CourseProgress{}
	for _, c := range p.Courses {
		byID[c.CourseID] = c
	}
	assert.True(t, byID["a"].IsCompleted)
	assert.Equal(t, 50, byID["b"].ProgressPercent)
	assert.False(t, byID["empty"].IsCompleted, "a course without lessons is never complete")
}

func TestSummarize_RemovingOneLessonUncompletesCourse(t *testing.T) {
	cat := testCatalog()
	full := progress.NewCompletionState()
	partial := progress.NewCompletionState()
	now := time.Now()
	for _, id := range []string{"a1", "a2", "a3"} {
		full.Add(id, now)
	}
	for _, id := range []string{"a1", "a3"} {
		partial.Add(id, now)
	}

	assert.Equal(t, 1, Summarize(cat, full).CompletedCourses)
	assert.Equal(t, 0, Summarize(cat, partial).CompletedCourses)
}

func TestSummarize_OrphanLessonsEarnNothing(t *testing.T) {
	state := progress.NewCompletionState()
	state.Add("retired-lesson", time.Now())
	p := Summarize(testCatalog(), state)
	assert.Equal(t, 0, p.TotalXP)
	assert.Equal(t, []string{"retired-lesson"}, p.CompletedLessons)
}

func TestGetUnifiedProgress_ZeroOnFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("catalog down")

	p := f.agg.GetUnifiedProgress(context.Background())
	assert.Equal(t, ZeroProgress(), p)
	assert.Equal(t, 1, p.CurrentLevel.Number)
}

func TestGetUnifiedProgress_CorruptStateIsZero(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(context.Background(), kv.KeyCompletedLessons, "[broken"))

	_, err := f.agg.Compute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, f.agg.GetUnifiedProgress(context.Background()).CompletedCourses)
}

func TestGetFastStats_CachedAndInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.agg.GetFastStats(ctx)
	assert.Equal(t, 0, first.CompletedLessons)
	raw, ok, _ := f.store.Get(ctx, kv.KeyFastStatsCache)
	require.True(t, ok)
	assert.Contains(t, raw, `"timestamp"`)

	// A direct write without the marker is not seen while the snapshot is fresh.
	state, _ := f.agg.LoadCompletion(ctx)
	state.Add("c1", f.clock.Now())
	require.NoError(t, f.agg.SaveCompletion(ctx, state))
	f.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 0, f.agg.GetFastStats(ctx).CompletedLessons)

	require.NoError(t, f.agg.MarkInvalidated(ctx))
	stats := f.agg.GetFastStats(ctx)
	assert.Equal(t, 1, stats.CompletedLessons)
	assert.Equal(t, 1, stats.CompletedCourses)

	_, marker, _ := f.store.Get(ctx, kv.KeyCacheInvalidated)
	assert.False(t, marker)
}

func TestGetFastStats_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.agg.GetFastStats(ctx)

	state, _ := f.agg.LoadCompletion(ctx)
	state.Add("a1", f.clock.Now())
	require.NoError(t, f.agg.SaveCompletion(ctx, state))

	f.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, f.agg.GetFastStats(ctx).CompletedLessons)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTINUE LEARNING
// ══════════════════════════════════════════════════════════════════════════════

func resolverFor(f *fixture, priority ...string) *ContinuationResolver {
	return NewContinuationResolver(f.agg, ContinueOptions{
		Priority:   priority,
		NewUser:    ContinueCopy{Headline: "Start", CTA: "Start Learning"},
		InProgress: ContinueCopy{Headline: "Resume", CTA: "Continue"},
		Completed:  ContinueCopy{Headline: "Done", CTA: "Browse"},
	}, nil)
}

func TestGetContinueData_NewUserStartsAtFirstLesson(t *testing.T) {
	f := newFixture(t)
	target := resolverFor(f, "b", "a").GetContinueData(context.Background())

	require.NotNil(t, target)
	assert.True(t, target.IsNewUser)
	assert.Equal(t, "b", target.CourseID)
	assert.Equal(t, "b1", target.LessonID)
	assert.Equal(t, "B One", target.ModuleTitle)
	assert.Equal(t, "/courses/b/b1", target.Href)
	assert.Equal(t, "Start Learning", target.CTA)
}

func TestGetContinueData_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := resolverFor(f, "a", "b", "c")

	// A incomplete, B complete, C incomplete.
	f.complete(t, "b1", "b2", "a1")
	target := r.GetContinueData(ctx)
	require.NotNil(t, target)
	assert.Equal(t, "a", target.CourseID)
	assert.Equal(t, "a2", target.LessonID)
	assert.Equal(t, 33, target.ProgressPercent)
	assert.False(t, target.IsNewUser)
	assert.Equal(t, "Continue", target.CTA)

	f.complete(t, "a2", "a3")
	target = r.GetContinueData(ctx)
	require.NotNil(t, target)
	assert.Equal(t, "c", target.CourseID)
	assert.Equal(t, "/courses/c/c1", target.Href)
}

func TestGetContinueData_ZeroProgressCourseStartsAtBeginning(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "c1")
	target := resolverFor(f, "a").GetContinueData(context.Background())
	require.NotNil(t, target)
	assert.Equal(t, "a1", target.LessonID)
	assert.False(t, target.IsNewUser)
}

func TestGetContinueData_TrackOrderWithoutPriority(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "a1", "a2", "a3", "b1", "b2")
	target := resolverFor(f).GetContinueData(context.Background())
	require.NotNil(t, target)
	assert.Equal(t, "c", target.CourseID, "advanced courses follow foundation")
}

func TestGetContinueData_AllComplete(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "a1", "a2", "a3", "b1", "b2", "c1")
	target := resolverFor(f, "b").GetContinueData(context.Background())

	require.NotNil(t, target)
	assert.True(t, target.IsCompleted)
	assert.Equal(t, "b", target.CourseID)
	assert.Equal(t, CoursesHref, target.Href)
	assert.Equal(t, 100, target.ProgressPercent)
	assert.Equal(t, "Browse", target.CTA)
}

func TestGetContinueData_NilOnFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("down")
	assert.Nil(t, resolverFor(f, "a").GetContinueData(context.Background()))
}

func TestOrderCourses_SkipsEmptyAndUnknown(t *testing.T) {
	ordered := OrderCourses(testCatalog(), []string{"ghost", "c", "c"})
	ids := make([]string, 0, len(ordered))
	for _, c := range ordered {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}
