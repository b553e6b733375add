package query

import (
	"context"
	"strconv"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIFIED PROGRESS
// Joins the learner's completion set with the course catalog. The completion
// set is the only source of truth: a course is complete iff it has lessons and
// every one of them is in the set.
//
// Caching: the catalog is reused for CatalogTTL and a flat stats snapshot for
// FastStatsTTL. A lesson completion sets the progressCacheInvalidated marker;
// the next cached read consumes it once and drops both caches.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultFastStatsTTL is how long GetFastStats reuses its snapshot.
const DefaultFastStatsTTL = 500 * time.Millisecond

// CourseProgress is the per-course breakdown.
type CourseProgress struct {
	CourseID         string       `json:"courseId"`
	Title            string       `json:"title"`
	Track            course.Track `json:"track"`
	CompletedLessons int          `json:"completedLessons"`
	TotalLessons     int          `json:"totalLessons"`
	ProgressPercent  int          `json:"progressPercent"`
	IsCompleted      bool         `json:"isCompleted"`
}

// UnifiedProgress is the derived learner snapshot. It is never stored.
type UnifiedProgress struct {
	CompletedCourses int              `json:"completedCourses"`
	TotalCourses     int              `json:"totalCourses"`
	TotalXP          int              `json:"totalXP"`
	CurrentLevel     course.LevelTier `json:"currentLevel"`
	XPLevel          course.LevelTier `json:"xpLevel"`
	StreakDays       int              `json:"streakDays"`
	ProgressPercent  int              `json:"progressPercent"`
	CompletedLessons []string         `json:"completedLessons"`
	TotalLessons     int              `json:"totalLessons"`
	Courses          []CourseProgress `json:"courses"`
}

// ZeroProgress is returned when progress cannot be computed.
func ZeroProgress() UnifiedProgress {
	return UnifiedProgress{
		CurrentLevel:     course.CalculateUserLevel(0),
		XPLevel:          course.CalculateXPLevel(0),
		CompletedLessons: []string{},
		Courses:          []CourseProgress{},
	}
}

// FastStats is the flat snapshot served to polling clients.
type FastStats struct {
	CompletedCourses int    `json:"completedCourses"`
	TotalCourses     int    `json:"totalCourses"`
	TotalXP          int    `json:"totalXP"`
	Level            int    `json:"level"`
	LevelName        string `json:"levelName"`
	LevelIcon        string `json:"levelIcon"`
	StreakDays       int    `json:"streakDays"`
	ProgressPercent  int    `json:"progressPercent"`
	CompletedLessons int    `json:"completedLessons"`
}

// Stats flattens p.
func (p UnifiedProgress) Stats() FastStats {
	return FastStats{
		CompletedCourses: p.CompletedCourses,
		TotalCourses:     p.TotalCourses,
		TotalXP:          p.TotalXP,
		Level:            p.CurrentLevel.Number,
		LevelName:        p.CurrentLevel.Name,
		LevelIcon:        p.CurrentLevel.Icon,
		StreakDays:       p.StreakDays,
		ProgressPercent:  p.ProgressPercent,
		CompletedLessons: len(p.CompletedLessons),
	}
}

// fastStatsEntry is the fastStatsCache document.
type fastStatsEntry struct {
	Data      FastStats `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// StreakReader supplies the current streak without mutating it.
type StreakReader interface {
	GetCurrentStreak(ctx context.Context) (progress.StreakRecord, error)
}

// ProgressAggregator computes UnifiedProgress for one learner.
type ProgressAggregator struct {
	store        kv.Store
	catalog      *CatalogCache
	streaks      StreakReader
	clock        timeutil.Clock
	fastStatsTTL time.Duration
	logger       *logger.Logger
}

// NewProgressAggregator wires an aggregator over a learner-scoped store.
// streaks may be nil, in which case StreakDays is always 0.
func NewProgressAggregator(store kv.Store, catalog *CatalogCache, streaks StreakReader, clock timeutil.Clock, fastStatsTTL time.Duration, log *logger.Logger) *ProgressAggregator {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if fastStatsTTL <= 0 {
		fastStatsTTL = DefaultFastStatsTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressAggregator{
		store:        store,
		catalog:      catalog,
		streaks:      streaks,
		clock:        clock,
		fastStatsTTL: fastStatsTTL,
		logger:       log.With(logger.Component("progress_aggregator")),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Completion state
// ─────────────────────────────────────────────────────────────────────────────

// LoadCompletion reads the completion set. A missing key is an empty set.
func (a *ProgressAggregator) LoadCompletion(ctx context.Context) (*progress.CompletionState, error) {
	state := progress.NewCompletionState()
	found, err := kv.GetJSON(ctx, a.store, kv.KeyCompletedLessons, state)
	if err != nil {
		if found {
			return nil, shared.WrapError("progress", "Load", shared.ErrInvalidFormat, "stored progress state is corrupt", err)
		}
		return nil, shared.WrapError("progress", "Load", shared.ErrServiceUnavailable, "failed to load progress", err)
	}
	return state, nil
}

// SaveCompletion writes the completion set.
func (a *ProgressAggregator) SaveCompletion(ctx context.Context, state *progress.CompletionState) error {
	if err := kv.SetJSON(ctx, a.store, kv.KeyCompletedLessons, state); err != nil {
		return shared.WrapError("progress", "Save", shared.ErrServiceUnavailable, "failed to save progress", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Invalidation
// ─────────────────────────────────────────────────────────────────────────────

// MarkInvalidated sets the invalidation marker. Every completion mutation calls it.
func (a *ProgressAggregator) MarkInvalidated(ctx context.Context) error {
	stamp := strconv.FormatInt(a.clock.Now().UnixMilli(), 10)
	if err := a.store.Set(ctx, kv.KeyCacheInvalidated, stamp); err != nil {
		return shared.WrapError("progress", "Invalidate", shared.ErrServiceUnavailable, "failed to set invalidation marker", err)
	}
	return nil
}

// consumeInvalidation clears the marker and both caches if the marker is set.
// It reports whether a marker was consumed.
func (a *ProgressAggregator) consumeInvalidation(ctx context.Context) (bool, error) {
	_, set, err := a.store.Get(ctx, kv.KeyCacheInvalidated)
	if err != nil || !set {
		return false, err
	}
	if err := kv.RemoveAll(ctx, a.store, kv.KeyCacheInvalidated, kv.KeyFastStatsCache); err != nil {
		return false, err
	}
	a.catalog.Invalidate()
	a.logger.Debug("progress cache invalidated")
	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetCachedCourseData returns the catalog, refetching once after an invalidation.
func (a *ProgressAggregator) GetCachedCourseData(ctx context.Context) (course.Catalog, error) {
	forced, err := a.consumeInvalidation(ctx)
	if err != nil {
		a.logger.Warn("invalidation check failed, forcing refresh", logger.Err(err))
		forced = true
	}
	return a.catalog.Get(ctx, forced)
}

// LoadState returns the catalog and the completion set together.
func (a *ProgressAggregator) LoadState(ctx context.Context) (course.Catalog, *progress.CompletionState, error) {
	state, err := a.LoadCompletion(ctx)
	if err != nil {
		return nil, nil, err
	}
	cat, err := a.GetCachedCourseData(ctx)
	if err != nil {
		return nil, nil, err
	}
	return cat, state, nil
}

// Compute builds UnifiedProgress and returns any failure.
func (a *ProgressAggregator) Compute(ctx context.Context) (UnifiedProgress, error) {
	cat, state, err := a.LoadState(ctx)
	if err != nil {
		return ZeroProgress(), err
	}

	p := Summarize(cat, state)
	a.reportOrphans(cat, state)

	if a.streaks != nil {
		rec, err := a.streaks.GetCurrentStreak(ctx)
		if err != nil {
			a.logger.Warn("streak unavailable", logger.Err(err))
		} else {
			p.StreakDays = rec.EffectiveDays()
		}
	}
	return p, nil
}

// GetUnifiedProgress is Compute that degrades to ZeroProgress on failure.
func (a *ProgressAggregator) GetUnifiedProgress(ctx context.Context) UnifiedProgress {
	p, err := a.Compute(ctx)
	if err != nil {
		a.logger.Error("progress unavailable, serving zero snapshot", logger.Err(err))
		return ZeroProgress()
	}
	return p
}

// GetFastStats serves the fastStatsCache snapshot while it is fresh.
func (a *ProgressAggregator) GetFastStats(ctx context.Context) FastStats {
	if _, err := a.consumeInvalidation(ctx); err != nil {
		a.logger.Warn("invalidation check failed", logger.Err(err))
	}

	now := a.clock.Now()
	var entry fastStatsEntry
	found, err := kv.GetJSON(ctx, a.store, kv.KeyFastStatsCache, &entry)
	if err == nil && found && now.UnixMilli()-entry.Timestamp < a.fastStatsTTL.Milliseconds() {
		return entry.Data
	}

	p, err := a.Compute(ctx)
	if err != nil {
		a.logger.Error("fast stats unavailable", logger.Err(err))
		return ZeroProgress().Stats()
	}

	stats := p.Stats()
	entry = fastStatsEntry{Data: stats, Timestamp: now.UnixMilli()}
	if err := kv.SetJSON(ctx, a.store, kv.KeyFastStatsCache, entry); err != nil {
		a.logger.Warn("failed to cache fast stats", logger.Err(err))
	}
	return stats
}

// reportOrphans logs completed lesson ids that are no longer in the catalog.
// They never count toward progress.
func (a *ProgressAggregator) reportOrphans(cat course.Catalog, state *progress.CompletionState) {
	known := make(map[string]struct{})
	for _, c := range cat {
		for _, id := range c.LessonIDs() {
			known[id] = struct{}{}
		}
	}
	var orphans []string
	for _, id := range state.LessonIDs() {
		if _, ok := known[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		a.logger.Warn("completed lessons missing from catalog", logger.Strings("lesson_ids", orphans))
	}
}

// Summarize derives progress from the catalog and completion set. Pure; StreakDays is left 0.
func Summarize(cat course.Catalog, state *progress.CompletionState) UnifiedProgress {
	p := ZeroProgress()
	p.TotalCourses = len(cat)

	matched := 0
	for _, c := range cat {
		done := c.CountCompleted(state.Has)
		total := c.TotalLessons()
		cp := CourseProgress{
			CourseID:         c.ID,
			Title:            c.Title,
			Track:            c.EffectiveTrack(),
			CompletedLessons: done,
			TotalLessons:     total,
			ProgressPercent:  course.Percent(done, total),
			IsCompleted:      total > 0 && done == total,
		}
		if cp.IsCompleted {
			p.CompletedCourses++
		}
		matched += done
		p.TotalLessons += total
		p.Courses = append(p.Courses, cp)
	}

	p.CompletedLessons = append(p.CompletedLessons, state.LessonIDs()...)
	p.ProgressPercent = course.Percent(p.CompletedCourses, p.TotalCourses)
	p.TotalXP = shared.ComputeXP(matched, p.CompletedCourses).Int()
	p.CurrentLevel = course.CalculateUserLevel(p.CompletedCourses)
	p.XPLevel = course.CalculateXPLevel(p.TotalXP)
	return p
}
