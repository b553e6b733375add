// Package gamification holds the services that react to lesson completions:
// the daily streak and the achievement log.
package gamification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// Keeps the learningStreak record of one learner. Only a lesson completion
// moves the counter; reads report whether the streak is still alive.
// ══════════════════════════════════════════════════════════════════════════════

// StreakTracker persists and recomputes the daily learning streak.
type StreakTracker struct {
	store  kv.Store
	clock  timeutil.Clock
	loc    *time.Location
	logger *logger.Logger

	mu sync.Mutex
}

// NewStreakTracker creates a tracker over a learner-scoped store.
// Calendar days are computed in loc.
func NewStreakTracker(store kv.Store, clock timeutil.Clock, loc *time.Location, log *logger.Logger) *StreakTracker {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StreakTracker{
		store:  store,
		clock:  clock,
		loc:    loc,
		logger: log.With(logger.Component("streak_tracker")),
	}
}

// UpdateStreakOnLessonComplete applies today's completion and persists the result.
// Calling it several times on the same day returns the same record.
func (t *StreakTracker) UpdateStreakOnLessonComplete(ctx context.Context) (progress.StreakRecord, error) {
	rec, _, err := t.RecordCompletion(ctx)
	return rec, err
}

// RecordCompletion is UpdateStreakOnLessonComplete that also reports whether
// this was the first completion of the day, the only one that moves the streak.
func (t *StreakTracker) RecordCompletion(ctx context.Context) (rec progress.StreakRecord, advanced bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, err := t.load(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidStreakState) {
			return progress.StreakRecord{}, false, err
		}
		t.logger.Warn("discarding corrupt streak record", logger.Err(err))
		current = progress.StreakRecord{}
	}

	now := t.clock.Now()
	today := timeutil.DayKey(now, t.loc)
	yesterday := timeutil.PreviousDayKey(now, t.loc)

	advanced = current.LastActivityDate != today
	next := current.RecordActivity(today, yesterday)
	if next == current {
		return next, advanced, nil
	}

	if err := kv.SetJSON(ctx, t.store, kv.KeyLearningStreak, next); err != nil {
		return current, false, shared.WrapError("progress", "UpdateStreak", shared.ErrServiceUnavailable, "failed to save streak", err)
	}

	t.logger.Debug("streak updated",
		logger.Int("current_streak", next.CurrentStreak),
		logger.Int("longest_streak", next.LongestStreak),
		logger.String("day", today),
	)
	return next, advanced, nil
}

// GetCurrentStreak returns the stored record with StreakActive evaluated for today.
// It never writes.
func (t *StreakTracker) GetCurrentStreak(ctx context.Context) (progress.StreakRecord, error) {
	rec, err := t.load(ctx)
	if err != nil {
		return progress.StreakRecord{}, err
	}
	now := t.clock.Now()
	return rec.Evaluate(timeutil.DayKey(now, t.loc), timeutil.PreviousDayKey(now, t.loc)), nil
}

func (t *StreakTracker) load(ctx context.Context) (progress.StreakRecord, error) {
	var rec progress.StreakRecord
	found, err := kv.GetJSON(ctx, t.store, kv.KeyLearningStreak, &rec)
	if err != nil {
		if found {
			return progress.StreakRecord{}, shared.WrapError("progress", "Streak", shared.ErrInvalidFormat, "stored streak is corrupt", err)
		}
		return progress.StreakRecord{}, shared.WrapError("progress", "Streak", shared.ErrServiceUnavailable, "failed to load streak", err)
	}
	if !found {
		return progress.StreakRecord{}, nil
	}
	if _, perr := timeutil.ParseDayKey(rec.LastActivityDate, t.loc); rec.LastActivityDate != "" && perr != nil {
		return progress.StreakRecord{}, shared.WrapError("progress", "Streak", shared.ErrInvalidFormat, "stored streak is corrupt", perr)
	}
	return rec, nil
}
