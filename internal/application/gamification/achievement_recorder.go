package gamification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT RECORDER
// Appends milestone records to the userAchievements log. A record of the same
// kind whose title matches within DedupWindow is not written again, so bursts
// of identical checks record once.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRecorder checks milestones and appends achievements.
type AchievementRecorder struct {
	store  kv.Store
	clock  timeutil.Clock
	newID  func() string
	logger *logger.Logger

	mu sync.Mutex
}

// RecorderOption configures an AchievementRecorder.
type RecorderOption func(*AchievementRecorder)

// WithIDGenerator replaces uuid generation. Tests use it for stable ids.
func WithIDGenerator(fn func() string) RecorderOption {
	return func(r *AchievementRecorder) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewAchievementRecorder creates a recorder over a learner-scoped store.
func NewAchievementRecorder(store kv.Store, clock timeutil.Clock, log *logger.Logger, opts ...RecorderOption) *AchievementRecorder {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &AchievementRecorder{
		store:  store,
		clock:  clock,
		newID:  uuid.NewString,
		logger: log.With(logger.Component("achievement_recorder")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckCourseCompletion records a course achievement once every lesson is done.
func (r *AchievementRecorder) CheckCourseCompletion(ctx context.Context, courseID, courseTitle string, completed, total int) (*progress.Achievement, error) {
	if total <= 0 || completed < total {
		return nil, nil
	}
	if courseTitle == "" {
		courseTitle = courseID
	}
	return r.record(ctx, progress.Achievement{
		Kind:        progress.KindCourse,
		Title:       "Course Completed: " + courseTitle,
		Description: fmt.Sprintf("You finished all %d lessons of %s", total, courseTitle),
		Icon:        "🎓",
	})
}

// CheckXPMilestone records the highest XP milestone crossed between previous and current.
func (r *AchievementRecorder) CheckXPMilestone(ctx context.Context, previousXP, currentXP int) (*progress.Achievement, error) {
	m, ok := progress.HighestCrossed(progress.XPMilestones, previousXP, currentXP)
	if !ok {
		return nil, nil
	}
	return r.record(ctx, progress.Achievement{
		Kind:        progress.KindXP,
		Title:       fmt.Sprintf("%d XP Milestone", m),
		Description: fmt.Sprintf("You earned %d XP", m),
		Icon:        "⭐",
	})
}

// CheckLevelUp records reaching a higher tier.
func (r *AchievementRecorder) CheckLevelUp(ctx context.Context, previous, current course.LevelTier) (*progress.Achievement, error) {
	if current.Number <= previous.Number {
		return nil, nil
	}
	return r.record(ctx, progress.Achievement{
		Kind:        progress.KindLevel,
		Title:       "Level Up: " + current.Name,
		Description: fmt.Sprintf("You reached level %d, %s", current.Number, current.Name),
		Icon:        current.Icon,
	})
}

// CheckStreakAchievement records a streak that sits exactly on a milestone.
func (r *AchievementRecorder) CheckStreakAchievement(ctx context.Context, streakDays int) (*progress.Achievement, error) {
	if !progress.IsStreakMilestone(streakDays) {
		return nil, nil
	}
	return r.record(ctx, progress.Achievement{
		Kind:        progress.KindStreak,
		Title:       fmt.Sprintf("%d-Day Streak", streakDays),
		Description: fmt.Sprintf("You learned %d days in a row", streakDays),
		Icon:        "🔥",
	})
}

// CheckCommissionMilestone records the highest earnings milestone crossed. Amounts are cents.
func (r *AchievementRecorder) CheckCommissionMilestone(ctx context.Context, previousCents, currentCents int64) (*progress.Achievement, error) {
	m, ok := progress.HighestCrossed64(progress.CommissionMilestones, previousCents, currentCents)
	if !ok {
		return nil, nil
	}
	dollars := formatDollars(m)
	return r.record(ctx, progress.Achievement{
		Kind:        progress.KindCommission,
		Title:       "Commission Milestone: " + dollars,
		Description: "You earned " + dollars + " in affiliate commissions",
		Icon:        "💰",
	})
}

// GetRecentAchievements returns the RecentLimit newest records, newest first,
// with IsNew and TimeAgo computed for now.
func (r *AchievementRecorder) GetRecentAchievements(ctx context.Context) ([]progress.View, error) {
	log, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return log.Recent(progress.RecentLimit, r.clock.Now(), timeutil.FormatRelative), nil
}

// record appends a unless it is a duplicate. It returns nil for duplicates.
func (r *AchievementRecorder) record(ctx context.Context, a progress.Achievement) (*progress.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log, err := r.load(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidFormat) {
			return nil, err
		}
		r.logger.Warn("resetting corrupt achievement log", logger.Err(err))
		log = nil
	}

	now := r.clock.Now()
	if log.IsDuplicate(a.Kind, a.Title, now) {
		r.logger.Debug("duplicate achievement suppressed",
			logger.String("kind", string(a.Kind)),
			logger.String("title", a.Title),
		)
		return nil, nil
	}

	a.ID = r.newID()
	a.Timestamp = now
	log = log.Append(a)

	if err := kv.SetJSON(ctx, r.store, kv.KeyUserAchievements, log); err != nil {
		return nil, shared.WrapError("progress", "RecordAchievement", shared.ErrServiceUnavailable, "failed to save achievements", err)
	}

	r.logger.Info("achievement unlocked",
		logger.String("kind", string(a.Kind)),
		logger.String("title", a.Title),
	)
	return &a, nil
}

func (r *AchievementRecorder) load(ctx context.Context) (progress.Log, error) {
	var log progress.Log
	found, err := kv.GetJSON(ctx, r.store, kv.KeyUserAchievements, &log)
	if err != nil {
		if found {
			return nil, shared.WrapError("progress", "LoadAchievements", shared.ErrInvalidFormat, "stored achievements are corrupt", err)
		}
		return nil, shared.WrapError("progress", "LoadAchievements", shared.ErrServiceUnavailable, "failed to load achievements", err)
	}
	return log, nil
}

// formatDollars renders cents as whole dollars with thousands separators.
func formatDollars(cents int64) string {
	return "$" + humanize.Comma(cents/100)
}
