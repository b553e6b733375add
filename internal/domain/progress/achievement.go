package progress

import (
	"sort"
	"strings"
	"time"
)

// Kind classifies achievements.
type Kind string

const (
	KindCourse     Kind = "course"
	KindXP         Kind = "xp"
	KindStreak     Kind = "streak"
	KindLevel      Kind = "level"
	KindCommission Kind = "commission"
)

const (
	// DedupWindow suppresses a repeated (kind, title) record.
	DedupWindow = 60 * time.Second
	// NewWindow is how long an achievement is flagged as new.
	NewWindow = 24 * time.Hour
	// MaxStored caps the persisted log; the oldest entries are dropped.
	MaxStored = 100
	// RecentLimit is the size of the recent feed.
	RecentLimit = 10
)

// Milestone tables.
var (
	XPMilestones         = []int{100, 500, 1000, 2500, 5000, 10000}
	StreakMilestones     = []int{3, 7, 14, 30, 60, 100}
	CommissionMilestones = []int64{10_000, 50_000, 100_000, 500_000, 1_000_000} // cents
)

// Achievement is a persisted milestone record.
type Achievement struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// View is the read model. IsNew and TimeAgo are recomputed on every read.
type View struct {
	Achievement
	IsNew   bool   `json:"isNew"`
	TimeAgo string `json:"timeAgo"`
}

// Log is the persisted achievement list, oldest first.
type Log []Achievement

// IsDuplicate reports whether an entry of the same kind whose title contains
// title was recorded less than DedupWindow before now.
func (l Log) IsDuplicate(kind Kind, title string, now time.Time) bool {
	for i := len(l) - 1; i >= 0; i-- {
		a := l[i]
		if a.Kind != kind || !strings.Contains(a.Title, title) {
			continue
		}
		if now.Sub(a.Timestamp) < DedupWindow {
			return true
		}
	}
	return false
}

// Append adds a and trims the log to MaxStored entries.
func (l Log) Append(a Achievement) Log {
	l = append(l, a)
	if len(l) > MaxStored {
		l = append(Log(nil), l[len(l)-MaxStored:]...)
	}
	return l
}

// Recent returns up to limit newest entries with derived fields filled in.
func (l Log) Recent(limit int, now time.Time, timeAgo func(t, now time.Time) string) []View {
	sorted := append(Log(nil), l...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	views := make([]View, 0, len(sorted))
	for _, a := range sorted {
		views = append(views, View{
			Achievement: a,
			IsNew:       now.Sub(a.Timestamp) < NewWindow,
			TimeAgo:     timeAgo(a.Timestamp, now),
		})
	}
	return views
}

// HighestCrossed returns the largest milestone m with previous < m <= current.
func HighestCrossed(milestones []int, previous, current int) (int, bool) {
	found, ok := 0, false
	for _, m := range milestones {
		if previous < m && current >= m {
			found, ok = m, true
		}
	}
	return found, ok
}

// HighestCrossed64 is HighestCrossed for int64 amounts.
func HighestCrossed64(milestones []int64, previous, current int64) (int64, bool) {
	var found int64
	ok := false
	for _, m := range milestones {
		if previous < m && current >= m {
			found, ok = m, true
		}
	}
	return found, ok
}

// IsStreakMilestone reports whether days is exactly one of StreakMilestones.
func IsStreakMilestone(days int) bool {
	for _, m := range StreakMilestones {
		if days == m {
			return true
		}
	}
	return false
}
