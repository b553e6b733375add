package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	today     = "2026-03-10"
	yesterday = "2026-03-09"
)

func TestStreakRecord_RecordActivity(t *testing.T) {
	tests := []struct {
		name   string
		prior  StreakRecord
		expect StreakRecord
	}{
		{
			name:   "no prior record",
			prior:  StreakRecord{},
			expect: StreakRecord{CurrentStreak: 1, LongestStreak: 1, LastActivityDate: today, StreakActive: true},
		},
		{
			name:   "continued from yesterday",
			prior:  StreakRecord{CurrentStreak: 4, LongestStreak: 4, LastActivityDate: yesterday, StreakActive: true},
			expect: StreakRecord{CurrentStreak: 5, LongestStreak: 5, LastActivityDate: today, StreakActive: true},
		},
		{
			name:   "continued below longest",
			prior:  StreakRecord{CurrentStreak: 2, LongestStreak: 9, LastActivityDate: yesterday, StreakActive: true},
			expect: StreakRecord{CurrentStreak: 3, LongestStreak: 9, LastActivityDate: today, StreakActive: true},
		},
		{
			name:   "gap of three days resets",
			prior:  StreakRecord{CurrentStreak: 6, LongestStreak: 8, LastActivityDate: "2026-03-07", StreakActive: true},
			expect: StreakRecord{CurrentStreak: 1, LongestStreak: 8, LastActivityDate: today, StreakActive: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.prior.RecordActivity(today, yesterday))
		})
	}
}

func TestStreakRecord_SameDayIsIdempotent(t *testing.T) {
	first := StreakRecord{}.RecordActivity(today, yesterday)
	second := first.RecordActivity(today, yesterday)
	assert.Equal(t, first, second)
}

func TestStreakRecord_EvaluateDoesNotTouchCounter(t *testing.T) {
	r := StreakRecord{CurrentStreak: 6, LongestStreak: 8, LastActivityDate: "2026-03-01", StreakActive: true}
	got := r.Evaluate(today, yesterday)
	assert.False(t, got.StreakActive)
	assert.Equal(t, 6, got.CurrentStreak)
	assert.Zero(t, got.EffectiveDays())

	active := StreakRecord{CurrentStreak: 2, LongestStreak: 2, LastActivityDate: yesterday}.Evaluate(today, yesterday)
	assert.True(t, active.StreakActive)
	assert.Equal(t, 2, active.EffectiveDays())
}
