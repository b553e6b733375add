package progress

// StreakRecord is the persisted daily learning streak.
// Dates are YYYY-MM-DD keys in the learner's time zone and compare as strings.
type StreakRecord struct {
	CurrentStreak    int    `json:"currentStreak"`
	LongestStreak    int    `json:"longestStreak"`
	LastActivityDate string `json:"lastActivityDate"`
	StreakActive     bool   `json:"streakActive"`
}

// IsZero reports whether no activity was ever recorded.
func (r StreakRecord) IsZero() bool {
	return r.LastActivityDate == ""
}

// RecordActivity applies a lesson completion on day today.
//
//	no record            -> 1
//	last == today        -> unchanged
//	last == yesterday    -> +1
//	anything else        -> reset to 1
//
// LongestStreak never decreases.
func (r StreakRecord) RecordActivity(today, yesterday string) StreakRecord {
	switch {
	case r.IsZero():
		r.CurrentStreak = 1
	case r.LastActivityDate == today:
		r.StreakActive = true
		if r.CurrentStreak < 1 {
			r.CurrentStreak = 1
		}
		if r.LongestStreak < r.CurrentStreak {
			r.LongestStreak = r.CurrentStreak
		}
		return r
	case r.LastActivityDate == yesterday:
		r.CurrentStreak++
	default:
		r.CurrentStreak = 1
	}
	if r.CurrentStreak > r.LongestStreak {
		r.LongestStreak = r.CurrentStreak
	}
	r.LastActivityDate = today
	r.StreakActive = true
	return r
}

// Evaluate is the read view: the counter is untouched, StreakActive is false
// once a full day has passed without activity.
func (r StreakRecord) Evaluate(today, yesterday string) StreakRecord {
	r.StreakActive = !r.IsZero() && (r.LastActivityDate == today || r.LastActivityDate == yesterday)
	return r
}

// EffectiveDays is the streak length shown to the learner, 0 when broken.
func (r StreakRecord) EffectiveDays() int {
	if !r.StreakActive {
		return 0
	}
	return r.CurrentStreak
}
