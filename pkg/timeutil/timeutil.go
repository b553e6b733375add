// Package timeutil provides the clock abstraction and calendar-day helpers used
// by streaks, achievements and sessions. Day boundaries are computed in a
// configurable location so a learner's "today" does not drift with server UTC.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// FormatDate is the calendar day key format (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// FormatCalendar is used for ages of a week or more.
const FormatCalendar = "Jan 2, 2006"

// Clock abstracts time.Now so services can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock whose time only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock set to t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// LoadLocation resolves an IANA zone name, falling back to UTC on error or empty input.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// DayKey formats t as the YYYY-MM-DD calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(FormatDate)
}

// PreviousDayKey returns the calendar day before t in loc.
func PreviousDayKey(t time.Time, loc *time.Location) string {
	return StartOfDay(t, loc).AddDate(0, 0, -1).Format(FormatDate)
}

// ParseDayKey parses a YYYY-MM-DD key in loc.
func ParseDayKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(FormatDate, key, loc)
}

// DaysBetweenKeys returns the signed number of calendar days from a to b.
func DaysBetweenKeys(a, b string) (int, error) {
	ta, err := time.Parse(FormatDate, a)
	if err != nil {
		return 0, fmt.Errorf("parse day key %q: %w", a, err)
	}
	tb, err := time.Parse(FormatDate, b)
	if err != nil {
		return 0, fmt.Errorf("parse day key %q: %w", b, err)
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// FormatRelative renders the age of t relative to now:
// "Just now" under a minute, then minutes, hours, days, and a calendar date after a week.
func FormatRelative(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format(FormatCalendar)
	}
}

// UnixMilli returns t in milliseconds since the epoch.
func UnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}
