// Package progress holds the per-learner state that drives every derived figure:
// the append-only completion set, the streak record and the achievement log.
package progress

import (
	"encoding/json"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// CompletionState is the single source of truth for lesson completion.
// The set only grows; LastUpdateTime (unix ms) strictly increases on every add.
type CompletionState struct {
	lessons        []string
	index          map[string]struct{}
	lastUpdateTime int64
}

// NewCompletionState returns an empty state.
func NewCompletionState() *CompletionState {
	return &CompletionState{index: make(map[string]struct{})}
}

// Has reports whether lessonID is complete.
func (s *CompletionState) Has(lessonID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[lessonID]
	return ok
}

// Add marks lessonID complete. It returns false when it already was.
func (s *CompletionState) Add(lessonID string, now time.Time) bool {
	if s.Has(lessonID) {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	s.lessons = append(s.lessons, lessonID)
	s.index[lessonID] = struct{}{}

	ts := now.UnixMilli()
	if ts <= s.lastUpdateTime {
		ts = s.lastUpdateTime + 1
	}
	s.lastUpdateTime = ts
	return true
}

// Count returns the number of completed lessons.
func (s *CompletionState) Count() int {
	if s == nil {
		return 0
	}
	return len(s.lessons)
}

// LessonIDs returns completed ids in completion order.
func (s *CompletionState) LessonIDs() []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s.lessons...)
}

// LastUpdateTime returns the unix ms of the latest add, 0 if none.
func (s *CompletionState) LastUpdateTime() int64 {
	if s == nil {
		return 0
	}
	return s.lastUpdateTime
}

type completionJSON struct {
	Lessons        []string `json:"lessons"`
	LastUpdateTime int64    `json:"lastUpdateTime"`
}

// MarshalJSON implements json.Marshaler.
func (s *CompletionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(completionJSON{Lessons: s.LessonIDs(), LastUpdateTime: s.LastUpdateTime()})
}

// UnmarshalJSON implements json.Unmarshaler. Duplicate ids collapse.
func (s *CompletionState) UnmarshalJSON(data []byte) error {
	var raw completionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return shared.WrapError("progress", "Load", shared.ErrInvalidFormat, "decode completion state", err)
	}
	s.lessons = nil
	s.index = make(map[string]struct{}, len(raw.Lessons))
	for _, id := range raw.Lessons {
		if _, dup := s.index[id]; dup || id == "" {
			continue
		}
		s.lessons = append(s.lessons, id)
		s.index[id] = struct{}{}
	}
	s.lastUpdateTime = raw.LastUpdateTime
	return nil
}
