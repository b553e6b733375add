// Package jobs contains the periodic jobs run by the scheduler.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/learnpath/academy-hub/internal/application/guard"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION POLL JOB
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSessionPollInterval is how often an open admin session is refreshed.
const DefaultSessionPollInterval = 5 * time.Minute

// Revalidator is the part of the session guard the poll needs.
type Revalidator interface {
	Revalidate(ctx context.Context) guard.Decision
}

// SessionPollJob refreshes the admin session on a fixed interval. When the
// guard rejects the session the job reports the redirect through OnEnded
// and stays quiet on later runs until a new login.
type SessionPollJob struct {
	guard   Revalidator
	logger  *logger.Logger
	onEnded func(guard.Decision)

	mu    sync.Mutex
	ended bool
	last  guard.Decision
}

// NewSessionPollJob creates the poll. onEnded may be nil.
func NewSessionPollJob(g Revalidator, log *logger.Logger, onEnded func(guard.Decision)) *SessionPollJob {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionPollJob{
		guard:   g,
		logger:  log.With(logger.Component("session_poll")),
		onEnded: onEnded,
	}
}

func (j *SessionPollJob) Name() string { return "session_poll" }

func (j *SessionPollJob) Description() string {
	return "Refreshes the admin session and ends it when the server refuses"
}

// Run performs one revalidation. A rejected session is not a job failure.
func (j *SessionPollJob) Run(ctx context.Context) error {
	j.mu.Lock()
	if j.ended {
		j.mu.Unlock()
		return nil
	}
	j.mu.Unlock()

	d := j.guard.Revalidate(ctx)

	j.mu.Lock()
	j.last = d
	if !d.Allowed {
		j.ended = true
	}
	j.mu.Unlock()

	if d.Allowed {
		j.logger.Debug("admin session refreshed")
		return nil
	}
	j.logger.Info("admin session ended", logger.String("redirect", d.Redirect), logger.Err(d.Reason))
	if j.onEnded != nil {
		j.onEnded(d)
	}
	return nil
}

// Reset re-arms the poll after a new login.
func (j *SessionPollJob) Reset() {
	j.mu.Lock()
	j.ended = false
	j.last = guard.Decision{}
	j.mu.Unlock()
}

// Ended reports whether the last run closed the session.
func (j *SessionPollJob) Ended() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ended
}

// LastDecision returns the outcome of the most recent run.
func (j *SessionPollJob) LastDecision() guard.Decision {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}
