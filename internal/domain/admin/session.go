// Package admin models back-office sessions and role-based capabilities.
package admin

import (
	"time"

	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// DefaultSessionTTL is the canonical admin session lifetime, counted from login.
const DefaultSessionTTL = 8 * time.Hour

// DefaultInactivityLimit ends a session that has seen no activity for this long.
const DefaultInactivityLimit = time.Hour

// Policy bundles the session timing rules.
type Policy struct {
	TTL             time.Duration
	InactivityLimit time.Duration
}

// DefaultPolicy returns the default timing rules.
func DefaultPolicy() Policy {
	return Policy{TTL: DefaultSessionTTL, InactivityLimit: DefaultInactivityLimit}
}

// User is the identity carried by a session.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Role        Role   `json:"role"`
}

// Session is an authenticated admin session.
type Session struct {
	ID            string    `json:"sessionId"`
	User          User      `json:"user"`
	LoginTime     time.Time `json:"loginTime"`
	SessionExpiry time.Time `json:"sessionExpiry"`
	LastActivity  time.Time `json:"lastActivity"`
}

// Grant is what a successful login or refresh hands back to the client.
type Grant struct {
	Token   string  `json:"token"`
	Session Session `json:"session"`
}

// NewSession starts a session at now.
func NewSession(id string, user User, now time.Time, p Policy) Session {
	return Session{
		ID:            id,
		User:          user,
		LoginTime:     now,
		SessionExpiry: now.Add(p.TTL),
		LastActivity:  now,
	}
}

// Check returns nil while the session is usable at now.
func (s Session) Check(now time.Time, p Policy) error {
	if s.LoginTime.IsZero() {
		return shared.ErrNoSession
	}
	if now.Sub(s.LoginTime) >= p.TTL || !now.Before(s.SessionExpiry) {
		return shared.ErrSessionExpired
	}
	if p.InactivityLimit > 0 && now.Sub(s.LastActivity) > p.InactivityLimit {
		return shared.ErrSessionInactive
	}
	return nil
}

// Touch records activity at now.
func (s Session) Touch(now time.Time) Session {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	return s
}

// Refresh extends expiry to now+TTL without moving LoginTime past the hard limit.
// The hard limit stays LoginTime+TTL so refresh cannot keep a session alive forever.
func (s Session) Refresh(now time.Time, p Policy) Session {
	s = s.Touch(now)
	hard := s.LoginTime.Add(p.TTL)
	exp := now.Add(p.TTL)
	if exp.After(hard) {
		exp = hard
	}
	s.SessionExpiry = exp
	return s
}

// Remaining returns time left before expiry, 0 if expired.
func (s Session) Remaining(now time.Time) time.Duration {
	d := s.SessionExpiry.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
