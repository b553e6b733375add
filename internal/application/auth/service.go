// Package auth is the server side of admin sessions: credential checks,
// signed session tokens and a revocable session registry.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH SERVICE
// Tokens are HS256 JWTs whose jti is the session id. The session itself lives
// in the KV registry under SessionKey(id), so deleting the record revokes the
// token even before it expires.
// ══════════════════════════════════════════════════════════════════════════════

const sessionKeyPrefix = "admin:session:"

// SessionKey is the registry key of a session id.
func SessionKey(id string) string { return sessionKeyPrefix + id }

// Options configures the service.
type Options struct {
	Policy admin.Policy
	Secret []byte
	Issuer string
}

// Service implements login, validate, refresh and logout.
type Service struct {
	creds     CredentialStore
	sessions  kv.Store
	clock     timeutil.Clock
	opts      Options
	publisher shared.EventPublisher
	newID     func() string
	logger    *logger.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithPublisher emits AdminSessionEvent on lifecycle changes.
func WithPublisher(p shared.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithSessionIDGenerator replaces uuid session ids.
func WithSessionIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService creates the auth service. The signing secret is required.
func NewService(creds CredentialStore, sessions kv.Store, clock timeutil.Clock, opts Options, log *logger.Logger, options ...Option) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if opts.Policy.TTL <= 0 {
		opts.Policy.TTL = admin.DefaultSessionTTL
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		creds:    creds,
		sessions: sessions,
		clock:    clock,
		opts:     opts,
		newID:    uuid.NewString,
		logger:   log.With(logger.Component("auth")),
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Policy returns the session timing rules in force.
func (s *Service) Policy() admin.Policy { return s.opts.Policy }

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (admin.Grant, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return admin.Grant{}, shared.ErrInvalidCredentials
	}

	cred, err := s.creds.FindByUsername(ctx, username)
	if err != nil {
		if !shared.IsNotFound(err) {
			return admin.Grant{}, shared.WrapError("admin", "Login", shared.ErrServiceUnavailable, "credential lookup failed", err)
		}
		checkPassword("", password)
		s.logger.Warn("login for unknown admin", logger.String("username", username))
		return admin.Grant{}, shared.ErrInvalidCredentials
	}
	if !checkPassword(cred.PasswordHash, password) {
		s.logger.Warn("login with wrong password", logger.UserID(cred.UserID))
		return admin.Grant{}, shared.ErrInvalidCredentials
	}
	if !cred.Role.IsValid() {
		return admin.Grant{}, shared.ErrUnknownRole
	}

	now := s.clock.Now()
	sess := admin.NewSession(s.newID(), cred.User(), now, s.opts.Policy)
	grant, err := s.issue(ctx, sess)
	if err != nil {
		return admin.Grant{}, err
	}

	s.logger.Info("admin logged in",
		logger.UserID(sess.User.ID),
		logger.String("session_id", sess.ID),
		logger.String("role", string(sess.User.Role)),
	)
	s.publish(ctx, shared.EventAdminLoggedIn, sess, "")
	return grant, nil
}

// Validate returns the live session behind token and records activity.
// Expired or inactive sessions are removed from the registry.
func (s *Service) Validate(ctx context.Context, token string) (admin.Session, error) {
	sess, err := s.authenticate(ctx, token)
	if err != nil {
		return admin.Session{}, err
	}
	sess = sess.Touch(s.clock.Now())
	if err := s.save(ctx, sess); err != nil {
		return admin.Session{}, err
	}
	return sess, nil
}

// Refresh extends the session and returns a new token for it.
func (s *Service) Refresh(ctx context.Context, token string) (admin.Grant, error) {
	sess, err := s.authenticate(ctx, token)
	if err != nil {
		return admin.Grant{}, err
	}
	sess = sess.Refresh(s.clock.Now(), s.opts.Policy)
	return s.issue(ctx, sess)
}

// Logout revokes the session behind token. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	c, err := s.parse(token, false)
	if err != nil {
		return err
	}
	var sess admin.Session
	found, err := kv.GetJSON(ctx, s.sessions, SessionKey(c.ID), &sess)
	if err != nil && !found {
		return shared.WrapError("admin", "Logout", shared.ErrServiceUnavailable, "session registry unavailable", err)
	}
	if err := s.sessions.Remove(ctx, SessionKey(c.ID)); err != nil {
		return shared.WrapError("admin", "Logout", shared.ErrServiceUnavailable, "session registry unavailable", err)
	}
	if found {
		s.logger.Info("admin logged out", logger.UserID(c.Subject), logger.String("session_id", c.ID))
		s.publish(ctx, shared.EventAdminLoggedOut, sess, "")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

type claims struct {
	Username string     `json:"username"`
	Role     admin.Role `json:"role"`
	jwt.RegisteredClaims
}

func (s *Service) authenticate(ctx context.Context, token string) (admin.Session, error) {
	c, err := s.parse(token, true)
	if err != nil {
		if c != nil && errors.Is(err, shared.ErrSessionExpired) {
			s.close(ctx, c.ID, "token expired")
		}
		return admin.Session{}, err
	}

	var sess admin.Session
	found, err := kv.GetJSON(ctx, s.sessions, SessionKey(c.ID), &sess)
	if err != nil {
		if found {
			s.close(ctx, c.ID, "corrupt session record")
			return admin.Session{}, shared.WrapError("admin", "Validate", shared.ErrUnauthorized, "session revoked", err)
		}
		return admin.Session{}, shared.WrapError("admin", "Validate", shared.ErrServiceUnavailable, "session registry unavailable", err)
	}
	if !found {
		return admin.Session{}, shared.ErrSessionRevoked
	}
	if sess.ID != c.ID || sess.User.ID != c.Subject {
		return admin.Session{}, shared.ErrInvalidToken
	}

	if err := sess.Check(s.clock.Now(), s.opts.Policy); err != nil {
		reason := "expired"
		if errors.Is(err, shared.ErrSessionInactive) {
			reason = "inactive"
		}
		s.close(ctx, sess.ID, reason)
		return admin.Session{}, err
	}
	return sess, nil
}

// parse verifies the token signature. With validate=false expiry is ignored,
// which Logout uses so an expired token can still end its session.
// On expiry the parsed claims are returned with the error.
func (s *Service) parse(token string, validate bool) (*claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, shared.ErrNoSession
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.Issuer))
	}
	if !validate {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, opts...)
	if err != nil {
		if validate && errors.Is(err, jwt.ErrTokenExpired) {
			if signed, verr := s.parse(token, false); verr == nil {
				return signed, shared.ErrSessionExpired
			}
		}
		return nil, shared.WrapError("admin", "Validate", shared.ErrUnauthorized, "invalid session token", err)
	}
	if c.ID == "" || c.Subject == "" {
		return nil, shared.ErrInvalidToken
	}
	return c, nil
}

func (s *Service) issue(ctx context.Context, sess admin.Session) (admin.Grant, error) {
	if err := s.save(ctx, sess); err != nil {
		return admin.Grant{}, err
	}
	c := claims{
		Username: sess.User.Username,
		Role:     sess.User.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.User.ID,
			Issuer:    s.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
			ExpiresAt: jwt.NewNumericDate(sess.SessionExpiry),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.opts.Secret)
	if err != nil {
		return admin.Grant{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return admin.Grant{Token: token, Session: sess}, nil
}

func (s *Service) save(ctx context.Context, sess admin.Session) error {
	ttl := sess.Remaining(s.clock.Now())
	if ttl <= 0 {
		return shared.ErrSessionExpired
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("auth: encode session: %w", err)
	}
	if err := kv.SetWithTTL(ctx, s.sessions, SessionKey(sess.ID), string(data), ttl); err != nil {
		return shared.WrapError("admin", "SaveSession", shared.ErrServiceUnavailable, "session registry unavailable", err)
	}
	return nil
}

func (s *Service) close(ctx context.Context, id, reason string) {
	var sess admin.Session
	found, _ := kv.GetJSON(ctx, s.sessions, SessionKey(id), &sess)
	if err := s.sessions.Remove(ctx, SessionKey(id)); err != nil {
		s.logger.Warn("failed to remove session", logger.String("session_id", id), logger.Err(err))
		return
	}
	if !found {
		return
	}
	s.logger.Info("admin session closed", logger.String("session_id", id), logger.String("reason", reason))
	s.publish(ctx, shared.EventAdminSessionClosed, sess, reason)
}

func (s *Service) publish(ctx context.Context, t shared.EventType, sess admin.Session, reason string) {
	if s.publisher == nil {
		return
	}
	e := shared.NewAdminSessionEvent(t, sess.User.ID, sess.ID, reason, s.clock.Now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish session event", logger.Err(err))
	}
}
