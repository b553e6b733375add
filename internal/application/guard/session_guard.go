// Package guard holds the client side of admin access: the session guard that
// mirrors the server session into local storage and gates routes, and the
// navigation helper that performs the resulting route transitions.
package guard

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION GUARD
// Fails closed: any validation or refresh failure, including a network error,
// clears the local session keys and redirects to the login page.
// ══════════════════════════════════════════════════════════════════════════════

// Redirect targets.
const (
	LoginPath = "/admin/login"
	AdminHome = "/admin"

	RedirectInvalid   = LoginPath + "?security=invalid"
	RedirectExpired   = LoginPath + "?expired=true"
	RedirectForbidden = AdminHome + "?security=forbidden"
)

// SessionKeys are the local keys owned by the guard.
var SessionKeys = []string{kv.KeyAdminSession, kv.KeyAdminLoginTime, kv.KeyAdminUser, kv.KeyAuthToken}

// AuthAPI is the server side of admin sessions.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (admin.Grant, error)
	Validate(ctx context.Context, token string) (admin.Session, error)
	Refresh(ctx context.Context, token string) (admin.Grant, error)
	Logout(ctx context.Context, token string) error
}

// Decision is the outcome of a guard check.
type Decision struct {
	Allowed bool
	// Redirect is set when Allowed is false.
	Redirect string
	// Cleared reports whether local session state was wiped.
	Cleared bool
	Session *admin.Session
	Reason  error
}

// SessionGuard gates admin routes for one client.
type SessionGuard struct {
	api    AuthAPI
	store  kv.Store
	clock  timeutil.Clock
	policy admin.Policy
	logger *logger.Logger

	mu   sync.Mutex
	caps map[string]admin.CapabilitySet
}

// NewSessionGuard creates a guard over the client's local store.
func NewSessionGuard(api AuthAPI, store kv.Store, clock timeutil.Clock, policy admin.Policy, log *logger.Logger) *SessionGuard {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if policy.TTL <= 0 {
		policy.TTL = admin.DefaultSessionTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SessionGuard{
		api:    api,
		store:  store,
		clock:  clock,
		policy: policy,
		logger: log.With(logger.Component("session_guard")),
		caps:   make(map[string]admin.CapabilitySet),
	}
}

// Login authenticates against the server and stores the session locally.
func (g *SessionGuard) Login(ctx context.Context, username, password string) (admin.Session, error) {
	grant, err := g.api.Login(ctx, username, password)
	if err != nil {
		return admin.Session{}, err
	}
	if err := g.persist(ctx, grant.Token, grant.Session); err != nil {
		_ = kv.RemoveAll(ctx, g.store, SessionKeys...)
		return admin.Session{}, err
	}
	g.logger.Info("admin session started", logger.UserID(grant.Session.User.ID))
	return grant.Session, nil
}

// Logout ends the session on the server and clears local state.
// The local state is cleared even when the server call fails.
func (g *SessionGuard) Logout(ctx context.Context) error {
	token, _, err := g.store.Get(ctx, kv.KeyAuthToken)
	if err == nil && token != "" {
		if err := g.api.Logout(ctx, token); err != nil {
			g.logger.Warn("server logout failed", logger.Err(err))
		}
	}
	return g.clear(ctx)
}

// CheckSession reports whether the locally stored login is younger than the
// session TTL. It reads only local state and changes nothing.
func (g *SessionGuard) CheckSession(ctx context.Context) bool {
	raw, ok, err := g.store.Get(ctx, kv.KeyAdminLoginTime)
	if err != nil || !ok {
		return false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return g.clock.Now().Sub(time.UnixMilli(ms)) < g.policy.TTL
}

// Touch records local activity on the mirrored session.
func (g *SessionGuard) Touch(ctx context.Context) error {
	var sess admin.Session
	found, err := kv.GetJSON(ctx, g.store, kv.KeyAdminSession, &sess)
	if err != nil || !found {
		return err
	}
	return kv.SetJSON(ctx, g.store, kv.KeyAdminSession, sess.Touch(g.clock.Now()))
}

// CurrentUser returns the mirrored admin identity, if any.
func (g *SessionGuard) CurrentUser(ctx context.Context) (admin.User, bool) {
	var u admin.User
	found, err := kv.GetJSON(ctx, g.store, kv.KeyAdminUser, &u)
	if err != nil || !found {
		return admin.User{}, false
	}
	return u, true
}

// Revalidate is the body of the periodic session poll. A locally expired
// session or a failed server refresh ends the session with ?expired=true.
func (g *SessionGuard) Revalidate(ctx context.Context) Decision {
	if !g.CheckSession(ctx) {
		return g.failClosed(ctx, RedirectExpired, shared.ErrSessionExpired)
	}
	token, ok, err := g.store.Get(ctx, kv.KeyAuthToken)
	if err != nil || !ok || token == "" {
		return g.failClosed(ctx, RedirectExpired, errors.Join(shared.ErrNoSession, err))
	}

	grant, err := g.api.Refresh(ctx, token)
	if err != nil {
		return g.failClosed(ctx, RedirectExpired, err)
	}
	if err := g.persist(ctx, grant.Token, grant.Session); err != nil {
		return g.failClosed(ctx, RedirectExpired, err)
	}
	return Decision{Allowed: true, Session: &grant.Session}
}

// Authorize is the route guard. The server validates the session first; a
// failure there ends the session with ?security=invalid. A valid session
// whose role lacks capability is sent to ?security=forbidden and kept.
// An empty capability only requires a valid session.
func (g *SessionGuard) Authorize(ctx context.Context, capability admin.Capability) Decision {
	if !g.CheckSession(ctx) {
		return g.failClosed(ctx, RedirectExpired, shared.ErrSessionExpired)
	}
	token, ok, err := g.store.Get(ctx, kv.KeyAuthToken)
	if err != nil || !ok || token == "" {
		return g.failClosed(ctx, RedirectInvalid, errors.Join(shared.ErrNoSession, err))
	}

	sess, err := g.api.Validate(ctx, token)
	if err != nil {
		return g.failClosed(ctx, RedirectInvalid, err)
	}
	if err := g.mirror(ctx, sess); err != nil {
		return g.failClosed(ctx, RedirectInvalid, err)
	}

	if capability == "" {
		return Decision{Allowed: true, Session: &sess}
	}
	caps, err := g.capabilities(sess)
	if err != nil || !caps.Has(capability) {
		if err == nil {
			err = shared.ErrMissingCapability
		}
		g.logger.Warn("admin route forbidden",
			logger.UserID(sess.User.ID),
			logger.String("role", string(sess.User.Role)),
			logger.String("capability", string(capability)),
		)
		return Decision{Redirect: RedirectForbidden, Session: &sess, Reason: err}
	}
	return Decision{Allowed: true, Session: &sess}
}

// AuthorizeRoute guards an admin page by its path. Paths outside /admin are
// refused without touching the session.
func (g *SessionGuard) AuthorizeRoute(ctx context.Context, path string) Decision {
	capability, ok := admin.RouteCapability(path)
	if !ok {
		return Decision{Redirect: RedirectForbidden, Reason: shared.ErrForbidden}
	}
	return g.Authorize(ctx, capability)
}

// capabilities resolves the role once per session id.
func (g *SessionGuard) capabilities(sess admin.Session) (admin.CapabilitySet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caps, ok := g.caps[sess.ID]; ok {
		return caps, nil
	}
	caps, err := sess.User.Role.Capabilities()
	if err != nil {
		return nil, err
	}
	g.caps[sess.ID] = caps
	return caps, nil
}

func (g *SessionGuard) failClosed(ctx context.Context, redirect string, reason error) Decision {
	g.logger.Warn("admin session rejected", logger.String("redirect", redirect), logger.Err(reason))
	cleared := true
	if err := g.clear(ctx); err != nil {
		g.logger.Error("failed to clear admin session", logger.Err(err))
		cleared = false
	}
	return Decision{Redirect: redirect, Cleared: cleared, Reason: reason}
}

func (g *SessionGuard) clear(ctx context.Context) error {
	g.mu.Lock()
	g.caps = make(map[string]admin.CapabilitySet)
	g.mu.Unlock()
	return kv.RemoveAll(ctx, g.store, SessionKeys...)
}

func (g *SessionGuard) persist(ctx context.Context, token string, sess admin.Session) error {
	if err := g.store.Set(ctx, kv.KeyAuthToken, token); err != nil {
		return err
	}
	if err := g.store.Set(ctx, kv.KeyAdminLoginTime, strconv.FormatInt(sess.LoginTime.UnixMilli(), 10)); err != nil {
		return err
	}
	return g.mirror(ctx, sess)
}

func (g *SessionGuard) mirror(ctx context.Context, sess admin.Session) error {
	if err := kv.SetJSON(ctx, g.store, kv.KeyAdminSession, sess); err != nil {
		return err
	}
	return kv.SetJSON(ctx, g.store, kv.KeyAdminUser, sess.User)
}
