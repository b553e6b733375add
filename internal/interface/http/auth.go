package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/interface/http/handlers"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH WIRE TYPES
// The /api/auth bodies are flat (no envelope): each endpoint sets its own
// flag, success for login and logout, valid for validate, refreshed for refresh.
// ══════════════════════════════════════════════════════════════════════════════

// LoginRequest is the login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the body of every /api/auth endpoint.
type AuthResponse struct {
	Success   bool           `json:"success"`
	Valid     bool           `json:"valid"`
	Refreshed bool           `json:"refreshed"`
	Token     string         `json:"token,omitempty"`
	User      *admin.User    `json:"user,omitempty"`
	Session   *admin.Session `json:"session,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func writeAuth(w http.ResponseWriter, status int, body AuthResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// authStatus maps an auth failure onto 401, 503 or 500.
func authStatus(err error) int {
	switch {
	case shared.IsAuth(err):
		return http.StatusUnauthorized
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleLogin handles POST /api/auth/login. JSON and form bodies are accepted.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAuth(w, http.StatusBadRequest, AuthResponse{Error: "malformed request body"})
			return
		}
	} else {
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}

	grant, err := s.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		status := authStatus(err)
		msg := shared.ErrInvalidCredentials.Message
		if status != http.StatusUnauthorized {
			logger.FromContext(r.Context()).Error("admin login failed", logger.Err(err))
			msg = "login unavailable"
		}
		writeAuth(w, status, AuthResponse{Error: msg})
		return
	}

	s.setSessionCookie(w, grant)
	writeAuth(w, http.StatusOK, AuthResponse{
		Success: true,
		Token:   grant.Token,
		User:    &grant.Session.User,
		Session: &grant.Session,
	})
}

// handleValidate handles POST /api/auth/validate.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	token := s.sessionToken(r)
	if token == "" {
		writeAuth(w, http.StatusUnauthorized, AuthResponse{Error: shared.ErrNoSession.Message})
		return
	}
	sess, err := s.deps.Auth.Validate(r.Context(), token)
	if err != nil {
		writeAuth(w, authStatus(err), AuthResponse{Error: reason(err)})
		return
	}
	writeAuth(w, http.StatusOK, AuthResponse{Valid: true, User: &sess.User, Session: &sess})
}

// handleRefresh handles POST /api/auth/refresh. The expiry stays anchored at login.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := s.sessionToken(r)
	if token == "" {
		writeAuth(w, http.StatusUnauthorized, AuthResponse{Error: shared.ErrNoSession.Message})
		return
	}
	grant, err := s.deps.Auth.Refresh(r.Context(), token)
	if err != nil {
		s.clearSessionCookie(w)
		writeAuth(w, authStatus(err), AuthResponse{Error: reason(err)})
		return
	}
	s.setSessionCookie(w, grant)
	writeAuth(w, http.StatusOK, AuthResponse{
		Refreshed: true,
		Token:     grant.Token,
		User:      &grant.Session.User,
		Session:   &grant.Session,
	})
}

// handleLogout handles POST|GET /api/auth/logout. It succeeds without a session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	if token := s.sessionToken(r); token != "" {
		if err := s.deps.Auth.Logout(r.Context(), token); err != nil && authStatus(err) != http.StatusUnauthorized {
			writeAuth(w, authStatus(err), AuthResponse{Error: reason(err)})
			return
		}
	}
	writeAuth(w, http.StatusOK, AuthResponse{Success: true})
}

// handleCSRFToken hands browser clients the token for cookie-authenticated posts.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := handlers.CSRFToken(r)
	w.Header().Set("X-CSRF-Token", token)
	writeJSON(w, r, http.StatusOK, map[string]string{"csrfToken": token})
}

func reason(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "session rejected"
}

// sessionToken reads the bearer token, falling back to the session cookie.
func (s *Server) sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(s.config.CookieName); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) setSessionCookie(w http.ResponseWriter, grant admin.Grant) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    grant.Token,
		Path:     "/",
		Expires:  grant.Session.SessionExpiry,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN ROUTES
// ══════════════════════════════════════════════════════════════════════════════

// requireCapability validates the session with the auth service and checks
// the role's capability set. Invalid sessions get 401, missing capabilities 403.
func (s *Server) requireCapability(capability admin.Capability, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.sessionToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Admin session required")
			return
		}
		sess, err := s.deps.Auth.Validate(r.Context(), token)
		if err != nil {
			writeJSONErrorWithDetails(w, authStatus(err), "unauthorized", "Admin session rejected", reason(err))
			return
		}
		caps, err := sess.User.Role.Capabilities()
		if err != nil || !caps.Has(capability) {
			logger.FromContext(r.Context()).Warn("admin route forbidden",
				logger.UserID(sess.User.ID),
				logger.String("capability", string(capability)),
			)
			writeJSONError(w, http.StatusForbidden, "forbidden", "Missing capability "+string(capability))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeySession, sess)))
	})
}

func sessionFrom(ctx context.Context) (admin.Session, bool) {
	sess, ok := ctx.Value(contextKeySession).(admin.Session)
	return sess, ok
}

type overview struct {
	User             admin.User `json:"user"`
	Capabilities     []string   `json:"capabilities"`
	SessionExpiresAt time.Time  `json:"sessionExpiresAt"`
	Courses          int        `json:"courses"`
	Lessons          int        `json:"lessons"`
	CatalogFetches   int64      `json:"catalogFetches"`
	CatalogError     string     `json:"catalogError,omitempty"`

	Runtime map[string]any `json:"runtime,omitempty"`
}

// handleAdminOverview handles GET /api/v1/admin/overview.
func (s *Server) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	caps, _ := sess.User.Role.Capabilities()

	out := overview{
		User:             sess.User,
		Capabilities:     caps.List(),
		SessionExpiresAt: sess.SessionExpiry,
	}
	if s.deps.Catalog != nil {
		cat, err := s.deps.Catalog.Get(r.Context(), false)
		if err != nil {
			out.CatalogError = err.Error()
		}
		out.Courses = len(cat)
		out.Lessons = cat.LessonCount()
		out.CatalogFetches = s.deps.Catalog.FetchCount()
	}
	if s.deps.Runtime != nil {
		out.Runtime = s.deps.Runtime()
	}
	writeJSON(w, r, http.StatusOK, out)
}
