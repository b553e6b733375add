// Package http implements the REST API: the /api/auth endpoints consumed by
// the admin session guard, learner progress reads and writes, the course
// catalog, and health checks.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnpath/academy-hub/internal/application/command"
	"github.com/learnpath/academy-hub/internal/application/guard"
	"github.com/learnpath/academy-hub/internal/application/query"
	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/interface/http/handlers"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the context of every request.
	RequestTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// APIKeyHeader and APIKeys protect the learner write routes. No keys means open.
	APIKeyHeader string
	APIKeys      []string

	// CookieName carries the admin session token for browser clients.
	CookieName   string
	CookieSecure bool

	// CSRFKey enables CSRF checks on cookie-authenticated requests (32 bytes).
	CSRFKey []byte

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		RequestTimeout:     10 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       64 << 10,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		APIKeyHeader:       "X-API-Key",
		CookieName:         "academy_admin",
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Gate decides whether a feature is on for a learner.
type Gate func(learnerID string) bool

// Dependencies contains everything the handlers call.
type Dependencies struct {
	Workspaces *workspace.Factory
	Catalog    *query.CatalogCache

	CompleteLesson   *command.CompleteLessonHandler
	RecordCommission *command.RecordCommissionHandler

	// Auth is the server-side session service.
	Auth guard.AuthAPI

	// FastStats serves /stats from the short-lived cache when on.
	FastStats Gate
	// Commission exposes the earnings route when on.
	Commission Gate

	// Runtime reports background counters (events, jobs) on the admin overview.
	Runtime func() map[string]any

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *logger.Logger

	apiKeys     *handlers.APIKeyAuth
	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if config.CookieName == "" {
		config.CookieName = DefaultConfig().CookieName
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = DefaultConfig().APIKeyHeader
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.FastStats == nil {
		deps.FastStats = func(string) bool { return true }
	}
	if deps.Commission == nil {
		deps.Commission = func(string) bool { return false }
	}

	s := &Server{
		config:  config,
		deps:    deps,
		router:  http.NewServeMux(),
		logger:  deps.Logger.With(logger.Component("http")),
		apiKeys: handlers.NewAPIKeyAuth(config.APIKeyHeader, config.APIKeys),
	}
	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the fully wrapped handler. Tests mount it on httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// Admin Auth
	// ─────────────────────────────────────────────────────────────────────────
	noCache := handlers.NoCacheMiddleware
	s.router.Handle("POST /api/auth/login", noCache(http.HandlerFunc(s.handleLogin)))
	s.router.Handle("POST /api/auth/validate", noCache(http.HandlerFunc(s.handleValidate)))
	s.router.Handle("POST /api/auth/refresh", noCache(http.HandlerFunc(s.handleRefresh)))
	s.router.Handle("POST /api/auth/logout", noCache(http.HandlerFunc(s.handleLogout)))
	s.router.Handle("GET /api/auth/logout", noCache(http.HandlerFunc(s.handleLogout)))
	s.router.Handle("GET /api/auth/csrf", noCache(http.HandlerFunc(s.handleCSRFToken)))

	// ─────────────────────────────────────────────────────────────────────────
	// Learner Progress
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/v1/learners/{id}/progress", noCache(http.HandlerFunc(s.handleGetProgress)))
	s.router.Handle("GET /api/v1/learners/{id}/stats", noCache(http.HandlerFunc(s.handleGetStats)))
	s.router.Handle("GET /api/v1/learners/{id}/continue", noCache(http.HandlerFunc(s.handleGetContinue)))
	s.router.Handle("GET /api/v1/learners/{id}/achievements", noCache(http.HandlerFunc(s.handleGetAchievements)))
	s.router.Handle("GET /api/v1/learners/{id}/streak", noCache(http.HandlerFunc(s.handleGetStreak)))

	writes := handlers.Chain(noCache, s.apiKeys.Middleware)
	s.router.Handle("POST /api/v1/learners/{id}/lessons/{lessonID}/complete", writes(http.HandlerFunc(s.handleCompleteLesson)))
	s.router.Handle("POST /api/v1/learners/{id}/commissions", writes(http.HandlerFunc(s.handleRecordCommission)))

	// ─────────────────────────────────────────────────────────────────────────
	// Catalog
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/v1/courses", handlers.CacheControlMiddleware(time.Minute, false)(http.HandlerFunc(s.handleListCourses)))

	// ─────────────────────────────────────────────────────────────────────────
	// Admin
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/v1/admin/overview", noCache(s.requireCapability(admin.CapViewAnalytics, http.HandlerFunc(s.handleAdminOverview))))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router; the first middleware is outermost.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	chain := []handlers.MiddlewareFunc{
		s.recoveryMiddleware,
		s.requestIDMiddleware,
		s.loggingMiddleware,
	}
	if s.config.EnableCORS {
		chain = append(chain, s.corsMiddleware)
	}
	if s.rateLimiter != nil {
		chain = append(chain, s.rateLimitMiddleware)
	}
	chain = append(chain,
		handlers.SecurityHeadersMiddleware,
		handlers.TimeoutMiddleware(s.config.RequestTimeout),
	)
	if s.config.MaxBodyBytes > 0 {
		chain = append(chain, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	}
	chain = append(chain, handlers.CSRF(handlers.CSRFConfig{
		AuthKey:        s.config.CSRFKey,
		CookieName:     s.config.CookieName,
		Secure:         s.config.CookieSecure,
		TrustedOrigins: trustedOrigins(s.config.AllowedOrigins),
	}))
	return handlers.ChainHandler(handler, chain...)
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", getClientIP(r)),
			logger.String(logger.RequestIDKey, getRequestID(r.Context())),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers. Credentials are only allowed for explicit origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			wildcard, explicit := false, false
			for _, o := range s.config.AllowedOrigins {
				if o == "*" {
					wildcard = true
				} else if strings.EqualFold(o, origin) {
					explicit = true
				}
			}
			if explicit || wildcard {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID, X-CSRF-Token")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if explicit {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware implements per-IP rate limiting.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of the /api/v1 routes.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSONErrorWithDetails(w, status, code, message, "")
}

// writeJSONErrorWithDetails writes an error JSON response with details.
func writeJSONErrorWithDetails(w http.ResponseWriter, status int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
		Meta:    &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeySession   contextKey = "admin_session"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// trustedOrigins strips schemes for gorilla/csrf, which matches on host.
func trustedOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" || o == "" {
			continue
		}
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		out = append(out, o)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := pruneBefore(rl.requests[key], now.Add(-rl.window))
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, requests := range rl.requests {
				if valid := pruneBefore(requests, now.Add(-rl.window)); len(valid) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
