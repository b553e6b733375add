// Package webrouter implements guard.Router against the web front end over
// HTTP. A push is a GET of the page, a prefetch is a HEAD. Both carry the
// admin bearer token when one is stored.
package webrouter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// TokenSource returns the bearer token to send, if any.
type TokenSource func(ctx context.Context) (string, bool)

// TokenFromStore reads the token the session guard persisted.
func TokenFromStore(store kv.Store) TokenSource {
	return func(ctx context.Context) (string, bool) {
		token, ok, err := store.Get(ctx, kv.KeyAuthToken)
		if err != nil || !ok || token == "" {
			return "", false
		}
		return token, true
	}
}

// Config configures a Router.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Token      TokenSource
	Logger     *logger.Logger
}

// Router tracks the current page of one client.
type Router struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	token      TokenSource
	logger     *logger.Logger

	mu         sync.Mutex
	current    string
	prefetched map[string]struct{}
}

// New creates a Router.
func New(cfg Config) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Router{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		token:      cfg.Token,
		logger:     cfg.Logger.With(logger.Component("web_router")),
		prefetched: make(map[string]struct{}),
	}
}

// Push loads path and makes it the current page.
func (r *Router) Push(ctx context.Context, path string) error {
	if err := r.do(ctx, http.MethodGet, path); err != nil {
		return err
	}
	r.mu.Lock()
	r.current = path
	r.mu.Unlock()
	r.logger.Debug("navigated", logger.String("path", path))
	return nil
}

// Prefetch warms path without changing the current page.
func (r *Router) Prefetch(ctx context.Context, path string) error {
	if err := r.do(ctx, http.MethodHead, path); err != nil {
		return err
	}
	r.mu.Lock()
	r.prefetched[path] = struct{}{}
	r.mu.Unlock()
	return nil
}

// Current returns the path of the last successful push.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Prefetched reports whether path was prefetched.
func (r *Router) Prefetched(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.prefetched[path]
	return ok
}

// URL is the absolute address of path, for a hard navigation by the caller.
func (r *Router) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.baseURL + path
}

func (r *Router) do(ctx context.Context, method, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, r.URL(path), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	if r.token != nil {
		if token, ok := r.token(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return shared.WrapError("navigation", method, shared.ErrExternalService, "page request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		return shared.WrapError("navigation", method, shared.ErrExternalService, "page request failed",
			fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}
	return nil
}
