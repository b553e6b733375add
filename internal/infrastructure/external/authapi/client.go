// Package authapi is the HTTP client for the /api/auth endpoints.
// It satisfies guard.AuthAPI so the session guard can run against a remote server.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/circuitbreaker"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/retry"
)

// Endpoint paths.
const (
	LoginPath    = "/api/auth/login"
	ValidatePath = "/api/auth/validate"
	RefreshPath  = "/api/auth/refresh"
	LogoutPath   = "/api/auth/logout"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// LoginRequest is the login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Response is the union of the auth endpoint bodies. Each endpoint sets its
// own flag: success (login, logout), valid (validate) or refreshed (refresh).
type Response struct {
	Success   bool           `json:"success"`
	Valid     bool           `json:"valid"`
	Refreshed bool           `json:"refreshed"`
	Token     string         `json:"token,omitempty"`
	User      *admin.User    `json:"user,omitempty"`
	Session   *admin.Session `json:"session,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Config configures the client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logger.Logger

	// Sleep replaces the retry backoff wait (tests).
	Sleep retry.SleepFunc
}

// Client calls the auth endpoints.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *logger.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	log := cfg.Logger.With(logger.Component("auth_api"))
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		breaker: circuitbreaker.AuthAPIBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", logger.String("from", from.String()), logger.String("to", to.String()))
		}),
		retrier: retry.RemoteAPIRetrier(
			retry.WithSleep(cfg.Sleep),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Debug("retrying auth request",
					logger.Int("attempt", attempt),
					logger.Duration("delay", delay),
					logger.Err(err),
				)
			}),
		),
		logger: log,
	}
}

// Login implements guard.AuthAPI.
func (c *Client) Login(ctx context.Context, username, password string) (admin.Grant, error) {
	resp, status, err := c.call(ctx, http.MethodPost, LoginPath, "", LoginRequest{Username: username, Password: password})
	if err != nil {
		return admin.Grant{}, err
	}
	if status == http.StatusUnauthorized || !resp.Success {
		return admin.Grant{}, shared.ErrInvalidCredentials
	}
	return grantFrom(resp)
}

// Validate implements guard.AuthAPI. Any non-OK answer is an invalid session.
func (c *Client) Validate(ctx context.Context, token string) (admin.Session, error) {
	resp, status, err := c.call(ctx, http.MethodPost, ValidatePath, token, nil)
	if err != nil {
		return admin.Session{}, err
	}
	if status != http.StatusOK || !resp.Valid || resp.Session == nil {
		return admin.Session{}, rejected("Validate", status, resp.Error)
	}
	return *resp.Session, nil
}

// Refresh implements guard.AuthAPI.
func (c *Client) Refresh(ctx context.Context, token string) (admin.Grant, error) {
	resp, status, err := c.call(ctx, http.MethodPost, RefreshPath, token, nil)
	if err != nil {
		return admin.Grant{}, err
	}
	if status != http.StatusOK || !resp.Refreshed {
		return admin.Grant{}, rejected("Refresh", status, resp.Error)
	}
	return grantFrom(resp)
}

// Logout implements guard.AuthAPI.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, status, err := c.call(ctx, http.MethodPost, LogoutPath, token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK || !resp.Success {
		return rejected("Logout", status, resp.Error)
	}
	return nil
}

func grantFrom(resp Response) (admin.Grant, error) {
	if resp.Token == "" || resp.Session == nil {
		return admin.Grant{}, shared.WrapError("admin", "Login", shared.ErrExternalService, "malformed auth response", nil)
	}
	return admin.Grant{Token: resp.Token, Session: *resp.Session}, nil
}

func rejected(op string, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return shared.WrapError("admin", op, shared.ErrUnauthorized, "session rejected by server", fmt.Errorf("status %d: %s", status, msg))
}

// call performs a request with retries, each attempt going through the circuit
// breaker. Transport failures and 5xx answers are retried; other statuses are
// returned for the caller to judge.
func (c *Client) call(ctx context.Context, method, path, token string, body any) (Response, int, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Response{}, 0, fmt.Errorf("marshal body: %w", err)
		}
		payload = data
	}

	var (
		out    Response
		status int
	)
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			out, status, err = c.attempt(ctx, method, path, token, payload)
			return err
		})
	})
	if err != nil {
		c.logger.Warn("auth request failed", logger.String("path", path), logger.Err(err))
		return Response{}, 0, shared.WrapError("admin", "AuthAPI", shared.ErrServiceUnavailable, "auth service unavailable", err)
	}
	return out, status, nil
}

func (c *Client) attempt(ctx context.Context, method, path, token string, payload []byte) (Response, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Response{}, 0, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, 0, retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, 0, retry.Retryable(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 500 {
		return Response{}, 0, retry.Retryable(fmt.Errorf("auth api: status %d", resp.StatusCode))
	}

	var out Response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return Response{}, 0, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return out, resp.StatusCode, nil
}
