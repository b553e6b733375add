// Package catalogapi fetches the course catalog from the remote courses API.
package catalogapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/circuitbreaker"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// CoursesPath is the catalog endpoint.
const CoursesPath = "/api/courses"

// ClientConfig contains configuration for the catalog API client.
type ClientConfig struct {
	BaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MaxRetries after the first attempt.
	MaxRetries int

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	Logger *logger.Logger

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client

	// Sleep replaces the retry backoff wait (tests).
	Sleep retry.SleepFunc
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:                 baseURL,
		Timeout:                 10 * time.Second,
		MaxRetries:              2,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is a course.Source backed by the remote API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logger.Logger
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
}

// NewClient creates a new catalog API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	log := config.Logger.With(logger.Component("catalog_api"))
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     log,
		breaker: circuitbreaker.CatalogAPIBreaker(config.CircuitBreakerThreshold, config.CircuitBreakerTimeout,
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		retrier: retry.RemoteAPIRetrier(
			retry.WithMaxAttempts(config.MaxRetries+1),
			retry.WithRetryIf(isRetryable),
			retry.WithSleep(config.Sleep),
		),
	}
}

// FetchCourses implements course.Source.
func (c *Client) FetchCourses(ctx context.Context) (course.Catalog, error) {
	var response APIResponse[[]CourseDTO]
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodGet, CoursesPath, &response)
		})
	})
	if err != nil {
		return nil, shared.WrapError("catalog", "Fetch", shared.ErrServiceUnavailable, "course catalog is unavailable", err)
	}
	if !response.Success {
		return nil, shared.WrapError("catalog", "Fetch", shared.ErrServiceUnavailable, "course catalog is unavailable", errors.New(response.Error))
	}

	catalog := ToCatalog(response.Data)
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	c.logger.Debug("catalog fetched", logger.Int("courses", len(catalog)))
	return catalog, nil
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State { return c.breaker.State() }

// doRequest performs a single HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}

// isRetryable retries server errors, rate limiting and network failures.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
