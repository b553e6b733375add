package guard

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// NAVIGATION
// Navigate tries client-side routing with linear backoff and reports what it
// did. A hard page load is never performed here: when routing is exhausted the
// Result says so and the caller decides.
// ══════════════════════════════════════════════════════════════════════════════

// Router performs client-side route transitions.
type Router interface {
	Push(ctx context.Context, url string) error
	Prefetch(ctx context.Context, url string) error
}

// Strategy names a way of reaching a URL.
type Strategy string

const (
	StrategyRouter Strategy = "router"
	StrategyHard   Strategy = "hard"
)

// NavigateOptions controls retries and fallback.
type NavigateOptions struct {
	// Retries after the first router attempt.
	Retries int
	// Delay is the backoff unit; retry n waits Delay*n.
	Delay time.Duration
	// FallbackToWindow asks the caller for a hard navigation on exhaustion.
	FallbackToWindow bool
	// Sleep replaces the backoff wait in tests.
	Sleep retry.SleepFunc
}

// DefaultNavigateOptions returns 2 retries, 100ms delay and fallback on.
func DefaultNavigateOptions() NavigateOptions {
	return NavigateOptions{Retries: 2, Delay: 100 * time.Millisecond, FallbackToWindow: true}
}

// Attempt is one router call.
type Attempt struct {
	Strategy Strategy `json:"strategy"`
	Number   int      `json:"number"`
	Err      error    `json:"-"`
}

// Result reports a navigation.
type Result struct {
	OK       bool
	URL      string
	Attempts []Attempt
	// NeedsHardNavigation is set when routing failed and fallback is enabled.
	NeedsHardNavigation bool
	Failure             error
}

// Strategies lists the distinct strategies tried, in order, plus StrategyHard
// when the caller is asked to perform one.
func (r Result) Strategies() []Strategy {
	var out []Strategy
	seen := make(map[Strategy]bool)
	for _, a := range r.Attempts {
		if !seen[a.Strategy] {
			seen[a.Strategy] = true
			out = append(out, a.Strategy)
		}
	}
	if r.NeedsHardNavigation {
		out = append(out, StrategyHard)
	}
	return out
}

// InFlight is a caller-owned token that rejects overlapping navigations.
// The zero value is ready to use.
type InFlight struct {
	busy atomic.Bool
}

// Busy reports whether a navigation holds the token.
func (f *InFlight) Busy() bool { return f.busy.Load() }

// Navigate pushes url through router. It returns immediately with
// ErrNavigationInFlight when inFlight is held; a nil inFlight disables the check.
func Navigate(ctx context.Context, router Router, url string, opts NavigateOptions, inFlight *InFlight) Result {
	url = strings.TrimSpace(url)
	res := Result{URL: url}
	if url == "" {
		res.Failure = shared.ErrEmptyURL
		return res
	}
	if inFlight != nil {
		if !inFlight.busy.CompareAndSwap(false, true) {
			res.Failure = shared.ErrNavigationInFlight
			return res
		}
		defer inFlight.busy.Store(false)
	}

	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	retryOpts := []retry.Option{
		retry.WithMaxAttempts(retries + 1),
		retry.WithLinearBackoff(opts.Delay),
		retry.WithRetryIf(retry.RetryAll),
	}
	if opts.Sleep != nil {
		retryOpts = append(retryOpts, retry.WithSleep(opts.Sleep))
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		err := router.Push(ctx, url)
		res.Attempts = append(res.Attempts, Attempt{Strategy: StrategyRouter, Number: len(res.Attempts) + 1, Err: err})
		return err
	}, retryOpts...)
	if err == nil {
		res.OK = true
		return res
	}

	res.Failure = shared.WrapError("navigation", "Navigate", shared.ErrExternalService, "router navigation failed", err)
	res.NeedsHardNavigation = opts.FallbackToWindow
	return res
}

// Preload prefetches url. Failures are logged and dropped.
func Preload(ctx context.Context, router Router, url string, log *logger.Logger) {
	if strings.TrimSpace(url) == "" {
		return
	}
	if err := router.Prefetch(ctx, url); err != nil && log != nil {
		log.Debug("preload failed", logger.String("url", url), logger.Err(err))
	}
}
