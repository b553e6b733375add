// Package circuitbreaker guards calls to remote collaborators (catalog API, auth API)
// so a failing dependency is short-circuited instead of retried on every request.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed lets requests through.
	StateClosed State = iota
	// StateOpen rejects requests until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets a single trial request through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration.
type Config struct {
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of trial successes that closes it again.
	SuccessThreshold int

	// Cooldown is how long the circuit stays open before a trial request.
	Cooldown time.Duration

	OnStateChange func(name string, from, to State)

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*Config)

func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// CircuitBreaker counts consecutive failures of one dependency.
type CircuitBreaker struct {
	config Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	trial     bool
}

// New creates a closed breaker. Defaults: 5 failures, 1 success, 30s cool-down.
func New(name string, opts ...Option) *CircuitBreaker {
	config := Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
		Now:              time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &CircuitBreaker{config: config}
}

// Execute runs fn if the circuit admits it and records the outcome.
// A cancelled context is not held against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err != nil && !errors.Is(err, context.Canceled))
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.config.Now().Sub(cb.openedAt) < cb.config.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.trial {
		return ErrCircuitOpen
	}
	cb.trial = true
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.trial = false
		if failed {
			cb.transition(StateOpen)
			return
		}
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
	// Results arriving while open belong to requests admitted before it tripped.
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.trial = false
	if to == StateOpen {
		cb.openedAt = cb.config.Now()
	}
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CatalogAPIBreaker is tuned for the remote course catalog.
func CatalogAPIBreaker(threshold int, cooldown time.Duration, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("catalog-api",
		WithFailureThreshold(threshold),
		WithCooldown(cooldown),
		WithOnStateChange(onStateChange),
	)
}

// AuthAPIBreaker is tuned for the session validate/refresh endpoints.
// A tripped breaker makes the guard fail closed immediately.
func AuthAPIBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("auth-api",
		WithFailureThreshold(5),
		WithCooldown(15*time.Second),
		WithOnStateChange(onStateChange),
	)
}
