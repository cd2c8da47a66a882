// Package circuitbreaker guards language-model provider calls so a failing
// provider is skipped quickly instead of stalling every chat turn.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/clock"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // requests go through
	StateHalfOpen              // probing whether the provider recovered
	StateOpen                  // requests fail fast
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

// Errors returned by the circuit breaker.
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes needed in half-open to close.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenMaxRequests caps concurrent probes while half-open.
	HalfOpenMaxRequests int
}

// DefaultConfig returns the settings used for model providers.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// StateChangeFunc is invoked (outside the lock) whenever the state changes.
type StateChangeFunc func(name string, from, to State)

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu     sync.Mutex
	name   string
	config *Config
	clock  clock.Clock
	logger *zap.Logger

	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenInFlight     int
	openedAt             time.Time

	totalRequests int64
	totalFailures int64
	totalRejected int64
	lastError     error

	onStateChange StateChangeFunc
}

// New creates a new circuit breaker.
func New(name string, config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		clock:  clock.New(),
		logger: logger,
		state:  StateClosed,
	}
}

// WithClock replaces the time source (tests).
func (cb *CircuitBreaker) WithClock(c clock.Clock) *CircuitBreaker {
	cb.clock = c
	return cb
}

// OnStateChange registers a state transition observer (metrics).
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn within the breaker. Caller cancellation does not count as
// a provider failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	cb.totalRequests++

	switch cb.state {
	case StateOpen:
		if cb.clock.Since(cb.openedAt) < cb.config.OpenTimeout {
			cb.totalRejected++
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		notify := cb.transition(StateHalfOpen)
		cb.halfOpenInFlight = 1
		cb.mu.Unlock()
		notify()
		return nil

	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxRequests {
			cb.totalRejected++
			cb.mu.Unlock()
			return ErrTooManyRequests
		}
		cb.halfOpenInFlight++
	}

	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	notify := func() {}

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	switch {
	case err == nil:
		cb.consecutiveFailures = 0
		cb.consecutiveSuccesses++
		if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			notify = cb.transition(StateClosed)
		}

	case !countsAsFailure(err):
		// cancellation by the caller says nothing about provider health

	default:
		cb.totalFailures++
		cb.consecutiveSuccesses = 0
		cb.consecutiveFailures++
		cb.lastError = err
		if cb.state == StateHalfOpen ||
			(cb.state == StateClosed && cb.consecutiveFailures >= cb.config.FailureThreshold) {
			cb.openedAt = cb.clock.Now()
			notify = cb.transition(StateOpen)
			cb.logger.Warn("circuit breaker opened",
				zap.String("name", cb.name),
				zap.Error(err),
			)
		}
	}

	cb.mu.Unlock()
	notify()
}

// transition must be called with mu held; the returned func runs the observer.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.state = to
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0

	if to == StateClosed {
		cb.logger.Info("circuit breaker closed", zap.String("name", cb.name))
	}

	fn := cb.onStateChange
	if fn == nil || from == to {
		return func() {}
	}
	return func() { fn(cb.name, from, to) }
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen returns true if the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Stats holds circuit breaker statistics.
type Stats struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	TotalRequests       int64  `json:"total_requests"`
	TotalFailures       int64  `json:"total_failures"`
	TotalRejected       int64  `json:"total_rejected"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// Stats returns current circuit breaker statistics.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var lastError string
	if cb.lastError != nil {
		lastError = cb.lastError.Error()
	}
	return Stats{
		Name:                cb.name,
		State:               cb.state.String(),
		TotalRequests:       cb.totalRequests,
		TotalFailures:       cb.totalFailures,
		TotalRejected:       cb.totalRejected,
		ConsecutiveFailures: cb.consecutiveFailures,
		LastError:           lastError,
	}
}

// Reset forces the breaker closed. Administrative use only.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.transition(StateClosed)
	cb.lastError = nil
	cb.mu.Unlock()
	notify()
}
