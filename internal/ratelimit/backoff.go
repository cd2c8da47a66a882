// Package ratelimit provides retry backoff for outbound work and per-client
// request limiting for the public chat endpoints.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig configures exponential backoff behavior.
type BackoffConfig struct {
	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay caps every wait.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// MaxAttempts bounds the total number of tries (0 = unlimited).
	MaxAttempts int

	// Jitter spreads delays by +/- the given fraction (0.0 to 1.0).
	Jitter float64
}

// DefaultBackoffConfig returns the defaults used for hand-off persistence.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       0.2,
	}
}

// Errors for backoff.
var (
	ErrMaxAttemptsExhausted = errors.New("maximum attempts exhausted")
	ErrContextCanceled      = errors.New("context canceled during backoff")
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Execute stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Operation is a function that can be retried.
type Operation func(ctx context.Context) error

// BackoffStats tracks retry statistics.
type BackoffStats struct {
	TotalAttempts     int64         `json:"total_attempts"`
	TotalRetries      int64         `json:"total_retries"`
	SuccessfulRetries int64         `json:"successful_retries"`
	Exhausted         int64         `json:"exhausted"`
	TotalDelayTime    time.Duration `json:"total_delay_time"`
	MaxDelayUsed      time.Duration `json:"max_delay_used"`
}

// Backoff runs operations with exponential backoff. It is safe for
// concurrent use; statistics are shared across callers.
type Backoff struct {
	config *BackoffConfig
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	stats BackoffStats
}

// NewBackoff creates a new Backoff instance.
func NewBackoff(config *BackoffConfig, logger *zap.Logger) *Backoff {
	if config == nil {
		config = DefaultBackoffConfig()
	}
	cfg := *config
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &Backoff{
		config: &cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute runs op until it succeeds, returns a permanent error, the attempt
// budget runs out or ctx ends. It returns the number of attempts made.
func (b *Backoff) Execute(ctx context.Context, op Operation) (int, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("%w: %v", ErrContextCanceled, err)
		}

		b.mu.Lock()
		b.stats.TotalAttempts++
		b.mu.Unlock()

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				b.mu.Lock()
				b.stats.SuccessfulRetries++
				b.mu.Unlock()
				b.logger.Info("operation succeeded after retry", zap.Int("attempts", attempt))
			}
			return attempt, nil
		}

		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return attempt, err
		}
		if b.config.MaxAttempts > 0 && attempt >= b.config.MaxAttempts {
			b.mu.Lock()
			b.stats.Exhausted++
			b.mu.Unlock()
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExhausted, attempt, err)
		}

		delay := b.Delay(attempt)

		b.mu.Lock()
		b.stats.TotalRetries++
		b.stats.TotalDelayTime += delay
		if delay > b.stats.MaxDelayUsed {
			b.stats.MaxDelayUsed = delay
		}
		b.mu.Unlock()

		b.logger.Warn("operation failed, retrying with backoff",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		if err := b.sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("%w: %v", ErrContextCanceled, err)
		}
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(attempt-1))

	if b.config.Jitter > 0 {
		spread := delay * b.config.Jitter
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Stats returns current backoff statistics.
func (b *Backoff) Stats() BackoffStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
