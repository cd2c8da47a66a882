package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestBackoff(maxAttempts int) (*Backoff, *[]time.Duration) {
	b := NewBackoff(&BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  maxAttempts,
	}, zap.NewNop())

	var slept []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return b, &slept
}

func TestBackoff_SucceedsAfterRetry(t *testing.T) {
	b, slept := newTestBackoff(5)

	calls := 0
	attempts, err := b.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, expected 3", attempts)
	}
	if len(*slept) != 2 || (*slept)[0] != 10*time.Millisecond || (*slept)[1] != 20*time.Millisecond {
		t.Errorf("delays = %v", *slept)
	}

	stats := b.Stats()
	if stats.TotalAttempts != 3 || stats.TotalRetries != 2 || stats.SuccessfulRetries != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBackoff_Exhausted(t *testing.T) {
	b, _ := newTestBackoff(3)
	cause := errors.New("timeout")

	attempts, err := b.Execute(context.Background(), func(ctx context.Context) error {
		return cause
	})

	if !errors.Is(err, ErrMaxAttemptsExhausted) {
		t.Errorf("expected ErrMaxAttemptsExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should stay in the chain")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, expected 3", attempts)
	}
	if b.Stats().Exhausted != 1 {
		t.Error("exhausted counter not incremented")
	}
}

func TestBackoff_PermanentStopsImmediately(t *testing.T) {
	b, slept := newTestBackoff(5)
	cause := errors.New("duplicate key")

	attempts, err := b.Execute(context.Background(), func(ctx context.Context) error {
		return Permanent(cause)
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, expected 1", attempts)
	}
	if !IsPermanent(err) || !errors.Is(err, cause) {
		t.Errorf("unexpected error: %v", err)
	}
	if len(*slept) != 0 {
		t.Error("permanent failures should not sleep")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestBackoff_ContextCanceled(t *testing.T) {
	b, _ := newTestBackoff(0)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := b.Execute(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("unavailable")
	})

	if !errors.Is(err, ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, expected 1", calls)
	}
}

func TestBackoff_DelayCapped(t *testing.T) {
	b, _ := newTestBackoff(0)

	if d := b.Delay(1); d != 10*time.Millisecond {
		t.Errorf("Delay(1) = %v", d)
	}
	if d := b.Delay(10); d != 40*time.Millisecond {
		t.Errorf("Delay(10) = %v, expected cap", d)
	}
}

func TestBackoff_JitterWithinRange(t *testing.T) {
	b := NewBackoff(&BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}, zap.NewNop())

	for i := 0; i < 50; i++ {
		d := b.Delay(1)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("delay %v outside jitter range", d)
		}
	}
}

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay >= cfg.MaxDelay {
		t.Error("initial delay should be below the cap")
	}
}
