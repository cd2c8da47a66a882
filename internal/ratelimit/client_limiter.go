package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientLimiter holds one token bucket per client key, usually the remote IP.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client

	limit      rate.Limit
	burst      int
	staleAfter time.Duration
	now        func() time.Time

	logger *zap.Logger
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiterConfig holds configuration for per-client limiting.
type ClientLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// StaleAfter drops clients not seen for this long.
	StaleAfter time.Duration
}

// DefaultClientLimiterConfig returns sensible defaults for the chat API.
func DefaultClientLimiterConfig() ClientLimiterConfig {
	return ClientLimiterConfig{
		RequestsPerSecond: 2,
		Burst:             10,
		StaleAfter:        10 * time.Minute,
	}
}

// NewClientLimiter creates a per-client limiter. A non-positive rate
// disables limiting.
func NewClientLimiter(cfg ClientLimiterConfig, logger *zap.Logger) *ClientLimiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultClientLimiterConfig().StaleAfter
	}
	return &ClientLimiter{
		clients:    make(map[string]*client),
		limit:      limit,
		burst:      cfg.Burst,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Allow reports whether a request from key may proceed now.
func (l *ClientLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// RetryAfter estimates how long key must wait for its next token.
func (l *ClientLimiter) RetryAfter(key string) time.Duration {
	if l.limit == rate.Inf {
		return 0
	}

	l.mu.Lock()
	c, ok := l.clients[key]
	l.mu.Unlock()
	if !ok {
		return 0
	}

	now := l.now()
	r := c.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Sweep removes clients not seen within StaleAfter and returns how many
// were dropped.
func (l *ClientLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.staleAfter)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Run sweeps stale clients until ctx is done.
func (l *ClientLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.staleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("rate limit clients swept", zap.Int("removed", n))
			}
		}
	}
}
