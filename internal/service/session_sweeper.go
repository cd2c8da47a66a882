package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/clock"
	"github.com/jkindrix/coral/internal/domain"
)

// SweepRecorder receives session eviction counters.
type SweepRecorder interface {
	RecordSessionsEvicted(n int)
	SetActiveSessions(count int)
}

// sessionCounter is implemented by stores that can report their size.
type sessionCounter interface {
	Len() int
}

// SessionSweeper periodically deletes sessions idle for longer than the TTL.
type SessionSweeper struct {
	sessions domain.SessionRepository
	ttl      time.Duration
	interval time.Duration
	clock    clock.Clock
	recorder SweepRecorder
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSessionSweeper creates a sweeper. A non-positive ttl disables sweeping.
func NewSessionSweeper(sessions domain.SessionRepository, ttl, interval time.Duration, recorder SweepRecorder, logger *zap.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweeper{
		sessions: sessions,
		ttl:      ttl,
		interval: interval,
		clock:    clock.New(),
		recorder: recorder,
		logger:   logger.Named("sweeper"),
		stopCh:   make(chan struct{}),
	}
}

// WithClock sets the clock used to compute the idle cutoff.
func (s *SessionSweeper) WithClock(c clock.Clock) *SessionSweeper {
	s.clock = c
	return s
}

// Enabled reports whether a TTL is configured.
func (s *SessionSweeper) Enabled() bool {
	return s.ttl > 0
}

// SweepOnce removes every session last updated more than ttl ago.
func (s *SessionSweeper) SweepOnce(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	before := s.clock.Now().Add(-s.ttl)
	removed, err := s.sessions.DeleteIdle(ctx, before)
	if err != nil {
		return 0, err
	}

	if s.recorder != nil {
		if removed > 0 {
			s.recorder.RecordSessionsEvicted(removed)
		}
		if c, ok := s.sessions.(sessionCounter); ok {
			s.recorder.SetActiveSessions(c.Len())
		}
	}
	if removed > 0 {
		s.logger.Info("evicted idle sessions",
			zap.Int("count", removed),
			zap.Time("idle_before", before),
		)
	}
	return removed, nil
}

// Start runs SweepOnce on every interval until Stop.
func (s *SessionSweeper) Start() {
	if !s.Enabled() {
		s.logger.Info("idle session eviction disabled")
		return
	}

	s.logger.Info("starting session sweeper",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				if _, err := s.SweepOnce(ctx); err != nil {
					s.logger.Error("session sweep failed", zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-progress sweep.
func (s *SessionSweeper) Stop(ctx context.Context) error {
	s.once.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
