// Package shutdown runs the service's graceful shutdown in ordered phases:
// stop taking traffic, stop background workers, then close stores.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Service is something that can be stopped gracefully.
type Service interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc struct {
	ServiceName string
	ShutdownFn  func(ctx context.Context) error
}

func (s ServiceFunc) Name() string                       { return s.ServiceName }
func (s ServiceFunc) Shutdown(ctx context.Context) error { return s.ShutdownFn(ctx) }

// Phase orders shutdown work. Services in one phase stop concurrently.
type Phase int

const (
	// PhaseDrain stops the HTTP server and waits for in-flight turns.
	PhaseDrain Phase = iota
	// PhaseWorkers stops the hand-off dispatcher, the session sweeper and
	// other background loops.
	PhaseWorkers
	// PhaseClose closes Redis, Mongo and Postgres clients.
	PhaseClose
)

var phases = []Phase{PhaseDrain, PhaseWorkers, PhaseClose}

func (p Phase) String() string {
	switch p {
	case PhaseDrain:
		return "drain"
	case PhaseWorkers:
		return "workers"
	case PhaseClose:
		return "close"
	default:
		return "unknown"
	}
}

// Config holds configuration for the shutdown coordinator.
type Config struct {
	// Timeout bounds the whole shutdown, across all phases.
	Timeout time.Duration
}

// DefaultConfig returns the default shutdown settings.
func DefaultConfig() *Config {
	return &Config{Timeout: 30 * time.Second}
}

// Coordinator stops registered services phase by phase.
type Coordinator struct {
	mu       sync.Mutex
	services map[Phase][]Service
	timeout  time.Duration
	logger   *zap.Logger

	draining atomic.Bool
	once     sync.Once
	done     chan struct{}
	err      error
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(cfg *Config, logger *zap.Logger) *Coordinator {
	if cfg == nil || cfg.Timeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Coordinator{
		services: make(map[Phase][]Service),
		timeout:  cfg.Timeout,
		logger:   logger.Named("shutdown"),
		done:     make(chan struct{}),
	}
}

// Register adds svc to phase.
func (c *Coordinator) Register(phase Phase, svc Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[phase] = append(c.services[phase], svc)
}

// RegisterFunc registers fn under name in phase.
func (c *Coordinator) RegisterFunc(phase Phase, name string, fn func(ctx context.Context) error) {
	c.Register(phase, ServiceFunc{ServiceName: name, ShutdownFn: fn})
}

// Draining reports whether shutdown has started. Readiness probes use it
// to take the instance out of rotation before the listener closes.
func (c *Coordinator) Draining() bool {
	return c.draining.Load()
}

// Shutdown runs every phase once and returns the joined service errors.
// Later calls wait for the first run. The run gets its own timeout so a
// cancelled caller context cannot cut it short; ctx only bounds the wait.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.draining.Store(true)
		go c.run()
	})

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run() {
	defer close(c.done)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.logger.Info("starting graceful shutdown", zap.Duration("timeout", c.timeout))

	var errs []error
	for _, phase := range phases {
		c.mu.Lock()
		services := append([]Service(nil), c.services[phase]...)
		c.mu.Unlock()
		if len(services) == 0 {
			continue
		}

		c.logger.Info("shutdown phase",
			zap.Stringer("phase", phase),
			zap.Int("services", len(services)),
		)
		errs = append(errs, c.runPhase(ctx, phase, services)...)

		if ctx.Err() != nil {
			c.logger.Error("shutdown timeout exceeded", zap.Stringer("phase", phase))
			errs = append(errs, fmt.Errorf("phase %s: %w", phase, ctx.Err()))
			break
		}
	}

	c.err = errors.Join(errs...)
	if c.err != nil {
		c.logger.Error("shutdown completed with errors", zap.Int("error_count", len(errs)), zap.Error(c.err))
		return
	}
	c.logger.Info("graceful shutdown complete")
}

func (c *Coordinator) runPhase(ctx context.Context, phase Phase, services []Service) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, svc := range services {
		wg.Add(1)
		go func(s Service) {
			defer wg.Done()

			start := time.Now()
			err := s.Shutdown(ctx)
			log := c.logger.With(
				zap.String("service", s.Name()),
				zap.Stringer("phase", phase),
				zap.Duration("duration", time.Since(start)),
			)
			if err != nil {
				log.Error("service shutdown failed", zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
				return
			}
			log.Debug("service stopped")
		}(svc)
	}

	wg.Wait()
	return errs
}
