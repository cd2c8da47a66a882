// Package service contains the background workers behind the chat engine:
// the hand-off dispatcher that persists completed flows and the idle
// session sweeper.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
	"github.com/jkindrix/coral/internal/metrics"
	"github.com/jkindrix/coral/internal/ratelimit"
)

// Hand-off kinds, used as metric labels.
const (
	KindLead    = "lead"
	KindBooking = "booking"
)

// Hand-off outcomes, used as metric labels.
const (
	StatusQueued    = "queued"
	StatusRejected  = "rejected"
	StatusPersisted = "persisted"
	StatusFailed    = "failed"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more work.
	ErrQueueFull = errors.New("hand-off queue full")
	// ErrDispatcherStopped is returned after Stop.
	ErrDispatcherStopped = errors.New("hand-off dispatcher stopped")
)

// HandoffRecorder receives hand-off counters.
type HandoffRecorder interface {
	RecordHandoff(kind, status string)
	SetHandoffQueueDepth(n int)
}

// HandoffDispatcherConfig holds configuration for the dispatcher.
type HandoffDispatcherConfig struct {
	Workers   int
	QueueSize int
	// SinkName labels business events, e.g. "postgres".
	SinkName string
	Backoff  *ratelimit.BackoffConfig
}

// DefaultHandoffDispatcherConfig returns sensible defaults.
func DefaultHandoffDispatcherConfig() *HandoffDispatcherConfig {
	return &HandoffDispatcherConfig{
		Workers:   2,
		QueueSize: 100,
		SinkName:  "log",
		Backoff:   ratelimit.DefaultBackoffConfig(),
	}
}

type handoffJob struct {
	kind    string
	lead    *domain.Lead
	booking *domain.Booking
}

func (j handoffJob) recordID() string {
	if j.lead != nil {
		return j.lead.ID.String()
	}
	return j.booking.ID.String()
}

func (j handoffJob) sessionID() string {
	if j.lead != nil {
		return j.lead.SessionID
	}
	return j.booking.SessionID
}

// HandoffDispatcher queues completed leads and bookings and persists them
// on a pool of workers. Submit never blocks: a full queue is reported to
// the caller straight away.
type HandoffDispatcher struct {
	repo     domain.LeadRepository
	backoff  *ratelimit.Backoff
	recorder HandoffRecorder
	events   *metrics.BusinessEventLogger
	logger   *zap.Logger

	sinkName string
	workers  int
	queue    chan handoffJob

	// ctx bounds in-flight retries; cancelled when Stop runs out of time.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	running  bool
	closed   bool
	workerWg sync.WaitGroup
}

// NewHandoffDispatcher creates a dispatcher. recorder and events may be nil.
func NewHandoffDispatcher(
	repo domain.LeadRepository,
	recorder HandoffRecorder,
	events *metrics.BusinessEventLogger,
	logger *zap.Logger,
	config *HandoffDispatcherConfig,
) *HandoffDispatcher {
	if config == nil {
		config = DefaultHandoffDispatcherConfig()
	}

	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := config.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.Named("handoff")

	return &HandoffDispatcher{
		repo:     repo,
		backoff:  ratelimit.NewBackoff(config.Backoff, logger),
		recorder: recorder,
		events:   events,
		logger:   logger,
		sinkName: config.SinkName,
		workers:  workers,
		queue:    make(chan handoffJob, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (d *HandoffDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherStopped
	}
	if d.running {
		return errors.New("dispatcher already running")
	}
	d.running = true

	d.logger.Info("starting hand-off dispatcher",
		zap.Int("worker_count", d.workers),
		zap.Int("queue_size", cap(d.queue)),
		zap.String("sink", d.sinkName),
	)

	for i := 0; i < d.workers; i++ {
		d.workerWg.Add(1)
		go d.worker(i)
	}
	return nil
}

// Stop refuses new work, lets the workers drain the queue and waits for
// them. If ctx ends first, in-flight retries are abandoned.
func (d *HandoffDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.logger.Info("stopping hand-off dispatcher", zap.Int("pending", len(d.queue)))

	done := make(chan struct{})
	go func() {
		d.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("hand-off dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		d.cancel()
		d.logger.Warn("hand-off dispatcher stop timed out", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}

// SubmitLead queues a lead for persistence.
func (d *HandoffDispatcher) SubmitLead(_ context.Context, lead *domain.Lead) error {
	if lead == nil {
		return apperrors.InvalidInput("lead is required")
	}
	return d.enqueue(handoffJob{kind: KindLead, lead: lead})
}

// SubmitBooking queues a booking for persistence.
func (d *HandoffDispatcher) SubmitBooking(_ context.Context, booking *domain.Booking) error {
	if booking == nil {
		return apperrors.InvalidInput("booking is required")
	}
	return d.enqueue(handoffJob{kind: KindBooking, booking: booking})
}

func (d *HandoffDispatcher) enqueue(job handoffJob) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.record(job.kind, StatusRejected)
		return apperrors.HandoffError(job.kind, ErrDispatcherStopped)
	}

	select {
	case d.queue <- job:
		d.record(job.kind, StatusQueued)
		d.setDepth()
		return nil
	default:
		d.record(job.kind, StatusRejected)
		d.logger.Warn("hand-off queue full, rejecting record",
			zap.String("kind", job.kind),
			zap.String("record_id", job.recordID()),
		)
		return apperrors.HandoffError(job.kind, ErrQueueFull)
	}
}

// Pending returns the number of queued records not yet picked up.
func (d *HandoffDispatcher) Pending() int {
	return len(d.queue)
}

func (d *HandoffDispatcher) worker(id int) {
	defer d.workerWg.Done()

	logger := d.logger.With(zap.Int("worker_id", id))
	logger.Debug("worker started")

	for job := range d.queue {
		d.setDepth()
		d.process(job)
	}

	logger.Debug("worker stopped")
}

func (d *HandoffDispatcher) process(job handoffJob) {
	start := time.Now()

	attempts, err := d.backoff.Execute(d.ctx, func(ctx context.Context) error {
		var err error
		if job.lead != nil {
			err = d.repo.SaveLead(ctx, job.lead)
		} else {
			err = d.repo.SaveBooking(ctx, job.booking)
		}
		if err != nil && !retryable(err) {
			return ratelimit.Permanent(err)
		}
		return err
	})

	if err != nil {
		d.record(job.kind, StatusFailed)
		d.logger.Error("hand-off failed",
			zap.String("kind", job.kind),
			zap.String("record_id", job.recordID()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if d.events != nil {
			d.events.HandoffFailed(d.ctx, job.kind, job.recordID(), job.sessionID(), attempts, err)
		}
		return
	}

	d.record(job.kind, StatusPersisted)
	d.logger.Debug("hand-off persisted",
		zap.String("kind", job.kind),
		zap.String("record_id", job.recordID()),
		zap.Int("attempts", attempts),
		zap.Duration("duration", time.Since(start)),
	)
	if d.events == nil {
		return
	}
	if job.lead != nil {
		d.events.LeadCaptured(d.ctx, job.lead, d.sinkName, attempts)
	} else {
		d.events.BookingRequested(d.ctx, job.booking, d.sinkName, attempts)
	}
}

// retryable reports whether a failed save deserves another attempt. Driver
// errors are unclassified and retried; application errors only when transient.
func retryable(err error) bool {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return apperrors.IsRetriable(err)
	}
	return true
}

func (d *HandoffDispatcher) record(kind, status string) {
	if d.recorder != nil {
		d.recorder.RecordHandoff(kind, status)
	}
}

func (d *HandoffDispatcher) setDepth() {
	if d.recorder != nil {
		d.recorder.SetHandoffQueueDepth(len(d.queue))
	}
}
