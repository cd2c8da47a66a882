package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/domain"
	"github.com/jkindrix/coral/internal/sanitize"
)

// BusinessEventLogger provides structured logging for business events.
// This complements Prometheus metrics with searchable per-event records.
type BusinessEventLogger struct {
	logger *zap.Logger
}

// NewBusinessEventLogger creates a new business event logger.
func NewBusinessEventLogger(logger *zap.Logger) *BusinessEventLogger {
	return &BusinessEventLogger{
		logger: logger.Named("business_events"),
	}
}

// LeadCaptured logs a lead that reached its sink.
func (l *BusinessEventLogger) LeadCaptured(ctx context.Context, lead *domain.Lead, sink string, attempts int) {
	l.logger.Info("lead_captured",
		zap.String("event_type", "lead.captured"),
		zap.String("lead_id", lead.ID.String()),
		zap.String("session_id", lead.SessionID),
		zap.String("contact", sanitize.MaskContact(lead.Contact)),
		zap.String("project", sanitize.Preview(lead.Project, 80)),
		zap.Bool("budget_provided", lead.Budget != domain.BudgetNotProvided),
		zap.String("sink", sink),
		zap.Int("attempts", attempts),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// BookingRequested logs a consultation request that reached its sink.
func (l *BusinessEventLogger) BookingRequested(ctx context.Context, booking *domain.Booking, sink string, attempts int) {
	l.logger.Info("booking_requested",
		zap.String("event_type", "booking.requested"),
		zap.String("booking_id", booking.ID.String()),
		zap.String("session_id", booking.SessionID),
		zap.String("date", booking.Date),
		zap.String("time", booking.Time),
		zap.String("sink", sink),
		zap.Int("attempts", attempts),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// HandoffFailed logs a hand-off that exhausted its retries.
func (l *BusinessEventLogger) HandoffFailed(ctx context.Context, kind, recordID, sessionID string, attempts int, err error) {
	l.logger.Error("handoff_failed",
		zap.String("event_type", "handoff.failed"),
		zap.String("kind", kind),
		zap.String("record_id", recordID),
		zap.String("session_id", sessionID),
		zap.Int("attempts", attempts),
		zap.Error(err),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// CircuitStateChanged logs a model circuit breaker transition.
func (l *BusinessEventLogger) CircuitStateChanged(ctx context.Context, service, from, to string) {
	level := l.logger.Info
	if to == "open" {
		level = l.logger.Warn
	}
	level("circuit_state_changed",
		zap.String("event_type", "model.circuit"),
		zap.String("service", service),
		zap.String("from", from),
		zap.String("to", to),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// APIError logs an API error for monitoring.
func (l *BusinessEventLogger) APIError(ctx context.Context, endpoint, method string, statusCode int, errorMsg string) {
	l.logger.Error("api_error",
		zap.String("event_type", "api.error"),
		zap.String("endpoint", endpoint),
		zap.String("method", method),
		zap.Int("status_code", statusCode),
		zap.String("error", errorMsg),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// RateLimitExceeded logs when a rate limit is exceeded.
func (l *BusinessEventLogger) RateLimitExceeded(ctx context.Context, limiterType string, identifier string) {
	l.logger.Warn("rate_limit_exceeded",
		zap.String("event_type", "rate_limit.exceeded"),
		zap.String("limiter_type", limiterType),
		zap.String("identifier", sanitize.PartialMask(identifier, 2, 2)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}
