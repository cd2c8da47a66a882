// Package audit records security-relevant events: admin access to collected
// leads and bookings, authentication failures and runtime config changes.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType represents the type of audit event.
type EventType string

// Security audit event types.
const (
	// Admin authentication
	EventAdminAuthSuccess EventType = "auth.admin.success"
	EventAdminAuthFailure EventType = "auth.admin.failure"
	EventAdminLockedOut   EventType = "auth.admin.locked_out"

	// Authorization
	EventAccessDenied      EventType = "authz.access.denied"
	EventRateLimitExceeded EventType = "authz.ratelimit.exceeded"

	// Data access
	EventDataAccess EventType = "data.access"

	// System
	EventServiceStarted  EventType = "system.started"
	EventServiceStopping EventType = "system.stopping"
	EventConfigChanged   EventType = "system.config.changed"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event represents an audit log entry.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type of event (e.g., "auth.login.success").
	Type EventType `json:"type"`

	// Severity level.
	Severity Severity `json:"severity"`

	// Actor identification (who performed the action).
	ActorID   string `json:"actor_id,omitempty"`
	ActorType string `json:"actor_type,omitempty"` // "admin", "client", "system"
	ActorName string `json:"actor_name,omitempty"`

	// Source of the event.
	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Resource being accessed, e.g. "leads" or "bookings".
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Action details.
	Action  string `json:"action"`
	Outcome string `json:"outcome"` // "success", "failure", "denied"
	Reason  string `json:"reason,omitempty"`

	// Additional context.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Logger provides audit logging capabilities.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new audit logger.
func NewLogger(baseLogger *zap.Logger) *Logger {
	return &Logger{
		logger: baseLogger.Named("audit"),
	}
}

// Log records an audit event, filling in the id and timestamp when unset.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	level := zap.InfoLevel
	switch event.Severity {
	case SeverityWarning:
		level = zap.WarnLevel
	case SeverityError, SeverityCritical:
		level = zap.ErrorLevel
	}

	ce := l.logger.Check(level, "security audit event")
	if ce == nil {
		return
	}

	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.Time("audit_timestamp", event.Timestamp),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("action", event.Action),
		zap.String("outcome", event.Outcome),
	}
	for _, f := range []struct{ key, value string }{
		{"actor_id", event.ActorID},
		{"actor_type", event.ActorType},
		{"actor_name", event.ActorName},
		{"source_ip", event.SourceIP},
		{"user_agent", event.UserAgent},
		{"request_id", event.RequestID},
		{"session_id", event.SessionID},
		{"resource_type", event.ResourceType},
		{"resource_id", event.ResourceID},
		{"reason", event.Reason},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.key, f.value))
		}
	}
	if len(event.Metadata) > 0 {
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			metadata = []byte(`{"error":"failed to marshal metadata"}`)
		}
		fields = append(fields, zap.ByteString("metadata", metadata))
	}

	ce.Write(fields...)
}

// RequestInfo identifies the HTTP request behind an event.
type RequestInfo struct {
	IP        string
	UserAgent string
	RequestID string
}

// AdminAuthSuccess logs admin credentials accepted for a request.
func (l *Logger) AdminAuthSuccess(ctx context.Context, username string, req RequestInfo) {
	l.Log(ctx, &Event{
		Type:      EventAdminAuthSuccess,
		Severity:  SeverityInfo,
		ActorType: "admin",
		ActorName: username,
		SourceIP:  req.IP,
		UserAgent: req.UserAgent,
		RequestID: req.RequestID,
		Action:    "admin authentication",
		Outcome:   "success",
	})
}

// AdminAuthFailure logs rejected admin credentials.
func (l *Logger) AdminAuthFailure(ctx context.Context, username string, req RequestInfo, reason string) {
	eventType := EventAdminAuthFailure
	if reason == "locked out" {
		eventType = EventAdminLockedOut
	}
	l.Log(ctx, &Event{
		Type:      eventType,
		Severity:  SeverityWarning,
		ActorType: "admin",
		ActorName: username,
		SourceIP:  req.IP,
		UserAgent: req.UserAgent,
		RequestID: req.RequestID,
		Action:    "admin authentication",
		Outcome:   "failure",
		Reason:    reason,
	})
}

// AccessDenied logs a request to an admin route that is switched off.
func (l *Logger) AccessDenied(ctx context.Context, resource string, req RequestInfo, reason string) {
	l.Log(ctx, &Event{
		Type:         EventAccessDenied,
		Severity:     SeverityWarning,
		ActorType:    "client",
		SourceIP:     req.IP,
		RequestID:    req.RequestID,
		ResourceType: resource,
		Action:       "admin access",
		Outcome:      "denied",
		Reason:       reason,
	})
}

// DataAccess logs an admin reading collected leads or bookings.
func (l *Logger) DataAccess(ctx context.Context, username, resource string, req RequestInfo, limit, offset, returned int) {
	l.Log(ctx, &Event{
		Type:         EventDataAccess,
		Severity:     SeverityInfo,
		ActorType:    "admin",
		ActorName:    username,
		SourceIP:     req.IP,
		RequestID:    req.RequestID,
		ResourceType: resource,
		Action:       "list " + resource,
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"limit":    limit,
			"offset":   offset,
			"returned": returned,
		},
	})
}

// RateLimitExceeded logs a client rejected by the rate limiter.
func (l *Logger) RateLimitExceeded(ctx context.Context, path string, req RequestInfo) {
	l.Log(ctx, &Event{
		Type:      EventRateLimitExceeded,
		Severity:  SeverityWarning,
		ActorType: "client",
		SourceIP:  req.IP,
		RequestID: req.RequestID,
		Action:    "request rate limited",
		Outcome:   "denied",
		Reason:    "rate limit exceeded",
		Metadata: map[string]interface{}{
			"path": path,
		},
	})
}

// ConfigChanged logs a runtime configuration change such as the log level.
func (l *Logger) ConfigChanged(ctx context.Context, key string, req RequestInfo, oldValue, newValue interface{}) {
	l.Log(ctx, &Event{
		Type:         EventConfigChanged,
		Severity:     SeverityWarning,
		ActorType:    "admin",
		SourceIP:     req.IP,
		RequestID:    req.RequestID,
		ResourceType: "config",
		ResourceID:   key,
		Action:       "config changed",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"old_value": oldValue,
			"new_value": newValue,
		},
	})
}

// ServiceStarted logs service startup.
func (l *Logger) ServiceStarted(ctx context.Context, version, provider string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStarted,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service started",
		Outcome:   "success",
		Metadata: map[string]interface{}{
			"version":      version,
			"llm_provider": provider,
		},
	})
}

// ServiceStopping logs service shutdown initiation.
func (l *Logger) ServiceStopping(ctx context.Context, reason string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStopping,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service stopping",
		Outcome:   "success",
		Reason:    reason,
	})
}
