// Package middleware provides the HTTP middleware chain for the chat API.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// CorrelationIDHeader carries an id that spans a whole client interaction.
	CorrelationIDHeader = "X-Correlation-ID"
	// RequestIDHeader carries an id unique to one HTTP request.
	RequestIDHeader = "X-Request-ID"
)

type (
	correlationIDKey    struct{}
	requestIDKey        struct{}
	sessionIDKey        struct{}
	requestStartTimeKey struct{}
)

// RequestCorrelation tags every request with correlation and request ids.
type RequestCorrelation struct {
	logger *zap.Logger
}

// NewRequestCorrelation creates a new correlation middleware.
func NewRequestCorrelation(logger *zap.Logger) *RequestCorrelation {
	return &RequestCorrelation{logger: logger}
}

// Middleware returns the HTTP middleware handler. Ids supplied by the
// client are kept so retries of the same chat turn can be traced.
func (rc *RequestCorrelation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := headerOrNewID(r, CorrelationIDHeader)
		requestID := headerOrNewID(r, RequestIDHeader)

		w.Header().Set(CorrelationIDHeader, correlationID)
		w.Header().Set(RequestIDHeader, requestID)

		ctx := WithCorrelationID(r.Context(), correlationID)
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
		ctx = context.WithValue(ctx, requestStartTimeKey{}, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func headerOrNewID(r *http.Request, header string) string {
	if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
		return id
	}
	return generateID()
}

func valueOf[T any](ctx context.Context, key any) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// GetCorrelationID returns the correlation id stored in ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	return valueOf[string](ctx, correlationIDKey{})
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	return valueOf[string](ctx, requestIDKey{})
}

// GetSessionID returns the chat session id stored in ctx, or "".
func GetSessionID(ctx context.Context) string {
	return valueOf[string](ctx, sessionIDKey{})
}

// GetRequestStartTime returns when the request entered the chain.
func GetRequestStartTime(ctx context.Context) time.Time {
	return valueOf[time.Time](ctx, requestStartTimeKey{})
}

// WithCorrelationID tags ctx with a correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// WithSessionID tags ctx with the chat session being served.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// generateID returns a dashless random UUID.
func generateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// LoggerWithCorrelation returns logger annotated with whatever ids ctx carries.
func LoggerWithCorrelation(ctx context.Context, logger *zap.Logger) *zap.Logger {
	var fields []zap.Field
	for _, f := range []struct {
		name, value string
	}{
		{"correlation_id", GetCorrelationID(ctx)},
		{"request_id", GetRequestID(ctx)},
		{"session_id", GetSessionID(ctx)},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.name, f.value))
		}
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
