package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/audit"
	apperrors "github.com/jkindrix/coral/internal/errors"
	"github.com/jkindrix/coral/internal/service"
)

// Authenticator validates admin credentials for a client.
type Authenticator interface {
	Enabled() bool
	Authenticate(ctx context.Context, username, password, ip string) error
	RemainingAttempts(ip string) int
}

// AuthRecorder counts authentication outcomes.
type AuthRecorder interface {
	RecordAuthAttempt(success bool)
}

type adminUserKey struct{}

// AdminUser returns the authenticated admin username, if any.
func AdminUser(ctx context.Context) string {
	if u, ok := ctx.Value(adminUserKey{}).(string); ok {
		return u
	}
	return ""
}

// RequestInfo collects the audit fields for r.
func RequestInfo(r *http.Request) audit.RequestInfo {
	return audit.RequestInfo{
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: GetRequestID(r.Context()),
	}
}

// AdminAuth guards the admin routes with HTTP basic auth.
func AdminAuth(auth Authenticator, auditLog *audit.Logger, recorder AuthRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info := RequestInfo(r)

			if !auth.Enabled() {
				auditLog.AccessDenied(ctx, r.URL.Path, info, "admin disabled")
				writeAuthError(w, http.StatusNotFound, apperrors.New(apperrors.CodeNotFound, "not found"), false)
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				auditLog.AccessDenied(ctx, r.URL.Path, info, "missing credentials")
				writeAuthError(w, http.StatusUnauthorized, apperrors.ErrUnauthorized, true)
				return
			}

			if err := auth.Authenticate(ctx, username, password, info.IP); err != nil {
				if recorder != nil {
					recorder.RecordAuthAttempt(false)
				}
				auditLog.AdminAuthFailure(ctx, username, info, err.Error())
				LoggerWithCorrelation(ctx, logger).Warn("admin authentication failed",
					zap.String("username", username),
					zap.String("ip", info.IP),
					zap.Int("remaining_attempts", auth.RemainingAttempts(info.IP)),
					zap.Error(err),
				)

				if errors.Is(err, service.ErrLockedOut) {
					w.Header().Set("Retry-After", strconv.Itoa(int(service.LockoutDuration.Seconds())))
					writeAuthError(w, http.StatusTooManyRequests, apperrors.ErrRateLimited, false)
					return
				}
				writeAuthError(w, http.StatusUnauthorized, apperrors.ErrUnauthorized, true)
				return
			}

			if recorder != nil {
				recorder.RecordAuthAttempt(true)
			}
			auditLog.AdminAuthSuccess(ctx, username, info)

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, adminUserKey{}, username)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, err *apperrors.Error, challenge bool) {
	if challenge {
		w.Header().Set("WWW-Authenticate", `Basic realm="coral-admin", charset="UTF-8"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err.ToResponse())
}
