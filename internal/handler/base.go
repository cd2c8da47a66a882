// Package handler provides HTTP handlers for the chat service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/jkindrix/coral/internal/errors"
	"github.com/jkindrix/coral/internal/middleware"
)

// JSONWithRequest writes a JSON response, including the request ID header.
func JSONWithRequest(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		w.Header().Set(middleware.RequestIDHeader, reqID)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// APIErrorWithRequest writes err as a JSON error body. Application errors
// keep their code and status; anything else is reported as a 500 without
// leaking the cause.
func APIErrorWithRequest(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.GetHTTPStatus(err)
	if rep, ok := r.Context().Value(errorReporterKey{}).(ErrorReporter); ok && status >= http.StatusInternalServerError {
		rep.APIError(r.Context(), r.URL.Path, r.Method, status, err.Error())
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || status >= http.StatusInternalServerError {
		appErr = apperrors.New(apperrors.GetCode(err), "internal server error")
	}
	JSONWithRequest(w, r, status, appErr.ToResponse())
}

// ErrorReporter receives server-side API failures.
type ErrorReporter interface {
	APIError(ctx context.Context, endpoint, method string, statusCode int, errorMsg string)
}

type errorReporterKey struct{}

// WithErrorReporter makes rep available to APIErrorWithRequest for every
// request passing through.
func WithErrorReporter(rep ErrorReporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), errorReporterKey{}, rep)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MethodNotAllowed writes a 405 with the Allow header set.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	JSONWithRequest(w, r, http.StatusMethodNotAllowed,
		apperrors.New(apperrors.CodeInvalidInput, "method not allowed").ToResponse())
}
