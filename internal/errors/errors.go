// Package errors provides the application error type for the Coral chat service.
// It classifies failures, maps them to HTTP statuses, and keeps the wrapped cause.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents an application error code.
type Code string

// Error codes for different error categories.
const (
	// Request validation
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeMissingField Code = "MISSING_FIELD"
	CodeInvalidInput Code = "INVALID_INPUT"

	// Access
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeRateLimited  Code = "RATE_LIMITED"

	// Language model
	CodeModelUnavailable Code = "MODEL_UNAVAILABLE"
	CodeModelEmpty       Code = "MODEL_EMPTY_RESPONSE"
	CodeExternalService  Code = "EXTERNAL_SERVICE_ERROR"
	CodeCircuitOpen      Code = "CIRCUIT_OPEN"
	CodeTimeout          Code = "TIMEOUT"

	// Persistence and hand-off
	CodeSessionStore Code = "SESSION_STORE_ERROR"
	CodeDatabase     Code = "DATABASE_ERROR"
	CodeHandoff      Code = "HANDOFF_FAILED"

	CodeInternal Code = "INTERNAL_ERROR"
	CodeConfig   Code = "CONFIG_ERROR"
)

// Kind represents the kind of error for classification.
type Kind int

const (
	// KindUnknown is an unknown error kind.
	KindUnknown Kind = iota
	// KindUser indicates a caller-caused error (bad input, missing session id).
	KindUser
	// KindSystem indicates a system error (store down, misconfiguration).
	KindSystem
	// KindTransient indicates a temporary error that may succeed on retry.
	KindTransient
)

// Error is the base application error type.
type Error struct {
	// Code is the machine-readable error code.
	Code Code `json:"code"`
	// Message is the human-readable error message.
	Message string `json:"message"`
	// Kind classifies the error for handling decisions.
	Kind Kind `json:"-"`
	// Op is the operation being performed (e.g., "engine.Respond").
	Op string `json:"-"`
	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeMissingField, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeExternalService, CodeCircuitOpen, CodeModelEmpty, CodeModelUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetriable returns true if the error may succeed on retry.
func (e *Error) IsRetriable() bool {
	return e.Kind == KindTransient
}

// ErrorResponse represents the JSON response for API errors.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error details in API responses.
type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an Error to an API response.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
		},
	}
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, op string, code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
		Op:      op,
		Err:     err,
	}
}

func kindForCode(code Code) Kind {
	switch code {
	case CodeValidation, CodeMissingField, CodeInvalidInput, CodeUnauthorized, CodeNotFound:
		return KindUser
	case CodeRateLimited, CodeTimeout, CodeCircuitOpen, CodeExternalService, CodeModelEmpty, CodeHandoff:
		return KindTransient
	default:
		return KindSystem
	}
}

// Sentinel errors for common cases.
var (
	ErrUnauthorized     = New(CodeUnauthorized, "authentication required")
	ErrRateLimited      = New(CodeRateLimited, "rate limit exceeded")
	ErrCircuitOpen      = New(CodeCircuitOpen, "language model temporarily unavailable")
	ErrModelUnavailable = New(CodeModelUnavailable, "no language model configured")
	ErrModelEmpty       = New(CodeModelEmpty, "language model returned no text")
)

// MissingField creates a missing field validation error.
func MissingField(field string) *Error {
	return &Error{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("%s is required", field),
		Kind:    KindUser,
	}
}

// InvalidInput creates a validation error for a malformed value.
func InvalidInput(message string) *Error {
	return &Error{
		Code:    CodeInvalidInput,
		Message: message,
		Kind:    KindUser,
	}
}

// ExternalServiceError creates an error for a failed model provider call.
func ExternalServiceError(service string, err error) *Error {
	return &Error{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Kind:    KindTransient,
		Err:     err,
	}
}

// SessionStoreError wraps a session persistence failure.
func SessionStoreError(op string, err error) *Error {
	return &Error{
		Code:    CodeSessionStore,
		Message: "session store operation failed",
		Kind:    KindSystem,
		Op:      op,
		Err:     err,
	}
}

// DatabaseError creates a database error with the underlying cause.
func DatabaseError(op string, err error) *Error {
	return &Error{
		Code:    CodeDatabase,
		Message: "database operation failed",
		Kind:    KindSystem,
		Op:      op,
		Err:     err,
	}
}

// HandoffError wraps a failed lead or booking delivery.
func HandoffError(kind string, err error) *Error {
	return &Error{
		Code:    CodeHandoff,
		Message: fmt.Sprintf("%s hand-off failed", kind),
		Kind:    KindTransient,
		Err:     err,
	}
}

// GetCode extracts the error code from an error, returning CodeInternal for non-app errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error, returning 500 for non-app errors.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsRetriable checks if an error is retriable.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetriable()
	}
	return false
}

// IsUserError checks if an error was caused by the caller.
func IsUserError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindUser
	}
	return false
}
