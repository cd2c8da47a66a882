// Package validation checks inbound chat requests and admin query
// parameters before they reach the engine or the stores.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
)

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// AppError converts the first failure into an application error so the
// HTTP layer can map it to a status. It returns nil when there are none.
func (e ValidationErrors) AppError() error {
	if !e.HasErrors() {
		return nil
	}
	first := e[0]
	if first.Code == CodeRequired {
		return apperrors.MissingField(first.Field)
	}
	return apperrors.InvalidInput(e.Error())
}

// Error codes for validation failures.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeTooLong       = "too_long"
	CodeInvalidValue  = "invalid_value"
)

// MaxSessionIDLength bounds client-supplied session ids.
const MaxSessionIDLength = 128

// Validator accumulates field errors.
type Validator struct {
	errors ValidationErrors
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// Errors returns all accumulated validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// IsValid returns true if no validation errors occurred.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message, code string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
}

// Required validates that a string field is not blank.
func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required", CodeRequired)
		return false
	}
	return true
}

// MaxLength validates string length in runes.
func (v *Validator) MaxLength(field, value string, maxLen int) bool {
	if maxLen > 0 && utf8.RuneCountInString(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", maxLen), CodeTooLong)
		return false
	}
	return true
}

// SafeString rejects control characters other than newlines and tabs.
func (v *Validator) SafeString(field, value string) bool {
	for _, r := range value {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			v.AddError(field, "contains invalid control characters", CodeInvalidFormat)
			return false
		}
	}
	if !utf8.ValidString(value) {
		v.AddError(field, "must be valid UTF-8", CodeInvalidFormat)
		return false
	}
	return true
}

// OneOf validates that value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")), CodeInvalidValue)
	return false
}

// ChatRequest is a decoded chat turn prior to validation. Text is nil when
// the client sent no text at all; an empty string is a valid answer.
type ChatRequest struct {
	SessionID string
	Text      *string
	Event     string
}

// ValidateChatRequest checks a turn and returns the engine input.
// maxMessageLength of zero disables the length check.
func ValidateChatRequest(req ChatRequest, maxMessageLength int) (domain.Input, error) {
	v := New()

	if v.Required("sessionId", req.SessionID) {
		v.MaxLength("sessionId", req.SessionID, MaxSessionIDLength)
		v.SafeString("sessionId", req.SessionID)
	}

	switch {
	case req.Event != "":
		v.OneOf("event", req.Event, []string{string(domain.EventWelcome)})
	case req.Text == nil:
		v.AddError("text", "is required", CodeRequired)
	default:
		v.MaxLength("text", *req.Text, maxMessageLength)
		v.SafeString("text", *req.Text)
	}

	if err := v.Errors().AppError(); err != nil {
		return domain.Input{}, err
	}

	in := domain.Input{Event: domain.Event(req.Event)}
	if req.Event == "" {
		in.Text = *req.Text
	}
	return in, nil
}

// PaginationConfig contains constraints for pagination parameters.
type PaginationConfig struct {
	MaxLimit     int
	DefaultLimit int
	MaxOffset    int
}

// DefaultPaginationConfig returns the admin listing defaults.
func DefaultPaginationConfig() *PaginationConfig {
	return &PaginationConfig{
		MaxLimit:     500,
		DefaultLimit: 50,
		MaxOffset:    100000,
	}
}

// PaginationParams represents validated pagination parameters.
type PaginationParams struct {
	Limit  int
	Offset int
}

// ValidatePagination validates and normalizes pagination parameters.
func ValidatePagination(limit, offset int, cfg *PaginationConfig) (*PaginationParams, error) {
	if cfg == nil {
		cfg = DefaultPaginationConfig()
	}

	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	if limit > cfg.MaxLimit {
		return nil, apperrors.InvalidInput(fmt.Sprintf("limit must not exceed %d (got %d)", cfg.MaxLimit, limit))
	}
	if offset < 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("offset must not be negative (got %d)", offset))
	}
	if offset > cfg.MaxOffset {
		return nil, apperrors.InvalidInput(fmt.Sprintf("offset must not exceed %d (got %d)", cfg.MaxOffset, offset))
	}

	return &PaginationParams{Limit: limit, Offset: offset}, nil
}
