package validation

import (
	"strings"
	"testing"

	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
)

func strPtr(s string) *string { return &s }

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "sessionId", Message: "is required", Code: CodeRequired},
		{Field: "text", Message: "must be at most 5 characters", Code: CodeTooLong},
	}

	got := errs.Error()
	if !strings.Contains(got, "sessionId: is required") || !strings.Contains(got, "; text:") {
		t.Errorf("Error() = %q", got)
	}
	if (ValidationErrors{}).Error() != "validation failed" {
		t.Error("empty errors should have a generic message")
	}
	if (ValidationErrors{}).AppError() != nil {
		t.Error("empty errors should convert to nil")
	}
}

func TestValidator_Rules(t *testing.T) {
	tests := []struct {
		name  string
		check func(v *Validator) bool
		valid bool
	}{
		{"required ok", func(v *Validator) bool { return v.Required("f", "x") }, true},
		{"required blank", func(v *Validator) bool { return v.Required("f", "  ") }, false},
		{"max length ok", func(v *Validator) bool { return v.MaxLength("f", "héllo", 5) }, true},
		{"max length over", func(v *Validator) bool { return v.MaxLength("f", "héllo!", 5) }, false},
		{"max length disabled", func(v *Validator) bool { return v.MaxLength("f", "anything", 0) }, true},
		{"safe newline", func(v *Validator) bool { return v.SafeString("f", "a\nb\tc") }, true},
		{"unsafe control", func(v *Validator) bool { return v.SafeString("f", "a\x00b") }, false},
		{"invalid utf8", func(v *Validator) bool { return v.SafeString("f", "\xff") }, false},
		{"one of ok", func(v *Validator) bool { return v.OneOf("f", "A", []string{"A", "B"}) }, true},
		{"one of bad", func(v *Validator) bool { return v.OneOf("f", "C", []string{"A", "B"}) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			if got := tt.check(v); got != tt.valid {
				t.Errorf("returned %v, expected %v", got, tt.valid)
			}
			if v.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, expected %v", v.IsValid(), tt.valid)
			}
		})
	}
}

func TestValidateChatRequest(t *testing.T) {
	tests := []struct {
		name     string
		req      ChatRequest
		wantCode apperrors.Code
		want     domain.Input
	}{
		{
			name: "text",
			req:  ChatRequest{SessionID: "s-1", Text: strPtr("hello")},
			want: domain.Input{Text: "hello"},
		},
		{
			name: "empty text is an answer",
			req:  ChatRequest{SessionID: "s-1", Text: strPtr("")},
			want: domain.Input{Text: ""},
		},
		{
			name: "welcome event",
			req:  ChatRequest{SessionID: "s-1", Event: "WELCOME", Text: strPtr("ignored")},
			want: domain.Input{Event: domain.EventWelcome},
		},
		{
			name:     "missing session",
			req:      ChatRequest{Text: strPtr("hi")},
			wantCode: apperrors.CodeMissingField,
		},
		{
			name:     "blank session",
			req:      ChatRequest{SessionID: "   ", Text: strPtr("hi")},
			wantCode: apperrors.CodeMissingField,
		},
		{
			name:     "no text or event",
			req:      ChatRequest{SessionID: "s-1"},
			wantCode: apperrors.CodeMissingField,
		},
		{
			name:     "unknown event",
			req:      ChatRequest{SessionID: "s-1", Event: "GOODBYE"},
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "too long",
			req:      ChatRequest{SessionID: "s-1", Text: strPtr(strings.Repeat("a", 11))},
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "session too long",
			req:      ChatRequest{SessionID: strings.Repeat("s", MaxSessionIDLength+1), Text: strPtr("hi")},
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "control characters",
			req:      ChatRequest{SessionID: "s-1", Text: strPtr("hi\x07")},
			wantCode: apperrors.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateChatRequest(tt.req, 10)
			if tt.wantCode != "" {
				if apperrors.GetCode(err) != tt.wantCode {
					t.Fatalf("code = %s, expected %s (err %v)", apperrors.GetCode(err), tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("input = %+v, expected %+v", got, tt.want)
			}
		})
	}
}

func TestValidatePagination(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", 0, 0, 50, 0, false},
		{"explicit", 10, 20, 10, 20, false},
		{"negative limit uses default", -5, 0, 50, 0, false},
		{"limit too large", 501, 0, 0, 0, true},
		{"negative offset", 10, -1, 0, 0, true},
		{"offset too large", 10, 100001, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePagination(tt.limit, tt.offset, nil)
			if tt.wantErr {
				if !apperrors.IsUserError(err) {
					t.Errorf("expected user error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
				t.Errorf("got %+v", got)
			}
		})
	}
}
