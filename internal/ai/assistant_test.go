package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/circuitbreaker"
	"github.com/jkindrix/coral/internal/config"
	apperrors "github.com/jkindrix/coral/internal/errors"
)

type mockChatModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []ChatRequest
}

func (m *mockChatModel) Name() string { return "mock" }

func (m *mockChatModel) Chat(_ context.Context, req ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.reply, m.err
}

type recordedCall struct {
	provider, kind string
	success        bool
}

type mockRecorder struct {
	calls []recordedCall
}

func (r *mockRecorder) RecordModelCall(provider, kind string, success bool, _ time.Duration) {
	r.calls = append(r.calls, recordedCall{provider, kind, success})
}

func newTestAssistant(model ChatModel, rec CallRecorder) *Assistant {
	return NewAssistant(model, nil, DefaultAssistantConfig(), rec, zap.NewNop())
}

func TestAssistant_Classify(t *testing.T) {
	model := &mockChatModel{reply: " 2\n"}
	rec := &mockRecorder{}
	a := newTestAssistant(model, rec)

	idx, err := a.Classify(context.Background(), "what do you charge?", []string{"greeting", "pricing"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if idx != 2 {
		t.Errorf("index = %d, expected 2", idx)
	}

	req := model.requests[0]
	if req.Temperature != 0.3 || req.MaxTokens != 10 {
		t.Errorf("classification params = %v/%d", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.Message, "1. Intent: greeting\n2. Intent: pricing\n") {
		t.Errorf("prompt missing numbered intents:\n%s", req.Message)
	}
	if len(rec.calls) != 1 || rec.calls[0] != (recordedCall{"mock", KindClassify, true}) {
		t.Errorf("recorded calls = %+v", rec.calls)
	}
}

func TestAssistant_ClassifyNonNumeric(t *testing.T) {
	a := newTestAssistant(&mockChatModel{reply: "pricing"}, nil)

	idx, err := a.Classify(context.Background(), "hm", []string{"x"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if idx != 0 {
		t.Errorf("non-numeric answer should yield 0, got %d", idx)
	}
}

func TestAssistant_CompleteTrimsAndSendsHistory(t *testing.T) {
	model := &mockChatModel{reply: "  Why do programmers prefer dark mode?  "}
	a := newTestAssistant(model, nil)

	text, err := a.Complete(context.Background(), "Share a joke", "You are Coral", []string{"tell me a joke"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Why do programmers prefer dark mode?" {
		t.Errorf("text = %q", text)
	}

	req := model.requests[0]
	if req.Preamble != "You are Coral" || req.Message != "Share a joke" {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.History) != 1 || req.History[0].Role != RoleUser || req.History[0].Text != "tell me a joke" {
		t.Errorf("history = %+v", req.History)
	}
	if req.Temperature != 0.7 || req.MaxTokens != 120 {
		t.Errorf("reply params = %v/%d", req.Temperature, req.MaxTokens)
	}
}

func TestAssistant_EmptyCompletionIsError(t *testing.T) {
	rec := &mockRecorder{}
	a := newTestAssistant(&mockChatModel{reply: "   "}, rec)

	_, err := a.Complete(context.Background(), "x", "", nil)
	if !errors.Is(err, apperrors.ErrModelEmpty) {
		t.Errorf("expected ErrModelEmpty, got %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0].success {
		t.Errorf("empty completion should be recorded as failure: %+v", rec.calls)
	}
}

func TestAssistant_ProviderErrorIsWrapped(t *testing.T) {
	a := newTestAssistant(&mockChatModel{err: errors.New("connection refused")}, nil)

	_, err := a.Complete(context.Background(), "x", "", nil)
	if apperrors.GetCode(err) != apperrors.CodeExternalService {
		t.Errorf("expected external service error, got %v", err)
	}
}

func TestAssistant_CircuitOpens(t *testing.T) {
	model := &mockChatModel{err: errors.New("boom")}
	breaker := circuitbreaker.New("test", &circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		OpenTimeout:         time.Hour,
		HalfOpenMaxRequests: 1,
	}, zap.NewNop())
	a := NewAssistant(model, breaker, DefaultAssistantConfig(), nil, zap.NewNop())

	for i := 0; i < 2; i++ {
		a.Complete(context.Background(), "x", "", nil)
	}
	if !a.IsCircuitOpen() {
		t.Fatal("circuit should be open after two failures")
	}

	_, err := a.Complete(context.Background(), "x", "", nil)
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if len(model.requests) != 2 {
		t.Errorf("open circuit should not reach the provider, got %d calls", len(model.requests))
	}
}

func TestAssistant_Disabled(t *testing.T) {
	a := newTestAssistant(Disabled{}, nil)

	for i := 0; i < 10; i++ {
		_, err := a.Classify(context.Background(), "hi", []string{"x"})
		if !errors.Is(err, apperrors.ErrModelUnavailable) {
			t.Fatalf("call %d: expected ErrModelUnavailable, got %v", i, err)
		}
	}
	if a.IsCircuitOpen() {
		t.Error("a missing model must not trip the breaker")
	}
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2", 2},
		{" 2.", 2},
		{"11 - joke", 11},
		{"0", 0},
		{"42", 42},
		{"-1", -1},
		{"abc", 0},
		{"", 0},
		{"Intent 3", 0},
	}

	for _, tt := range tests {
		if got := ParseIndex(tt.in); got != tt.want {
			t.Errorf("ParseIndex(%q) = %d, expected %d", tt.in, got, tt.want)
		}
	}
}

func TestClassificationPrompt(t *testing.T) {
	got := ClassificationPrompt("hello", []string{"a", "b"})
	want := "Classify the user's intent based on their message: \"hello\".\n" +
		"Possible intents and their detection prompts:\n" +
		"1. Intent: a\n2. Intent: b\n" +
		"Return the index of the matching intent (1-based) or 0 if no match."
	if got != want {
		t.Errorf("prompt mismatch:\n%s\nexpected:\n%s", got, want)
	}
}

func TestAssistantConfigFrom(t *testing.T) {
	cfg := AssistantConfigFrom(&config.LLMConfig{
		Timeout:             3 * time.Second,
		ClassifyTemperature: 0.1,
		ClassifyMaxTokens:   5,
		ReplyTemperature:    0.9,
		ReplyMaxTokens:      200,
	})
	if cfg.Classify.MaxTokens != 5 || cfg.Reply.Temperature != 0.9 || cfg.Timeout != 3*time.Second {
		t.Errorf("unexpected %+v", cfg)
	}
}
