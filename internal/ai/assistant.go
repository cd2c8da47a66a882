package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/circuitbreaker"
	apperrors "github.com/jkindrix/coral/internal/errors"
)

// Call kinds used as metric labels.
const (
	KindClassify = "classify"
	KindComplete = "complete"
)

// CallRecorder receives one observation per provider call.
type CallRecorder interface {
	RecordModelCall(provider, kind string, success bool, duration time.Duration)
}

// Params are the sampling settings for one kind of call.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// AssistantConfig holds per-kind sampling settings and the call timeout.
type AssistantConfig struct {
	Classify Params
	Reply    Params
	Timeout  time.Duration
}

// DefaultAssistantConfig returns the sampling settings the chatbot was tuned with.
func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{
		Classify: Params{Temperature: 0.3, MaxTokens: 10},
		Reply:    Params{Temperature: 0.7, MaxTokens: 120},
		Timeout:  20 * time.Second,
	}
}

// Assistant turns a ChatModel into the two operations the conversation
// engine needs: intent classification and instructed completion.
type Assistant struct {
	model    ChatModel
	breaker  *circuitbreaker.CircuitBreaker
	cfg      AssistantConfig
	recorder CallRecorder
	logger   *zap.Logger
}

// NewAssistant creates an Assistant. A nil breaker gets the default
// configuration; a nil recorder disables call metrics.
func NewAssistant(model ChatModel, breaker *circuitbreaker.CircuitBreaker, cfg AssistantConfig, recorder CallRecorder, logger *zap.Logger) *Assistant {
	if breaker == nil {
		breaker = circuitbreaker.New("llm-"+model.Name(), circuitbreaker.DefaultConfig(), logger)
	}
	return &Assistant{
		model:    model,
		breaker:  breaker,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger.Named("assistant"),
	}
}

// Provider returns the configured provider name.
func (a *Assistant) Provider() string { return a.model.Name() }

// Classify asks the model which description matches message. It returns the
// 1-based index the model chose, or 0 when the answer is not a number.
// Range checking is left to the caller.
func (a *Assistant) Classify(ctx context.Context, message string, descriptions []string) (int, error) {
	text, err := a.call(ctx, KindClassify, ChatRequest{
		Message:     ClassificationPrompt(message, descriptions),
		Temperature: a.cfg.Classify.Temperature,
		MaxTokens:   a.cfg.Classify.MaxTokens,
	})
	if err != nil {
		return 0, err
	}

	index := ParseIndex(text)
	a.logger.Debug("intent classified",
		zap.String("raw", text),
		zap.Int("index", index),
	)
	return index, nil
}

// Complete generates a reply following instruction, with preamble as the
// system prompt and history as prior user turns.
func (a *Assistant) Complete(ctx context.Context, instruction, preamble string, history []string) (string, error) {
	req := ChatRequest{
		Preamble:    preamble,
		Message:     instruction,
		Temperature: a.cfg.Reply.Temperature,
		MaxTokens:   a.cfg.Reply.MaxTokens,
	}
	for _, h := range history {
		req.History = append(req.History, Message{Role: RoleUser, Text: h})
	}
	return a.call(ctx, KindComplete, req)
}

// CircuitBreakerStats returns the current circuit breaker statistics.
func (a *Assistant) CircuitBreakerStats() circuitbreaker.Stats {
	return a.breaker.Stats()
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (a *Assistant) IsCircuitOpen() bool {
	return a.breaker.IsOpen()
}

// call runs one provider request inside the breaker and returns trimmed,
// non-empty text.
func (a *Assistant) call(ctx context.Context, kind string, req ChatRequest) (string, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	if _, ok := a.model.(Disabled); ok {
		return "", apperrors.ErrModelUnavailable
	}

	start := time.Now()
	var text string
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		out, err := a.model.Chat(ctx, req)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(out)
		if text == "" {
			return apperrors.ErrModelEmpty
		}
		return nil
	})
	duration := time.Since(start)

	if a.recorder != nil {
		a.recorder.RecordModelCall(a.model.Name(), kind, err == nil, duration)
	}

	if err != nil {
		a.logger.Warn("model call failed",
			zap.String("provider", a.model.Name()),
			zap.String("kind", kind),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", translateError(a.model.Name(), err)
	}
	return text, nil
}

func translateError(provider string, err error) error {
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return apperrors.ErrCircuitOpen
	case errors.Is(err, apperrors.ErrModelEmpty), errors.Is(err, apperrors.ErrModelUnavailable):
		return err
	default:
		return apperrors.ExternalServiceError(provider, err)
	}
}

// ClassificationPrompt renders the intent classification instruction.
func ClassificationPrompt(message string, descriptions []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Classify the user's intent based on their message: \"%s\".\n", message)
	sb.WriteString("Possible intents and their detection prompts:\n")
	for i, d := range descriptions {
		fmt.Fprintf(&sb, "%d. Intent: %s\n", i+1, d)
	}
	sb.WriteString("Return the index of the matching intent (1-based) or 0 if no match.")
	return sb.String()
}

// ParseIndex reads the leading integer of a model answer, so "2", " 2." and
// "2 - services" all yield 2. Anything without a leading number yields 0.
func ParseIndex(text string) int {
	s := strings.TrimSpace(text)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
