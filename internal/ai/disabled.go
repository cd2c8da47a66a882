package ai

import (
	"context"

	apperrors "github.com/jkindrix/coral/internal/errors"
)

// Disabled is the provider used when no model is configured. Every call
// fails with ErrModelUnavailable; the engine answers unmatched messages
// with its fallback text and generated replies with its apology.
type Disabled struct{}

// Name implements ChatModel.
func (Disabled) Name() string { return "none" }

// Chat implements ChatModel.
func (Disabled) Chat(context.Context, ChatRequest) (string, error) {
	return "", apperrors.ErrModelUnavailable
}
