// Package ai adapts hosted chat models to the conversation engine.
package ai

import "context"

// Role identifies who authored a message in the chat history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single history entry.
type Message struct {
	Role Role
	Text string
}

// ChatRequest is a provider-neutral chat completion request. History holds
// the prior turns; Message is the new turn the model should answer.
type ChatRequest struct {
	Preamble    string
	History     []Message
	Message     string
	Temperature float64
	MaxTokens   int
}

// ChatModel is implemented by every provider back end.
type ChatModel interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Chat returns the raw completion text, which may be empty.
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
