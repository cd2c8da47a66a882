package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	cohereoption "github.com/cohere-ai/cohere-go/v2/option"
	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/config"
)

// Cohere chat_history roles.
const (
	cohereRoleUser    = "USER"
	cohereRoleChatbot = "CHATBOT"
)

// CohereClient talks to the Cohere chat endpoint through the official SDK.
type CohereClient struct {
	client *cohereclient.Client
	model  string
	logger *zap.Logger
}

// NewCohereClient creates a new Cohere client. An empty BaseURL keeps the
// SDK's default endpoint.
func NewCohereClient(cfg *config.CohereConfig, timeout time.Duration, logger *zap.Logger) *CohereClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	opts := []cohereoption.RequestOption{
		cohereoption.WithToken(cfg.APIKey),
		cohereoption.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		opts = append(opts, cohereoption.WithBaseURL(base))
	}

	return &CohereClient{
		client: cohereclient.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

// Name implements ChatModel.
func (c *CohereClient) Name() string { return config.ProviderCohere }

// Chat implements ChatModel.
func (c *CohereClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.client.Chat(ctx, c.request(req))
	if err != nil {
		return "", fmt.Errorf("cohere chat error: %w", err)
	}

	c.logger.Debug("cohere completion",
		zap.String("model", c.model),
		zap.Int("history", len(req.History)),
		zap.Int("chars", len(resp.Text)),
	)
	return resp.Text, nil
}

func (c *CohereClient) request(req ChatRequest) *cohere.ChatRequest {
	temperature := req.Temperature
	out := &cohere.ChatRequest{
		Message:     req.Message,
		Temperature: &temperature,
	}
	if c.model != "" {
		model := c.model
		out.Model = &model
	}
	if req.Preamble != "" {
		preamble := req.Preamble
		out.Preamble = &preamble
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		out.MaxTokens = &maxTokens
	}

	for _, m := range req.History {
		msg := &cohere.ChatMessage{Message: m.Text}
		if m.Role == RoleAssistant {
			out.ChatHistory = append(out.ChatHistory, &cohere.Message{Role: cohereRoleChatbot, Chatbot: msg})
		} else {
			out.ChatHistory = append(out.ChatHistory, &cohere.Message{Role: cohereRoleUser, User: msg})
		}
	}
	return out
}
