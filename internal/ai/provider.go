package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/config"
	"github.com/jkindrix/coral/internal/sanitize"
)

// NewChatModel builds the provider selected by llm.provider.
func NewChatModel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ChatModel, error) {
	switch cfg.LLM.Provider {
	case config.ProviderAnthropic:
		logConfigured(logger, cfg.LLM.Provider, cfg.Anthropic.Model, cfg.Anthropic.APIKey)
		return NewClaudeClient(&cfg.Anthropic, cfg.LLM.Timeout, logger.Named("claude")), nil
	case config.ProviderCohere:
		logConfigured(logger, cfg.LLM.Provider, cfg.Cohere.Model, cfg.Cohere.APIKey)
		return NewCohereClient(&cfg.Cohere, cfg.LLM.Timeout, logger.Named("cohere")), nil
	case config.ProviderGemini:
		logConfigured(logger, cfg.LLM.Provider, cfg.Gemini.Model, cfg.Gemini.APIKey)
		return NewGeminiClient(ctx, &cfg.Gemini, logger.Named("gemini"))
	case config.ProviderNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func logConfigured(logger *zap.Logger, provider, model, apiKey string) {
	logger.Info("language model configured",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("api_key", sanitize.APIKey(apiKey)),
	)
}

// AssistantConfigFrom maps llm settings onto an AssistantConfig.
func AssistantConfigFrom(cfg *config.LLMConfig) AssistantConfig {
	out := DefaultAssistantConfig()
	if cfg.ClassifyMaxTokens > 0 {
		out.Classify = Params{Temperature: cfg.ClassifyTemperature, MaxTokens: cfg.ClassifyMaxTokens}
	}
	if cfg.ReplyMaxTokens > 0 {
		out.Reply = Params{Temperature: cfg.ReplyTemperature, MaxTokens: cfg.ReplyMaxTokens}
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	return out
}
