package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/atacado-crm/internal/config"
	"github.com/wolfman30/atacado-crm/internal/llm"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// BuildLLMClient wires the completion client chain from config. A nil client
// with a nil error means no provider is configured; sales answers then use
// the fallback text. The returned cleanup is never nil.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, loadAWS AWSLoader, logger *logging.Logger) (llm.Client, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, closePrimary, err := buildProvider(ctx, cfg.LLMProvider, cfg, loadAWS, logger)
	if err != nil {
		return nil, noop, err
	}
	fallbackName := cfg.LLMFallbackProvider
	if fallbackName == cfg.LLMProvider {
		fallbackName = ""
	}
	fallback, closeFallback, err := buildProvider(ctx, fallbackName, cfg, loadAWS, logger)
	if err != nil {
		closePrimary()
		return nil, noop, err
	}
	cleanup := func() {
		closePrimary()
		closeFallback()
	}

	switch {
	case primary != nil && fallback != nil:
		logger.Info("completion client configured", "provider", cfg.LLMProvider, "fallback", fallbackName)
		return llm.NewFallbackClient(primary, fallback, logger), cleanup, nil
	case primary != nil:
		logger.Info("completion client configured", "provider", cfg.LLMProvider)
		return primary, cleanup, nil
	case fallback != nil:
		logger.Warn("primary completion provider unavailable; using fallback only", "provider", cfg.LLMProvider, "fallback", fallbackName)
		return fallback, cleanup, nil
	default:
		logger.Warn("no completion provider configured; sales answers use fallback text")
		return nil, cleanup, nil
	}
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, loadAWS AWSLoader, logger *logging.Logger) (llm.Client, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "stub":
		return nil, noop, nil
	case "openai":
		if strings.TrimSpace(cfg.LLMAPIKey) == "" {
			logger.Warn("openai provider selected but LLM_API_KEY is empty")
			return nil, noop, nil
		}
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: openai client: %w", err)
		}
		return client, noop, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			logger.Warn("bedrock provider selected but BEDROCK_MODEL_ID is empty")
			return nil, noop, nil
		}
		if loadAWS == nil {
			return nil, noop, fmt.Errorf("bootstrap: bedrock requires aws config")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), noop, nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			logger.Warn("gemini provider selected but GEMINI_API_KEY is empty")
			return nil, noop, nil
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close gemini client", "error", err)
			}
		}, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}
