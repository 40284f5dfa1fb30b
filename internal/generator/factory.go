package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/kiln/internal/config"
	"go.uber.org/zap"
)

// New builds the provider selected in cfg. Construction failures do not stop
// the pipeline: the returned Generator fails every call instead, and the
// failure is logged once here.
func New(ctx context.Context, cfg config.GeneratorConfig, logger *zap.Logger) Generator {
	var timeout time.Duration
	if cfg.Timeout != nil {
		timeout = *cfg.Timeout
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: timeout,
		})
		if err != nil {
			logger.Warn("Gemini generator unavailable", zap.Error(err))
			return Unavailable(err)
		}
		return client

	case config.ProviderOpenAI, "":
		if cfg.APIKey == "" {
			logger.Warn("OpenAI generator has no API key; every request will fail", zap.String("env", "OPENAI_API_KEY"))
		}
		openAI := DefaultOpenAIConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openAI.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			openAI.Model = cfg.Model
		}
		openAI.Timeout = timeout
		return NewOpenAIClient(openAI)

	default:
		err := fmt.Errorf("unknown provider %q", cfg.Provider)
		logger.Warn("Generator unavailable", zap.Error(err))
		return Unavailable(err)
	}
}
