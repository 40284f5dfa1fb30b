package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/kiln/internal/config"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration // 0 = no timeout
}

// GeminiClient implements Generator using the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

// Generate sends req.Prompt with req.System as the system instruction.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var genConfig *genai.GenerateContentConfig
	if req.System != "" {
		genConfig = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, ErrEmptyResponse
	}

	model := result.ModelVersion
	if model == "" {
		model = g.model
	}

	return &Response{
		Text:  text,
		Model: model,
	}, nil
}
