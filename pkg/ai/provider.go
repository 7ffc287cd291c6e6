package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ProviderConfig selects and configures a model provider.
type ProviderConfig struct {
	Name         string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	Logger       zerolog.Logger
}

// NewProvider returns the provider named in cfg. Gemini is the default.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "gemini":
		return NewGeminiStreamer(ctx, GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: cfg.Logger,
		})
	case "openai":
		return NewOpenAIStreamer(OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Name)
	}
}
