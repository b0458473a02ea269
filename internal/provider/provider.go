package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/config"
)

// Provider turns a canonical WAV container into text. An empty string is a
// valid result (silence).
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Close() error
}

// New builds the provider selected by cfg.Name.
func New(ctx context.Context, cfg *config.ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Name {
	case "openai":
		return NewOpenAIProvider(cfg, logger)
	case "google":
		return NewGoogleProvider(ctx, cfg, logger)
	case "mock":
		return NewMockProvider(cfg.MockText, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
