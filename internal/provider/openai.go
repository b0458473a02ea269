package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/config"
)

// OpenAIProvider transcribes with the OpenAI audio transcription API
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	language string
	logger   *zap.Logger
}

// NewOpenAIProvider creates an OpenAI provider. BaseURL may point at any
// API-compatible server.
func NewOpenAIProvider(cfg *config.ProviderConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider requires an API key (set OPENAI_API_KEY)")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.GetTimeoutDuration()}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		language: cfg.Language,
		logger:   logger,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Transcribe uploads the WAV container and returns the recognized text
func (p *OpenAIProvider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: p.language,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			p.logger.Warn("OpenAI API error",
				zap.Int("status_code", apiErr.HTTPStatusCode),
				zap.String("message", apiErr.Message),
			)
		}
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}

	return resp.Text, nil
}

func (p *OpenAIProvider) Close() error { return nil }
