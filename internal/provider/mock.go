package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/audio"
)

// MockProvider returns a canned transcription. With no text configured it
// describes the audio it received, which is enough for local end-to-end runs.
type MockProvider struct {
	text   string
	logger *zap.Logger
}

// NewMockProvider creates a mock provider
func NewMockProvider(text string, logger *zap.Logger) *MockProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockProvider{text: text, logger: logger}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		return "", fmt.Errorf("invalid WAV payload: %w", err)
	}

	m.logger.Debug("Mock transcription",
		zap.Uint32("sample_rate", info.SampleRate),
		zap.Uint16("channels", info.Channels),
		zap.Float64("duration", info.Duration),
	)

	if m.text != "" {
		return m.text, nil
	}
	return fmt.Sprintf("[%.2fs of audio]", info.Duration), nil
}

func (m *MockProvider) Close() error { return nil }
