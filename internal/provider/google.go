package provider

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/audio"
	"github.com/trillhause/speech-to-text/internal/config"
)

const defaultGoogleLanguage = "en-US"

// GoogleProvider transcribes with Google Cloud Speech-to-Text (synchronous
// recognition). Credentials come from the environment.
type GoogleProvider struct {
	client   *speech.Client
	language string
	logger   *zap.Logger
}

// NewGoogleProvider creates a Google Cloud Speech client
func NewGoogleProvider(ctx context.Context, cfg *config.ProviderConfig, logger *zap.Logger) (*GoogleProvider, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	language := cfg.Language
	if language == "" {
		language = defaultGoogleLanguage
	}

	return &GoogleProvider{client: client, language: language, logger: logger}, nil
}

func (g *GoogleProvider) Name() string { return "google" }

// Transcribe sends the WAV payload for recognition
func (g *GoogleProvider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		return "", fmt.Errorf("invalid WAV payload: %w", err)
	}

	recognitionConfig, err := recognitionConfigFor(info, g.language)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: wav[audio.WAVHeaderSize:]},
		},
	})
	if err != nil {
		return "", fmt.Errorf("google recognize failed: %w", err)
	}

	return joinResults(resp.GetResults()), nil
}

// recognitionConfigFor maps a WAV header onto the recognizer settings.
// Only 16-bit PCM is accepted by LINEAR16.
func recognitionConfigFor(info *audio.WAVInfo, language string) (*speechpb.RecognitionConfig, error) {
	if info.AudioFormat != 1 || info.BitsPerSample != 16 {
		return nil, fmt.Errorf("google provider requires 16-bit PCM, got format %d with %d bits",
			info.AudioFormat, info.BitsPerSample)
	}

	return &speechpb.RecognitionConfig{
		Encoding:          speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:   int32(info.SampleRate),
		AudioChannelCount: int32(info.Channels),
		LanguageCode:      language,
	}, nil
}

// joinResults concatenates the best alternative of each result
func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(alternatives[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func (g *GoogleProvider) Close() error {
	return g.client.Close()
}
