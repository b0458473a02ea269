package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	c := Default()
	if c.Client.ChunkPeriod() != 2*time.Second {
		t.Errorf("Expected default chunk period 2s, got %v", c.Client.ChunkPeriod())
	}
	if c.Client.WholePath != "/transcribe" || c.Client.ChunkPath != "/transcribe-chunk" {
		t.Errorf("Unexpected default endpoints: %s, %s", c.Client.WholePath, c.Client.ChunkPath)
	}
}

func TestParseChunkPeriod(t *testing.T) {
	tests := []struct {
		raw      string
		expected time.Duration
		valid    bool
	}{
		{"2000", 2 * time.Second, true},
		{" 750 ", 750 * time.Millisecond, true},
		{"1", time.Millisecond, true},
		{"abc", 0, false},
		{"-5", 0, false},
		{"0", 0, false},
		{"", 0, false},
		{"1.5", 0, false},
		{"86400000", 24 * time.Hour, true},
		{"86400001", 0, false},
		{"9300000000000", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := ParseChunkPeriod(tt.raw)
			if tt.valid {
				if err != nil {
					t.Fatalf("Expected no error but got: %v", err)
				}
				if d != tt.expected {
					t.Errorf("Expected %v, got %v", tt.expected, d)
				}
				return
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected *ValidationError, got %v", err)
			}
			if ve.Field != "chunk_period_ms" {
				t.Errorf("Expected field chunk_period_ms, got %s", ve.Field)
			}
		})
	}
}

func TestClientConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *ClientConfig)
		valid    bool
		errField string
	}{
		{"defaults", func(c *ClientConfig) {}, true, ""},
		{"whole mode", func(c *ClientConfig) { c.Mode = ModeWhole }, true, ""},
		{"float32 output", func(c *ClientConfig) { c.SampleFormat = "float32" }, true, ""},
		{"relative server url", func(c *ClientConfig) { c.ServerURL = "localhost:3000" }, false, "server_url"},
		{"bad chunk path", func(c *ClientConfig) { c.ChunkPath = "transcribe-chunk" }, false, "chunk_path"},
		{"unknown mode", func(c *ClientConfig) { c.Mode = "streaming" }, false, "mode"},
		{"negative chunk period", func(c *ClientConfig) { c.ChunkPeriodMs = -5 }, false, "chunk_period_ms"},
		{"zero chunk period", func(c *ClientConfig) { c.ChunkPeriodMs = 0 }, false, "chunk_period_ms"},
		{"chunk period above a day", func(c *ClientConfig) { c.ChunkPeriodMs = MaxChunkPeriodMs + 1 }, false, "chunk_period_ms"},
		{"unknown sample format", func(c *ClientConfig) { c.SampleFormat = "pcm24" }, false, "sample_format"},
		{"negative grace", func(c *ClientConfig) { c.StopGraceMs = -1 }, false, "stop_grace_ms"},
		{"zero concurrency", func(c *ClientConfig) { c.MaxConcurrent = 0 }, false, "max_concurrent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default().Client
			tt.mutate(&c)

			err := c.Validate()
			if tt.valid {
				if err != nil {
					t.Errorf("Expected valid config but got error: %v", err)
				}
				return
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected *ValidationError, got %v", err)
			}
			if ve.Field != tt.errField {
				t.Errorf("Expected field %s, got %s", tt.errField, ve.Field)
			}
		})
	}
}

func TestCaptureConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CaptureConfig)
		valid  bool
	}{
		{"defaults", func(c *CaptureConfig) {}, true},
		{"udp source", func(c *CaptureConfig) { c.Source = "udp" }, true},
		{"unknown source", func(c *CaptureConfig) { c.Source = "mic" }, false},
		{"frame too short", func(c *CaptureConfig) { c.FrameMs = 5 }, false},
		{"port too high", func(c *CaptureConfig) { c.UDPPort = 70000 }, false},
		{"buffer too small", func(c *CaptureConfig) { c.BufferSize = 512 }, false},
		{"three channels", func(c *CaptureConfig) { c.Channels = 3 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default().Capture
			tt.mutate(&c)

			err := c.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestServerConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config ServerConfig
		valid  bool
	}{
		{
			name:   "valid config",
			config: ServerConfig{Address: "0.0.0.0", Port: 3000, MaxUploadBytes: 1 << 20, ReadTimeout: 10, WriteTimeout: 10},
			valid:  true,
		},
		{
			name:   "port too low",
			config: ServerConfig{Address: "0.0.0.0", Port: 0, MaxUploadBytes: 1 << 20, ReadTimeout: 10, WriteTimeout: 10},
			valid:  false,
		},
		{
			name:   "empty address",
			config: ServerConfig{Address: "", Port: 3000, MaxUploadBytes: 1 << 20, ReadTimeout: 10, WriteTimeout: 10},
			valid:  false,
		},
		{
			name:   "upload limit too small",
			config: ServerConfig{Address: "0.0.0.0", Port: 3000, MaxUploadBytes: 10, ReadTimeout: 10, WriteTimeout: 10},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestProviderConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		valid  bool
	}{
		{"openai", ProviderConfig{Name: "openai", Model: "whisper-1", Timeout: 30}, true},
		{"google", ProviderConfig{Name: "google", Timeout: 30}, true},
		{"mock", ProviderConfig{Name: "mock", Timeout: 30}, true},
		{"openai without model", ProviderConfig{Name: "openai", Timeout: 30}, false},
		{"unknown provider", ProviderConfig{Name: "deepgram", Timeout: 30}, false},
		{"zero timeout", ProviderConfig{Name: "mock", Timeout: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{"valid json to stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, true},
		{"valid console to stderr", LoggingConfig{Level: "debug", Format: "console", Output: "stderr"}, true},
		{"file output", LoggingConfig{Level: "warn", Format: "json", Output: "/tmp/stt.log"}, true},
		{"invalid log level", LoggingConfig{Level: "trace", Format: "json", Output: "stdout"}, false},
		{"invalid format", LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
client:
  server_url: "http://stt.internal:8080"
  mode: whole
  chunk_period_ms: 1500
capture:
  source: udp
  udp_port: 5555
provider:
  name: mock
  mock_text: "hello"
logging:
  level: debug
  format: json
  output: stdout
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
client:
  chunk_period_ms: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "invalid chunk period",
			configYAML: `
client:
  chunk_period_ms: -5
`,
			expectError: true,
			errorMsg:    "chunk_period_ms must be a positive integer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Loader{Lookup: noEnv}.Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if config.Client.Mode != ModeWhole {
				t.Errorf("Expected mode whole, got %s", config.Client.Mode)
			}
			if config.Client.ChunkPeriodMs != 1500 {
				t.Errorf("Expected chunk period 1500, got %d", config.Client.ChunkPeriodMs)
			}
			// unset keys keep their defaults
			if config.Client.ChunkPath != "/transcribe-chunk" {
				t.Errorf("Expected default chunk path, got %s", config.Client.ChunkPath)
			}
			if config.Capture.UDPPort != 5555 {
				t.Errorf("Expected udp port 5555, got %d", config.Capture.UDPPort)
			}
		})
	}
}

func TestConfigLoadNonExistentFile(t *testing.T) {
	_, err := Loader{Lookup: noEnv}.Load("/non/existent/config.yaml")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestConfigLoadEnvOverrides(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":      "sk-test",
		"STT_PROVIDER":        "mock",
		"STT_SERVER_URL":      "https://stt.example.com",
		"PORT":                "8081",
		"STT_CHUNK_PERIOD_MS": "900",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	config, err := Loader{Lookup: lookup}.Load("")
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.Provider.APIKey != "sk-test" {
		t.Errorf("Expected api key from env, got %q", config.Provider.APIKey)
	}
	if config.Provider.Name != "mock" {
		t.Errorf("Expected provider mock, got %s", config.Provider.Name)
	}
	if config.Client.ServerURL != "https://stt.example.com" {
		t.Errorf("Expected server url from env, got %s", config.Client.ServerURL)
	}
	if config.Server.Port != 8081 {
		t.Errorf("Expected port 8081, got %d", config.Server.Port)
	}
	if config.Client.ChunkPeriod() != 900*time.Millisecond {
		t.Errorf("Expected chunk period 900ms, got %v", config.Client.ChunkPeriod())
	}
}

func TestConfigLoadBadEnvInteger(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "PORT" {
			return "eighty", true
		}
		return "", false
	}

	_, err := Loader{Lookup: lookup}.Load("")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected *ValidationError, got %v", err)
	}
}

func TestConfigLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("STT_TEST_DOTENV_LANGUAGE=uk\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("STT_TEST_DOTENV_LANGUAGE") })

	_, err := Loader{Lookup: noEnv, DotEnv: []string{envFile, filepath.Join(dir, "missing.env")}}.Load("")
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if got := os.Getenv("STT_TEST_DOTENV_LANGUAGE"); got != "uk" {
		t.Errorf("Expected .env value to be exported, got %q", got)
	}
}

func TestDurationHelpers(t *testing.T) {
	c := Default()
	c.Client.StopGraceMs = 250
	c.Client.SubmitTimeout = 0
	c.Capture.FrameMs = 40

	if c.Client.StopGrace() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", c.Client.StopGrace())
	}
	if c.Client.GetSubmitTimeoutDuration() != 0 {
		t.Errorf("Expected no submit timeout, got %v", c.Client.GetSubmitTimeoutDuration())
	}
	if c.Capture.FrameDuration() != 40*time.Millisecond {
		t.Errorf("Expected 40ms, got %v", c.Capture.FrameDuration())
	}
	if c.Server.ListenAddr() != "0.0.0.0:3000" {
		t.Errorf("Expected 0.0.0.0:3000, got %s", c.Server.ListenAddr())
	}
}
