package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config represents the complete client and server configuration
type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Capture  CaptureConfig  `yaml:"capture"`
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ClientConfig controls capture sessions and submission to the transcription server
type ClientConfig struct {
	ServerURL     string `yaml:"server_url"`
	WholePath     string `yaml:"whole_path"`
	ChunkPath     string `yaml:"chunk_path"`
	APIKey        string `yaml:"api_key"`
	Mode          string `yaml:"mode"`            // chunked | whole
	ChunkPeriodMs int    `yaml:"chunk_period_ms"` // chunked mode only
	SampleFormat  string `yaml:"sample_format"`   // pcm16 | float32
	StopGraceMs   int    `yaml:"stop_grace_ms"`   // wait for the final frame after stop
	Timeout       int    `yaml:"timeout"`         // seconds, per HTTP request
	SubmitTimeout int    `yaml:"submit_timeout"`  // seconds, 0 disables
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// CaptureConfig selects and tunes the capture backend
type CaptureConfig struct {
	Source      string `yaml:"source"` // file | udp
	File        string `yaml:"file"`
	FrameMs     int    `yaml:"frame_ms"`
	BindAddress string `yaml:"bind_address"`
	UDPPort     int    `yaml:"udp_port"`
	BufferSize  int    `yaml:"buffer_size"`
	SampleRate  int    `yaml:"sample_rate"` // assumed until a format packet arrives
	Channels    int    `yaml:"channels"`
	MaxGap      int    `yaml:"max_gap"` // sequence gap before packets are declared lost
}

// ServerConfig contains transcription HTTP server configuration
type ServerConfig struct {
	Address        string `yaml:"address"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	ReadTimeout    int    `yaml:"read_timeout"`  // seconds
	WriteTimeout   int    `yaml:"write_timeout"` // seconds
}

// ProviderConfig selects the speech-to-text backend used by the server
type ProviderConfig struct {
	Name     string `yaml:"name"` // openai | google | mock
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	MockText string `yaml:"mock_text"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Modes accepted by ClientConfig.Mode.
const (
	ModeChunked = "chunked"
	ModeWhole   = "whole"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			ServerURL:     "http://localhost:3000",
			WholePath:     "/transcribe",
			ChunkPath:     "/transcribe-chunk",
			Mode:          ModeChunked,
			ChunkPeriodMs: 2000,
			SampleFormat:  "pcm16",
			StopGraceMs:   500,
			Timeout:       30,
			MaxConcurrent: 4,
		},
		Capture: CaptureConfig{
			Source:      "file",
			FrameMs:     100,
			BindAddress: "0.0.0.0",
			UDPPort:     4444,
			BufferSize:  65536,
			SampleRate:  16000,
			Channels:    1,
			MaxGap:      20,
		},
		Server: ServerConfig{
			Address:        "0.0.0.0",
			Port:           3000,
			MaxUploadBytes: 25 << 20,
			ReadTimeout:    60,
			WriteTimeout:   120,
		},
		Provider: ProviderConfig{
			Name:    "openai",
			Model:   "whisper-1",
			Timeout: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates client configuration
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("server_url", c.ServerURL, "must be an absolute http(s) URL")
	}

	if !strings.HasPrefix(c.WholePath, "/") {
		return invalid("whole_path", c.WholePath, "must start with '/'")
	}

	if !strings.HasPrefix(c.ChunkPath, "/") {
		return invalid("chunk_path", c.ChunkPath, "must start with '/'")
	}

	if c.Mode != ModeChunked && c.Mode != ModeWhole {
		return invalid("mode", c.Mode, "must be 'chunked' or 'whole'")
	}

	if c.ChunkPeriodMs <= 0 {
		return invalid("chunk_period_ms", c.ChunkPeriodMs, "must be a positive integer")
	}
	if c.ChunkPeriodMs > MaxChunkPeriodMs {
		return invalid("chunk_period_ms", c.ChunkPeriodMs, "cannot exceed 86400000 (24h)")
	}

	if c.SampleFormat != "pcm16" && c.SampleFormat != "float32" {
		return invalid("sample_format", c.SampleFormat, "must be 'pcm16' or 'float32'")
	}

	if c.StopGraceMs < 0 {
		return invalid("stop_grace_ms", c.StopGraceMs, "cannot be negative")
	}

	if c.Timeout < 1 {
		return invalid("timeout", c.Timeout, "must be at least 1 second")
	}

	if c.SubmitTimeout < 0 {
		return invalid("submit_timeout", c.SubmitTimeout, "cannot be negative")
	}

	if c.MaxConcurrent < 1 {
		return invalid("max_concurrent", c.MaxConcurrent, "must be at least 1")
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.Source != "file" && c.Source != "udp" {
		return invalid("source", c.Source, "must be 'file' or 'udp'")
	}

	if c.FrameMs < 10 || c.FrameMs > 1000 {
		return invalid("frame_ms", c.FrameMs, "must be between 10 and 1000")
	}

	if c.UDPPort < 1 || c.UDPPort > 65535 {
		return invalid("udp_port", c.UDPPort, "must be between 1 and 65535")
	}

	if c.BufferSize < 1024 {
		return invalid("buffer_size", c.BufferSize, "must be at least 1024 bytes")
	}

	if c.SampleRate <= 0 {
		return invalid("sample_rate", c.SampleRate, "must be positive")
	}

	if c.Channels < 1 || c.Channels > 2 {
		return invalid("channels", c.Channels, "must be 1 or 2")
	}

	if c.MaxGap < 0 {
		return invalid("max_gap", c.MaxGap, "cannot be negative")
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Address == "" {
		return invalid("address", s.Address, "cannot be empty")
	}

	if s.Port < 1 || s.Port > 65535 {
		return invalid("port", s.Port, "must be between 1 and 65535")
	}

	if s.MaxUploadBytes < 1024 {
		return invalid("max_upload_bytes", s.MaxUploadBytes, "must be at least 1024")
	}

	if s.ReadTimeout < 1 {
		return invalid("read_timeout", s.ReadTimeout, "must be at least 1 second")
	}

	if s.WriteTimeout < 1 {
		return invalid("write_timeout", s.WriteTimeout, "must be at least 1 second")
	}

	return nil
}

// Validate validates provider configuration
func (p *ProviderConfig) Validate() error {
	switch p.Name {
	case "openai":
		if p.Model == "" {
			return invalid("model", p.Model, "cannot be empty for the openai provider")
		}
	case "google", "mock":
	default:
		return invalid("name", p.Name, "must be one of [openai, google, mock]")
	}

	if p.Timeout < 1 {
		return invalid("timeout", p.Timeout, "must be at least 1 second")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return invalid("level", l.Level, "must be one of [debug, info, warn, error]")
	}

	validFormats := map[string]bool{"json": true, "console": true, "text": true}
	if !validFormats[l.Format] {
		return invalid("format", l.Format, "must be 'json' or 'console'")
	}

	// anything other than stdout/stderr is treated as a file path
	if l.Output == "" {
		return invalid("output", l.Output, "cannot be empty")
	}

	return nil
}

// MaxChunkPeriodMs caps the chunk period at one day.
const MaxChunkPeriodMs = 24 * 60 * 60 * 1000

// ParseChunkPeriod parses a user-supplied chunk period in milliseconds.
// Anything other than a positive integer up to MaxChunkPeriodMs is rejected.
func ParseChunkPeriod(raw string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms <= 0 {
		return 0, invalid("chunk_period_ms", raw, "must be a positive integer")
	}
	if ms > MaxChunkPeriodMs {
		return 0, invalid("chunk_period_ms", raw, "cannot exceed 86400000 (24h)")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ChunkPeriod returns the chunk period as a time.Duration
func (c *ClientConfig) ChunkPeriod() time.Duration {
	return time.Duration(c.ChunkPeriodMs) * time.Millisecond
}

// StopGrace returns how long a stop waits for the capture backend's last frame
func (c *ClientConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceMs) * time.Millisecond
}

// GetTimeoutDuration returns the HTTP timeout as a time.Duration
func (c *ClientConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetSubmitTimeoutDuration returns the per-submission timeout; zero means none
func (c *ClientConfig) GetSubmitTimeoutDuration() time.Duration {
	return time.Duration(c.SubmitTimeout) * time.Second
}

// FrameDuration returns the capture frame length as a time.Duration
func (c *CaptureConfig) FrameDuration() time.Duration {
	return time.Duration(c.FrameMs) * time.Millisecond
}

// ListenAddr returns the UDP listen address
func (c *CaptureConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.UDPPort)
}

// ListenAddr returns the HTTP listen address
func (s *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// GetReadTimeoutDuration returns the HTTP read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the HTTP write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the provider timeout as a time.Duration
func (p *ProviderConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}
