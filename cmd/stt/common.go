package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/audio"
	"github.com/trillhause/speech-to-text/internal/capture"
	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/logging"
	"github.com/trillhause/speech-to-text/internal/metrics"
	"github.com/trillhause/speech-to-text/internal/session"
	"github.com/trillhause/speech-to-text/internal/transcription"
)

// Global flags.
var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to a YAML configuration file (defaults apply when omitted)",
		EnvVars: []string{"STT_CONFIG"},
	}

	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Override logging.level: debug, info, warn, error",
	}
)

// Flags shared by record and ptt.
var (
	sourceFlag = &cli.StringFlag{
		Name:  "source",
		Usage: "Capture backend: file or udp (overrides capture.source)",
	}

	fileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Audio file replayed as the microphone (wav, mp3, flac, ogg)",
	}

	chunkMsFlag = &cli.StringFlag{
		Name:  "chunk-ms",
		Usage: "Chunk period in milliseconds for chunked mode",
	}

	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "Delivery mode: chunked or whole",
	}

	serverURLFlag = &cli.StringFlag{
		Name:  "server-url",
		Usage: "Transcription server base URL (overrides client.server_url)",
	}

	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Serve client Prometheus metrics on this address (e.g. :9100)",
	}
)

func captureFlags() []cli.Flag {
	return []cli.Flag{sourceFlag, fileFlag, chunkMsFlag, modeFlag, serverURLFlag, metricsAddrFlag}
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}

	if level := c.String(logLevelFlag.Name); level != "" {
		cfg.Logging.Level = level
		if err := cfg.Logging.Validate(); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
	}
	return cfg, nil
}

// applyCaptureFlags applies record/ptt overrides and revalidates the
// affected sections.
func applyCaptureFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet(sourceFlag.Name) {
		cfg.Capture.Source = c.String(sourceFlag.Name)
	}
	if c.IsSet(fileFlag.Name) {
		cfg.Capture.File = c.String(fileFlag.Name)
		if !c.IsSet(sourceFlag.Name) {
			cfg.Capture.Source = "file"
		}
	}
	if c.IsSet(chunkMsFlag.Name) {
		period, err := config.ParseChunkPeriod(c.String(chunkMsFlag.Name))
		if err != nil {
			return fmt.Errorf("--chunk-ms: %w", err)
		}
		cfg.Client.ChunkPeriodMs = int(period / time.Millisecond)
	}
	if c.IsSet(modeFlag.Name) {
		cfg.Client.Mode = c.String(modeFlag.Name)
	}
	if c.IsSet(serverURLFlag.Name) {
		cfg.Client.ServerURL = c.String(serverURLFlag.Name)
	}

	if err := cfg.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	if err := cfg.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if cfg.Capture.Source == "file" && cfg.Capture.File == "" {
		return cli.Exit("a file source needs --file or capture.file", 2)
	}
	return nil
}

// captureBackend bundles the source with its backend-specific handles.
type captureBackend struct {
	source capture.Source
	file   *capture.FileSource // nil for udp
	closer io.Closer
}

func newCaptureBackend(cfg *config.Config, loop bool, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) (*captureBackend, error) {
	switch cfg.Capture.Source {
	case "udp":
		src := capture.NewUDPSource(&cfg.Capture, logger, m)
		if err := src.Listen(); err != nil {
			return nil, err
		}
		return &captureBackend{source: src, closer: src}, nil

	default:
		src, err := capture.NewFileSource(capture.FileConfig{
			Path:          cfg.Capture.File,
			FrameDuration: cfg.Capture.FrameDuration(),
			Loop:          loop,
			Clock:         clk,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Replaying file as microphone",
			zap.String("file", cfg.Capture.File),
			zap.Duration("duration", src.Duration()),
			zap.String("media_type", src.MediaType()),
		)
		return &captureBackend{source: src, file: src, closer: src}, nil
	}
}

// client is the wired capture pipeline used by record and ptt.
type client struct {
	controller *session.Controller
	transport  *transcription.Client
	backend    *captureBackend
	logger     *zap.Logger
}

func newClient(cfg *config.Config, loop bool, notifier session.Notifier, logger *zap.Logger, m *metrics.Metrics) (*client, error) {
	format, err := audio.ParseSampleFormat(cfg.Client.SampleFormat)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	backend, err := newCaptureBackend(cfg, loop, clk, logger, m)
	if err != nil {
		return nil, err
	}

	transport, err := transcription.NewClient(transcription.Config{
		BaseURL:       cfg.Client.ServerURL,
		WholePath:     cfg.Client.WholePath,
		ChunkPath:     cfg.Client.ChunkPath,
		APIKey:        cfg.Client.APIKey,
		Timeout:       cfg.Client.GetTimeoutDuration(),
		MaxConcurrent: cfg.Client.MaxConcurrent,
		UserAgent:     fmt.Sprintf("%s/%s", serviceName, serviceVersion),
	})
	if err != nil {
		backend.closer.Close()
		return nil, err
	}

	controller, err := session.New(session.ConfigFromClient(&cfg.Client), session.Deps{
		Source:    backend.source,
		Converter: audio.NewConverter(format),
		Transport: transport,
		Notifier:  notifier,
		Clock:     clk,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		backend.closer.Close()
		return nil, err
	}

	return &client{controller: controller, transport: transport, backend: backend, logger: logger}, nil
}

// Close shuts the pipeline down in dependency order and logs transport stats.
func (c *client) Close() {
	if err := c.controller.Close(); err != nil {
		c.logger.Warn("Error closing session controller", zap.Error(err))
	}
	if err := c.backend.closer.Close(); err != nil {
		c.logger.Warn("Error closing capture backend", zap.Error(err))
	}

	stats := c.transport.GetStats()
	c.transport.Close()
	c.logger.Info("Final transport statistics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("success_requests", stats.SuccessRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Float64("success_rate", stats.SuccessRate),
		zap.Duration("avg_response_time", stats.AvgResponseTime),
	)
}

// newRegistry returns a registry with the Go and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics exposes reg on addr until ctx is done. An empty addr disables it.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	if addr == "" {
		return
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving client metrics", zap.String("address", addr))
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
