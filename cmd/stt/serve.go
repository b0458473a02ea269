package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/metrics"
	"github.com/trillhause/speech-to-text/internal/provider"
	"github.com/trillhause/speech-to-text/internal/server"
)

var (
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Listen port (overrides server.port)",
	}

	providerFlag = &cli.StringFlag{
		Name:  "provider",
		Usage: "Speech provider: openai, google or mock (overrides provider.name)",
	}
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "Run the transcription HTTP server",
		ArgsUsage: " ",
		Flags:     []cli.Flag{portFlag, providerFlag},
		Action:    serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if c.IsSet(portFlag.Name) {
		cfg.Server.Port = c.Int(portFlag.Name)
		if err := cfg.Server.Validate(); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}
	if c.IsSet(providerFlag.Name) {
		cfg.Provider.Name = c.String(providerFlag.Name)
		if err := cfg.Provider.Validate(); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Service starting",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
		zap.String("config_path", c.String(configFlag.Name)),
	)

	logger.Info("Configuration loaded",
		zap.String("address", cfg.Server.ListenAddr()),
		zap.Int64("max_upload_bytes", cfg.Server.MaxUploadBytes),
		zap.String("provider", cfg.Provider.Name),
		zap.String("model", cfg.Provider.Model),
		zap.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := provider.New(ctx, &cfg.Provider, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer p.Close()

	reg := newRegistry()
	httpServer := server.NewHTTPServer(cfg, p, logger, metrics.NewMetrics(reg), reg)
	if err := httpServer.Start(); err != nil {
		return err
	}

	logger.Info("Service started successfully, waiting for signals...")
	<-ctx.Done()
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	stats := httpServer.GetStats()
	logger.Info("Final server statistics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("success_requests", stats.SuccessRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Uint64("rejected_uploads", stats.RejectedUploads),
	)

	logger.Info("Service stopped")
	return nil
}
