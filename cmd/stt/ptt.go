package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/logging"
	"github.com/trillhause/speech-to-text/internal/metrics"
	"github.com/trillhause/speech-to-text/internal/session"
	"github.com/trillhause/speech-to-text/internal/tui"
)

func pttCommand() *cli.Command {
	return &cli.Command{
		Name:      "ptt",
		Usage:     "Interactive push-to-talk: space starts and stops a session",
		ArgsUsage: " ",
		Flags:     captureFlags(),
		Action:    pttAction,
	}
}

func pttAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyCaptureFlags(c, cfg); err != nil {
		return err
	}

	logger, err := newTUILogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	serveMetrics(ctx, c.String(metricsAddrFlag.Name), reg, logger)

	updates := tui.NewUpdates(0)

	// a replayed file loops so every press has audio to capture
	cl, err := newClient(cfg, true, updates, logger, metrics.NewMetrics(reg))
	if err != nil {
		return err
	}
	defer cl.Close()

	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(c.Context))
	defer stopLoop()
	go cl.controller.Run(loopCtx)

	logger.Info("Push-to-talk ready",
		zap.String("source", cfg.Capture.Source),
		zap.String("mode", cfg.Client.Mode),
		zap.Int("chunk_period_ms", cfg.Client.ChunkPeriodMs),
	)

	err = tui.RunPTT(ctx, cl.controller, updates.C())

	// leaving mid-session still ends capture through the running event loop
	if snap := cl.controller.Snapshot(); snap.State == session.StateRecording {
		if stopErr := cl.controller.Stop(); stopErr != nil {
			logger.Warn("Failed to stop the active session", zap.Error(stopErr))
		}
	}
	return err
}

// newTUILogger keeps log lines off the terminal the UI is drawing on. Only a
// file output is honored; stdout and stderr are discarded.
func newTUILogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	switch cfg.Output {
	case "stdout", "stderr":
		return logging.NewWithWriter(cfg, io.Discard)
	default:
		return logging.New(cfg)
	}
}
