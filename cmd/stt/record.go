package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/metrics"
	"github.com/trillhause/speech-to-text/internal/session"
)

var durationFlag = &cli.DurationFlag{
	Name:    "duration",
	Aliases: []string{"d"},
	Usage:   "Stop after this long (default: end of file for a file source)",
}

func recordCommand() *cli.Command {
	return &cli.Command{
		Name:      "record",
		Usage:     "Capture one session, print the transcript and the latency",
		ArgsUsage: " ",
		Flags:     append(captureFlags(), durationFlag),
		Action:    recordAction,
	}
}

func recordAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyCaptureFlags(c, cfg); err != nil {
		return err
	}

	duration := c.Duration(durationFlag.Name)
	if cfg.Capture.Source == "udp" && duration <= 0 {
		return cli.Exit("--duration is required for a udp source", 2)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	serveMetrics(ctx, c.String(metricsAddrFlag.Name), reg, logger)

	results := make(chan session.Update, 1)
	notifier := session.NotifierFunc(func(u session.Update) {
		switch u.Status {
		case session.StatusTranscript:
			logger.Debug("Running transcript", zap.Uint64("seq", u.Seq), zap.String("transcript", u.Transcript))
		case session.StatusChunkFailed:
			logger.Warn("Chunk failed", zap.Uint64("seq", u.Seq), zap.Error(u.Err))
		case session.StatusDone, session.StatusFailed:
			select {
			case results <- u:
			default:
			}
		}
	})

	cl, err := newClient(cfg, false, notifier, logger, metrics.NewMetrics(reg))
	if err != nil {
		return err
	}
	defer cl.Close()

	// The event loop outlives the interrupt so Stop still sees the final
	// frame and CaptureStopped.
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(c.Context))
	defer stopLoop()
	go cl.controller.Run(loopCtx)

	if err := cl.controller.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("failed to start capture: %v", err), 1)
	}

	var exhausted <-chan struct{}
	if cl.backend.file != nil {
		exhausted = cl.backend.file.Exhausted()
	}
	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-exhausted:
		logger.Info("End of file reached")
	case <-timeout:
		logger.Info("Recording duration elapsed", zap.Duration("duration", duration))
	case <-ctx.Done():
		logger.Info("Interrupted, stopping recording")
	}

	if err := cl.controller.Stop(); err != nil {
		return err
	}

	// a second interrupt abandons the in-flight submissions
	waitCtx, waitStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer waitStop()

	select {
	case res := <-results:
		return printResult(res)
	case <-waitCtx.Done():
		return cli.Exit("interrupted before the transcript was complete", 130)
	}
}

func printResult(res session.Update) error {
	if res.Status == session.StatusFailed {
		return cli.Exit(fmt.Sprintf("transcription failed: %v", res.Err), 1)
	}

	fmt.Fprintln(os.Stdout, res.Transcript)
	fmt.Fprintf(os.Stderr, "Latency: %.2fs\n", res.Latency.Seconds())
	return nil
}
