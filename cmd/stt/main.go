// Package main provides the stt CLI entrypoint.
//
// Usage:
//
//	stt [--config file] <command> [options]
//
// Commands:
//   - serve:   run the transcription HTTP server
//   - record:  capture one session and print the transcript
//   - ptt:     interactive push-to-talk terminal UI
//   - convert: convert an audio file into a canonical WAV
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	serviceName    = "speech-to-text"
	serviceVersion = "1.0.0"
)

func main() {
	app := &cli.App{
		Name:           "stt",
		Usage:          "Push-to-talk speech-to-text client and transcription server",
		Version:        serviceVersion,
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
		},
		Commands: []*cli.Command{
			serveCommand(),
			recordCommand(),
			pttCommand(),
			convertCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit and prints other errors.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
