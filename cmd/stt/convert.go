package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/trillhause/speech-to-text/internal/audio"
)

var float32Flag = &cli.BoolFlag{
	Name:  "float32",
	Usage: "Write 32-bit IEEE float samples instead of 16-bit PCM",
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert an audio file (wav, mp3, flac, ogg) into a canonical WAV",
		ArgsUsage: "<input> <output.wav>",
		Flags:     []cli.Flag{float32Flag},
		Action:    convertAction,
	}
}

func convertAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("convert requires <input> and <output.wav>", 2)
	}
	in, out := c.Args().Get(0), c.Args().Get(1)

	format := audio.PCM16
	if c.Bool(float32Flag.Name) {
		format = audio.Float32
	}

	mediaType, err := audio.MediaTypeForPath(in)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}

	wav, err := audio.NewConverter(format).Convert(c.Context, audio.Blob{Data: data, MediaType: mediaType})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to convert %s: %v", in, err), 1)
	}

	if err := os.WriteFile(out, wav, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %d Hz, %d channel(s), %d-bit, %.2fs\n",
		out, info.SampleRate, info.Channels, info.BitsPerSample, info.Duration)
	return nil
}
