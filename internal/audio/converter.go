package audio

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
)

// Blob is an opaque captured container together with its media type.
type Blob struct {
	Data      []byte
	MediaType string
}

// Converter decodes captured containers and re-encodes them as canonical WAV.
type Converter struct {
	format SampleFormat

	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewConverter creates a converter emitting the given sample format, with
// decoders for WAV, MPEG, FLAC, Ogg Vorbis and L16 registered.
func NewConverter(format SampleFormat) *Converter {
	return &Converter{
		format:   format,
		decoders: defaultDecoders(),
	}
}

// Format returns the sample format of emitted containers.
func (c *Converter) Format() SampleFormat {
	return c.format
}

// Register adds or replaces the decoder for a media type.
func (c *Converter) Register(mediaType string, d Decoder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[strings.ToLower(mediaType)] = d
}

// Decode decodes a blob into channel-separated samples.
func (c *Converter) Decode(blob Blob) (buf *DecodedBuffer, err error) {
	if len(blob.Data) == 0 {
		return nil, decodeErr(blob.MediaType, "empty blob")
	}

	mediaType, params, err := mime.ParseMediaType(blob.MediaType)
	if err != nil {
		return nil, decodeErr(blob.MediaType, "invalid media type: %v", err)
	}

	c.mu.RLock()
	decoder, ok := c.decoders[mediaType]
	c.mu.RUnlock()
	if !ok {
		return nil, decodeErr(mediaType, "unsupported media type")
	}

	// third-party decoders can panic on hostile input
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = decodeErr(mediaType, "decoder panic: %v", r)
		}
	}()

	buf, err = decoder.Decode(blob.Data, params)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecodeError{MediaType: mediaType, Err: err}
	}
	if buf == nil || buf.NumChannels() == 0 {
		return nil, decodeErr(mediaType, "no audio channels decoded")
	}
	return buf, nil
}

// Convert decodes the blob and re-encodes it as a canonical WAV container.
// It never returns a partial result.
func (c *Converter) Convert(ctx context.Context, blob Blob) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := c.Decode(blob)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wav, err := EncodeWAV(buf, c.format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}
	return wav, nil
}
