package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
)

// Media types understood by the default decoders.
const (
	MediaTypeWAV    = "audio/wav"
	MediaTypeMPEG   = "audio/mpeg"
	MediaTypeFLAC   = "audio/flac"
	MediaTypeOgg    = "audio/ogg"
	MediaTypeL16    = "audio/l16"
	defaultL16Rate  = 8000
	maxL16Channels  = 8
	beepStreamBlock = 512
)

// Decoder turns a complete container blob into channel-separated samples.
// params holds the media type parameters (e.g. rate, channels).
type Decoder interface {
	Decode(data []byte, params map[string]string) (*DecodedBuffer, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte, params map[string]string) (*DecodedBuffer, error)

func (f DecoderFunc) Decode(data []byte, params map[string]string) (*DecodedBuffer, error) {
	return f(data, params)
}

// L16MediaType builds the media type for raw big-endian 16-bit PCM (RFC 2586).
func L16MediaType(sampleRate, channels int) string {
	return fmt.Sprintf("audio/L16; rate=%d; channels=%d", sampleRate, channels)
}

// MediaTypeForPath guesses a media type from a file extension.
func MediaTypeForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return MediaTypeWAV, nil
	case ".mp3":
		return MediaTypeMPEG, nil
	case ".flac":
		return MediaTypeFLAC, nil
	case ".ogg", ".oga":
		return MediaTypeOgg, nil
	case ".l16", ".pcm", ".raw":
		return L16MediaType(defaultL16Rate, 1), nil
	default:
		return "", fmt.Errorf("no known audio media type for %q", path)
	}
}

// fromPCM16 is the inverse of toPCM16: toPCM16(fromPCM16(v)) == v for every v.
// The half-LSB bias keeps truncation from dropping a step.
func fromPCM16(v int16) float32 {
	switch {
	case v == 0:
		return 0
	case v < 0:
		return float32(math.Max(-1, (float64(v)-0.5)/0x8000))
	default:
		return float32(math.Min(1, (float64(v)+0.5)/0x7FFF))
	}
}

// EncodeL16 serializes a buffer as interleaved big-endian 16-bit PCM.
func EncodeL16(buf *DecodedBuffer) []byte {
	channels := buf.NumChannels()
	frames := buf.Frames()
	out := make([]byte, frames*channels*2)
	off := 0
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			binary.BigEndian.PutUint16(out[off:], uint16(toPCM16(buf.Channels[c][i])))
			off += 2
		}
	}
	return out
}

func decodeL16(data []byte, params map[string]string) (*DecodedBuffer, error) {
	rate := defaultL16Rate
	channels := 1

	if v, ok := params["rate"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid rate parameter %q", v)
		}
		rate = n
	}
	if v, ok := params["channels"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxL16Channels {
			return nil, fmt.Errorf("invalid channels parameter %q", v)
		}
		channels = n
	}

	frameBytes := 2 * channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not a whole number of %d-byte frames", len(data), frameBytes)
	}

	frames := len(data) / frameBytes
	out := &DecodedBuffer{SampleRate: rate, Channels: make([][]float32, channels)}
	for c := range out.Channels {
		out.Channels[c] = make([]float32, frames)
	}

	off := 0
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out.Channels[c][i] = fromPCM16(int16(binary.BigEndian.Uint16(data[off:])))
			off += 2
		}
	}
	return out, nil
}

func decodeWAVContainer(data []byte, _ map[string]string) (*DecodedBuffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("invalid WAV container: %w", err)
		}
		return nil, errors.New("invalid WAV container")
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	return fromIntBuffer(pcm, d.WavAudioFormat == wavFormatFloat)
}

func fromIntBuffer(pcm *goaudio.IntBuffer, ieeeFloat bool) (*DecodedBuffer, error) {
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return nil, errors.New("missing channel count")
	}
	if pcm.Format.SampleRate <= 0 {
		return nil, errors.New("missing sample rate")
	}

	bitDepth := pcm.SourceBitDepth
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	channels := pcm.Format.NumChannels
	frames := len(pcm.Data) / channels
	out := &DecodedBuffer{SampleRate: pcm.Format.SampleRate, Channels: make([][]float32, channels)}
	for c := range out.Channels {
		out.Channels[c] = make([]float32, frames)
	}

	fullScale := float64(int64(1) << (bitDepth - 1))
	for i := 0; i < frames*channels; i++ {
		v := pcm.Data[i]
		var s float32
		switch {
		case ieeeFloat && bitDepth == 32:
			s = math.Float32frombits(uint32(int32(v)))
		case bitDepth == 8:
			// 8-bit WAV is unsigned
			s = float32(v-128) / 128
		case bitDepth == 16:
			s = fromPCM16(int16(v))
		default:
			s = float32(float64(v) / fullScale)
		}
		out.Channels[i%channels][i/channels] = s
	}
	return out, nil
}

type streamOpener func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

// beepDecoder decodes compressed containers through a beep stream.
func beepDecoder(open streamOpener) Decoder {
	return DecoderFunc(func(data []byte, _ map[string]string) (*DecodedBuffer, error) {
		stream, format, err := open(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, err
		}
		defer stream.Close()

		return drainStream(stream, format)
	})
}

func drainStream(s beep.Streamer, format beep.Format) (*DecodedBuffer, error) {
	if format.SampleRate <= 0 {
		return nil, errors.New("missing sample rate")
	}

	channels := 2
	if format.NumChannels == 1 {
		channels = 1
	}

	out := &DecodedBuffer{SampleRate: int(format.SampleRate), Channels: make([][]float32, channels)}
	block := make([][2]float64, beepStreamBlock)
	for {
		n, ok := s.Stream(block)
		for _, frame := range block[:n] {
			for c := 0; c < channels; c++ {
				out.Channels[c] = append(out.Channels[c], float32(frame[c]))
			}
		}
		if !ok {
			break
		}
	}

	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func defaultDecoders() map[string]Decoder {
	wavDecoder := DecoderFunc(decodeWAVContainer)
	mpegDecoder := beepDecoder(mp3.Decode)
	flacDecoder := beepDecoder(func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return flac.Decode(rc)
	})
	oggDecoder := beepDecoder(vorbis.Decode)

	return map[string]Decoder{
		MediaTypeWAV:     wavDecoder,
		"audio/x-wav":    wavDecoder,
		"audio/wave":     wavDecoder,
		"audio/vnd.wave": wavDecoder,
		MediaTypeMPEG:    mpegDecoder,
		"audio/mp3":      mpegDecoder,
		MediaTypeFLAC:    flacDecoder,
		"audio/x-flac":   flacDecoder,
		MediaTypeOgg:     oggDecoder,
		"audio/vorbis":   oggDecoder,
		MediaTypeL16:     DecoderFunc(decodeL16),
	}
}
