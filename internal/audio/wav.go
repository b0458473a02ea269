package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// SampleFormat selects the payload encoding of an emitted WAV container.
type SampleFormat int

const (
	// PCM16 is signed 16-bit little-endian integer PCM (format tag 1).
	PCM16 SampleFormat = iota
	// Float32 is 32-bit IEEE float little-endian (format tag 3).
	Float32
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3

	// WAVHeaderSize is the size of the canonical RIFF/WAVE header.
	WAVHeaderSize = 44
)

// String returns the configuration name of the format.
func (f SampleFormat) String() string {
	switch f {
	case PCM16:
		return "pcm16"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

// ParseSampleFormat maps a configuration value to a SampleFormat.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch s {
	case "", "pcm16":
		return PCM16, nil
	case "float32":
		return Float32, nil
	default:
		return PCM16, fmt.Errorf("unknown sample format %q", s)
	}
}

func (f SampleFormat) formatTag() uint16 {
	if f == Float32 {
		return wavFormatFloat
	}
	return wavFormatPCM
}

func (f SampleFormat) bitsPerSample() uint16 {
	if f == Float32 {
		return 32
	}
	return 16
}

// DecodedBuffer is channel-separated float audio in [-1, 1].
type DecodedBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// NumChannels returns the number of channels.
func (b *DecodedBuffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of samples per channel.
func (b *DecodedBuffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the play time of the buffer.
func (b *DecodedBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// wavHeader is the canonical 44-byte WAV header, serialized little-endian
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data length
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16
	AudioFormat   uint16  // 1 PCM, 3 float
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * BlockAlign
	BlockAlign    uint16 // NumChannels * bytes per sample
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// Interleave merges a stereo pair into L0 R0 L1 R1 ... order.
func Interleave(left, right []float32) ([]float32, error) {
	if len(left) != len(right) {
		return nil, fmt.Errorf("%w: left has %d samples, right has %d",
			ErrUnsupportedChannelLayout, len(left), len(right))
	}

	out := make([]float32, len(left)*2)
	for i := range left {
		out[2*i] = left[i]
		out[2*i+1] = right[i]
	}
	return out, nil
}

// toPCM16 clamps to [-1, 1] and scales asymmetrically so -1 maps to -32768
// and 1 maps to 32767. NaN encodes as silence.
func toPCM16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7FFF)
}

// EncodeWAV serializes a decoded buffer into a canonical WAV container.
// The output is a pure function of the input.
func EncodeWAV(buf *DecodedBuffer, format SampleFormat) ([]byte, error) {
	if buf == nil {
		return nil, fmt.Errorf("cannot encode nil audio buffer")
	}

	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", buf.SampleRate)
	}

	var samples []float32
	switch len(buf.Channels) {
	case 1:
		samples = buf.Channels[0]
	case 2:
		interleaved, err := Interleave(buf.Channels[0], buf.Channels[1])
		if err != nil {
			return nil, err
		}
		samples = interleaved
	default:
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedChannelLayout, len(buf.Channels))
	}

	numChannels := uint16(len(buf.Channels))
	bitsPerSample := format.bitsPerSample()
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := uint32(len(samples)) * uint32(bitsPerSample/8)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   format.formatTag(),
		NumChannels:   numChannels,
		SampleRate:    uint32(buf.SampleRate),
		ByteRate:      uint32(buf.SampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	out := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+int(dataSize)))

	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	var payload any
	if format == Float32 {
		payload = samples
	} else {
		pcm := make([]int16, len(samples))
		for i, s := range samples {
			pcm[i] = toPCM16(s)
		}
		payload = pcm
	}

	if err := binary.Write(out, binary.LittleEndian, payload); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return out.Bytes(), nil
}

// ValidateWAV checks the canonical header layout without decoding audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// WAVInfo describes a canonical WAV container.
type WAVInfo struct {
	AudioFormat   uint16  `json:"audio_format"`
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// GetWAVInfo extracts metadata from a canonical WAV header
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}
	if header.BlockAlign == 0 {
		return nil, fmt.Errorf("invalid block align: 0")
	}

	frames := header.Subchunk2Size / uint32(header.BlockAlign)

	return &WAVInfo{
		AudioFormat:   header.AudioFormat,
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(frames) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumFrames:     frames,
	}, nil
}
