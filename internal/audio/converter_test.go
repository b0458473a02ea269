package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func testBuffer() *DecodedBuffer {
	return &DecodedBuffer{
		SampleRate: 16000,
		Channels:   [][]float32{{0, 1, -1, 0.5, -0.25, 0.123, -0.987}},
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	for v := math.MinInt16; v <= math.MaxInt16; v++ {
		if got := toPCM16(fromPCM16(int16(v))); got != int16(v) {
			t.Fatalf("Expected %d after round trip, got %d", v, got)
		}
	}
}

func TestConvertL16(t *testing.T) {
	buf := testBuffer()
	converter := NewConverter(PCM16)

	wavData, err := converter.Convert(context.Background(), Blob{
		Data:      EncodeL16(buf),
		MediaType: L16MediaType(buf.SampleRate, 1),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	expected, err := EncodeWAV(buf, PCM16)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if !bytes.Equal(wavData, expected) {
		t.Errorf("Converted container differs from direct encoding")
	}
}

func TestConvertL16Stereo(t *testing.T) {
	buf := &DecodedBuffer{
		SampleRate: 8000,
		Channels:   [][]float32{{0.5, -0.5, 0}, {1, -1, 0.25}},
	}
	converter := NewConverter(PCM16)

	wavData, err := converter.Convert(context.Background(), Blob{
		Data:      EncodeL16(buf),
		MediaType: "audio/L16;rate=8000;channels=2",
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", info.Channels)
	}
	if info.NumFrames != 3 {
		t.Errorf("Expected 3 frames, got %d", info.NumFrames)
	}

	expected, _ := EncodeWAV(buf, PCM16)
	if !bytes.Equal(wavData, expected) {
		t.Errorf("Converted stereo container differs from direct encoding")
	}
}

func TestConvertConcatenatedL16Frames(t *testing.T) {
	first := &DecodedBuffer{SampleRate: 8000, Channels: [][]float32{{0.1, 0.2}}}
	second := &DecodedBuffer{SampleRate: 8000, Channels: [][]float32{{0.3, 0.4, 0.5}}}
	blob := append(EncodeL16(first), EncodeL16(second)...)

	converter := NewConverter(PCM16)
	decoded, err := converter.Decode(Blob{Data: blob, MediaType: L16MediaType(8000, 1)})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Frames() != 5 {
		t.Errorf("Expected 5 frames, got %d", decoded.Frames())
	}
}

func TestConvertWAVContainer(t *testing.T) {
	buf := testBuffer()
	source, err := EncodeWAV(buf, PCM16)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	converter := NewConverter(PCM16)
	wavData, err := converter.Convert(context.Background(), Blob{Data: source, MediaType: "audio/wav"})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if !bytes.Equal(wavData, source) {
		t.Errorf("Expected canonical PCM16 WAV to survive conversion unchanged")
	}
}

func TestConvertFloat32Output(t *testing.T) {
	buf := testBuffer()
	converter := NewConverter(Float32)

	wavData, err := converter.Convert(context.Background(), Blob{
		Data:      EncodeL16(buf),
		MediaType: L16MediaType(buf.SampleRate, 1),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if tag := binary.LittleEndian.Uint16(wavData[20:22]); tag != 3 {
		t.Errorf("Expected format tag 3, got %d", tag)
	}
	if bits := binary.LittleEndian.Uint16(wavData[34:36]); bits != 32 {
		t.Errorf("Expected 32 bits per sample, got %d", bits)
	}
}

func TestConvertDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		blob Blob
	}{
		{"empty blob", Blob{Data: nil, MediaType: MediaTypeWAV}},
		{"missing media type", Blob{Data: []byte{1, 2}, MediaType: ""}},
		{"unsupported media type", Blob{Data: []byte{1, 2}, MediaType: "video/webm"}},
		{"garbage wav", Blob{Data: []byte("definitely not a riff file at all, just text"), MediaType: MediaTypeWAV}},
		{"odd l16 payload", Blob{Data: []byte{1, 2, 3}, MediaType: L16MediaType(8000, 1)}},
		{"bad l16 rate", Blob{Data: []byte{1, 2}, MediaType: "audio/L16; rate=abc"}},
	}

	converter := NewConverter(PCM16)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wavData, err := converter.Convert(context.Background(), tt.blob)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
			if wavData != nil {
				t.Errorf("Expected no partial output, got %d bytes", len(wavData))
			}

			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("Expected *DecodeError, got %T", err)
			}
		})
	}
}

func TestConvertCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	converter := NewConverter(PCM16)
	_, err := converter.Convert(ctx, Blob{Data: EncodeL16(testBuffer()), MediaType: L16MediaType(16000, 1)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestConverterRegister(t *testing.T) {
	converter := NewConverter(PCM16)
	converter.Register("audio/X-Test", DecoderFunc(func(data []byte, _ map[string]string) (*DecodedBuffer, error) {
		return &DecodedBuffer{SampleRate: 8000, Channels: [][]float32{make([]float32, len(data))}}, nil
	}))

	wavData, err := converter.Convert(context.Background(), Blob{Data: []byte{1, 2, 3}, MediaType: "audio/x-test"})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(wavData) != WAVHeaderSize+6 {
		t.Errorf("Expected %d bytes, got %d", WAVHeaderSize+6, len(wavData))
	}
}

func TestMediaTypeForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
		wantErr  bool
	}{
		{"speech.wav", MediaTypeWAV, false},
		{"speech.MP3", MediaTypeMPEG, false},
		{"speech.flac", MediaTypeFLAC, false},
		{"speech.ogg", MediaTypeOgg, false},
		{"speech.pcm", L16MediaType(8000, 1), false},
		{"speech.webm", "", true},
	}

	for _, tt := range tests {
		got, err := MediaTypeForPath(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error %v, got %v", tt.path, tt.wantErr, err)
		}
		if got != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.path, tt.expected, got)
		}
	}
}
