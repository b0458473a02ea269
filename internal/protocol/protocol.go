package protocol

import (
	"encoding/binary"
	"fmt"
)

// Wire constants for network microphone datagrams
const (
	// Packet types
	PacketTypeFormat = 0x01
	PacketTypeAudio  = 0x02

	// Version is the only protocol version understood by the parser.
	Version = 0x01

	// Packet structure sizes
	HeaderSize             = 8 // 1 + 2 + 4 + 1 bytes
	FormatPayloadSize      = 8 // 4 + 2 + 2 bytes
	AudioPayloadHeaderSize = 4 // Sequence number (4 bytes)

	// MaxPacketSize is bounded by the 16-bit length field.
	MaxPacketSize = 0xFFFF
)

// Header represents the 8-byte packet header
// Layout: [PacketType:1][PacketLen:2][StreamID:4][Version:1]
type Header struct {
	PacketType uint8  // 0x01=Format, 0x02=Audio
	PacketLen  uint16 // Total packet size (header + payload)
	StreamID   uint32 // Identifies one microphone
	Version    uint8
}

// FormatPayload announces the PCM layout of the audio packets that follow.
// Layout: [SampleRate:4][Channels:2][BitsPerSample:2]
type FormatPayload struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][AudioData:N], AudioData is big-endian 16-bit PCM.
type AudioPayload struct {
	Sequence  uint32
	AudioData []byte
}

// ParsedPacket represents a fully parsed packet
type ParsedPacket struct {
	Header *Header
	Format *FormatPayload // Only set for format packets
	Audio  *AudioPayload  // Only set for audio packets
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	return &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		StreamID:   binary.BigEndian.Uint32(data[3:7]),
		Version:    data[7],
	}, nil
}

// ParseFormatPayload parses the 8-byte format payload
func ParseFormatPayload(data []byte) (*FormatPayload, error) {
	if len(data) < FormatPayloadSize {
		return nil, fmt.Errorf("format payload too short: expected %d bytes, got %d",
			FormatPayloadSize, len(data))
	}

	payload := &FormatPayload{
		SampleRate:    binary.BigEndian.Uint32(data[0:4]),
		Channels:      binary.BigEndian.Uint16(data[4:6]),
		BitsPerSample: binary.BigEndian.Uint16(data[6:8]),
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// Validate checks that the announced layout is one the capture path can carry.
func (f *FormatPayload) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("unsupported channel count: %d", f.Channels)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bits per sample: %d", f.BitsPerSample)
	}
	return nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sequence + audio data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}

	// Copy audio data, the receive buffer is reused
	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	if len(payload.AudioData)%2 != 0 {
		return nil, fmt.Errorf("audio data length must be even (got %d bytes)", len(payload.AudioData))
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeFormat:
		payload, err := ParseFormatPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse format payload: %w", err)
		}
		packet.Format = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.Version != Version {
		return fmt.Errorf("unsupported protocol version: 0x%02x", header.Version)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeFormat:
		if payloadSize != FormatPayloadSize {
			return fmt.Errorf("format packet payload size mismatch: expected %d, got %d",
				FormatPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeFormat || ptype == PacketTypeAudio
}

// BuildFormatPacket encodes a format announcement for a stream.
func BuildFormatPacket(streamID uint32, format FormatPayload) []byte {
	packet := make([]byte, HeaderSize+FormatPayloadSize)
	putHeader(packet, PacketTypeFormat, streamID)
	binary.BigEndian.PutUint32(packet[HeaderSize:], format.SampleRate)
	binary.BigEndian.PutUint16(packet[HeaderSize+4:], format.Channels)
	binary.BigEndian.PutUint16(packet[HeaderSize+6:], format.BitsPerSample)
	return packet
}

// BuildAudioPacket encodes one audio packet. It fails when the PCM data
// would overflow the length field.
func BuildAudioPacket(streamID, sequence uint32, pcm []byte) ([]byte, error) {
	size := HeaderSize + AudioPayloadHeaderSize + len(pcm)
	if size > MaxPacketSize {
		return nil, fmt.Errorf("audio packet too large: %d bytes (maximum %d)", size, MaxPacketSize)
	}

	packet := make([]byte, size)
	putHeader(packet, PacketTypeAudio, streamID)
	binary.BigEndian.PutUint32(packet[HeaderSize:], sequence)
	copy(packet[HeaderSize+AudioPayloadHeaderSize:], pcm)
	return packet, nil
}

func putHeader(packet []byte, ptype uint8, streamID uint32) {
	packet[0] = ptype
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], streamID)
	packet[7] = Version
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeFormat:
		packetType = "Format"
	case PacketTypeAudio:
		packetType = "Audio"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, StreamID:%d, Version:%d}",
		packetType, h.PacketLen, h.StreamID, h.Version)
}

// String returns a human-readable representation of the format payload
func (f *FormatPayload) String() string {
	return fmt.Sprintf("FormatPayload{SampleRate:%d, Channels:%d, BitsPerSample:%d}",
		f.SampleRate, f.Channels, f.BitsPerSample)
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}
