package capture

import (
	"net"
	"testing"
	"time"

	"github.com/trillhause/speech-to-text/internal/audio"
	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/protocol"
)

func newTestUDPSource(t *testing.T) (*UDPSource, *net.UDPConn) {
	t.Helper()

	cfg := config.Default().Capture
	cfg.BindAddress = "127.0.0.1"
	cfg.UDPPort = 0
	cfg.SampleRate = 8000
	cfg.Channels = 1

	src := NewUDPSource(&cfg, nil, nil)
	if err := src.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	conn, err := net.DialUDP("udp", nil, src.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return src, conn
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for capture event")
		return Event{}
	}
}

func sendAudio(t *testing.T, conn *net.UDPConn, stream, seq uint32, pcm []byte) {
	t.Helper()
	packet, err := protocol.BuildAudioPacket(stream, seq, pcm)
	if err != nil {
		t.Fatalf("BuildAudioPacket failed: %v", err)
	}
	if _, err := conn.Write(packet); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestUDPSourceForwardsOnlyWhileStarted(t *testing.T) {
	src, conn := newTestUDPSource(t)

	// Ignored: capture not started
	sendAudio(t, conn, 1, 1, []byte{0x00, 0x01})
	deadline := time.Now().Add(2 * time.Second)
	for src.GetStatistics().PacketsReceived < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if err := src.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ev := nextEvent(t, src.Events()); ev.Kind != CaptureStarted {
		t.Fatalf("Expected CaptureStarted, got %s", ev.Kind)
	}

	sendAudio(t, conn, 1, 10, []byte{0x00, 0x0A})
	sendAudio(t, conn, 1, 11, []byte{0x00, 0x0B})

	for _, want := range []byte{0x0A, 0x0B} {
		ev := nextEvent(t, src.Events())
		if ev.Kind != FrameArrived {
			t.Fatalf("Expected FrameArrived, got %s", ev.Kind)
		}
		if len(ev.Frame) != 2 || ev.Frame[1] != want {
			t.Errorf("Expected frame ending in %#x, got %v", want, ev.Frame)
		}
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if ev := nextEvent(t, src.Events()); ev.Kind != CaptureStopped {
		t.Fatalf("Expected CaptureStopped, got %s", ev.Kind)
	}
}

func TestUDPSourceStopFlushesHeldPackets(t *testing.T) {
	src, conn := newTestUDPSource(t)

	src.Start()
	nextEvent(t, src.Events())

	sendAudio(t, conn, 1, 1, []byte{0x00, 0x01})
	if ev := nextEvent(t, src.Events()); ev.Kind != FrameArrived {
		t.Fatalf("Expected FrameArrived, got %s", ev.Kind)
	}

	// Sequences 2 and 4 never arrive, 3 and 5 are held
	sendAudio(t, conn, 1, 5, []byte{0x00, 0x05})
	sendAudio(t, conn, 1, 3, []byte{0x00, 0x03})
	deadline := time.Now().Add(2 * time.Second)
	for src.GetStatistics().PacketsReceived < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Let the processor pick the packets off the queue
	time.Sleep(50 * time.Millisecond)

	src.Stop()

	for _, want := range []byte{0x03, 0x05} {
		ev := nextEvent(t, src.Events())
		if ev.Kind != FrameArrived || len(ev.Frame) != 2 || ev.Frame[1] != want {
			t.Fatalf("Expected held frame %#x on stop, got %s %v", want, ev.Kind, ev.Frame)
		}
	}
	if ev := nextEvent(t, src.Events()); ev.Kind != CaptureStopped {
		t.Fatalf("Expected CaptureStopped, got %s", ev.Kind)
	}
}

func TestUDPSourceFormatPacket(t *testing.T) {
	src, conn := newTestUDPSource(t)

	if got := src.MediaType(); got != audio.L16MediaType(8000, 1) {
		t.Errorf("Expected default media type, got %s", got)
	}

	conn.Write(protocol.BuildFormatPacket(1, protocol.FormatPayload{SampleRate: 16000, Channels: 2, BitsPerSample: 16}))

	want := audio.L16MediaType(16000, 2)
	deadline := time.Now().Add(2 * time.Second)
	for src.MediaType() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := src.MediaType(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestUDPSourceParseErrors(t *testing.T) {
	src, conn := newTestUDPSource(t)

	conn.Write([]byte{0xFF, 0x00})

	deadline := time.Now().Add(2 * time.Second)
	for src.GetStatistics().ParseErrors == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stats := src.GetStatistics()
	if stats.ParseErrors != 1 {
		t.Errorf("Expected 1 parse error, got %d", stats.ParseErrors)
	}
	if stats.PacketsReceived != 1 {
		t.Errorf("Expected 1 packet received, got %d", stats.PacketsReceived)
	}
}

func TestUDPSourceIdempotentStartStop(t *testing.T) {
	src, _ := newTestUDPSource(t)

	if err := src.Stop(); err != nil {
		t.Errorf("Stop before Start failed: %v", err)
	}

	src.Start()
	src.Start()
	if ev := nextEvent(t, src.Events()); ev.Kind != CaptureStarted {
		t.Fatalf("Expected CaptureStarted, got %s", ev.Kind)
	}

	select {
	case ev := <-src.Events():
		t.Errorf("Expected a single CaptureStarted, got extra %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUDPSourceIgnoresFormatChangeWhileCapturing(t *testing.T) {
	src, conn := newTestUDPSource(t)
	initial := src.MediaType()

	src.Start()
	nextEvent(t, src.Events())

	conn.Write(protocol.BuildFormatPacket(1, protocol.FormatPayload{SampleRate: 16000, Channels: 2, BitsPerSample: 16}))
	sendAudio(t, conn, 1, 1, []byte{0x00, 0x01})
	if ev := nextEvent(t, src.Events()); ev.Kind != FrameArrived {
		t.Fatalf("Expected FrameArrived, got %s", ev.Kind)
	}

	if got := src.MediaType(); got != initial {
		t.Errorf("Expected media type to stay %s during capture, got %s", initial, got)
	}
	if rejected := src.GetStatistics().FormatsRejected; rejected != 1 {
		t.Errorf("Expected 1 rejected format, got %d", rejected)
	}

	src.Stop()
	if ev := nextEvent(t, src.Events()); ev.Kind != CaptureStopped {
		t.Fatalf("Expected CaptureStopped, got %s", ev.Kind)
	}

	// Between sessions the announcement applies
	conn.Write(protocol.BuildFormatPacket(1, protocol.FormatPayload{SampleRate: 16000, Channels: 2, BitsPerSample: 16}))
	want := audio.L16MediaType(16000, 2)
	deadline := time.Now().Add(2 * time.Second)
	for src.MediaType() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := src.MediaType(); got != want {
		t.Errorf("Expected %s after stop, got %s", want, got)
	}
}
