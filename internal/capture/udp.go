package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/audio"
	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/metrics"
	"github.com/trillhause/speech-to-text/internal/protocol"
)

// UDPSource is a network microphone: it listens for protocol datagrams,
// restores their order and forwards audio as L16 frames while capture is
// started. Packets arriving while stopped are received and discarded.
type UDPSource struct {
	config  *config.CaptureConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	conn   *net.UDPConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	packetChan chan *incomingPacket
	ctrl       chan bool // true = start, false = stop
	events     chan Event

	// Guarded by mu
	sampleRate int
	channels   int
	capturing  bool
	listening  bool

	// Owned by the processor goroutine
	reorder  *ReorderBuffer
	streamID uint32

	packetsReceived uint64
	parseErrors     uint64
	formatsRejected uint64

	mu sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// UDPStats represents network microphone statistics
type UDPStats struct {
	PacketsReceived uint64 `json:"packets_received"`
	ParseErrors     uint64 `json:"parse_errors"`
	FormatsRejected uint64 `json:"formats_rejected"`
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	QueueSize       int    `json:"queue_size"`
	QueueCapacity   int    `json:"queue_capacity"`
}

// NewUDPSource creates a network microphone; no socket is opened until
// Listen or the first Start.
func NewUDPSource(cfg *config.CaptureConfig, logger *zap.Logger, m *metrics.Metrics) *UDPSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPSource{
		config:     cfg,
		logger:     logger,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, 1000),
		ctrl:       make(chan bool, 4),
		events:     make(chan Event, defaultEventBuffer),
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		reorder:    NewReorderBuffer(cfg.MaxGap),
	}
}

// Listen binds the UDP socket and starts the receive loop.
func (s *UDPSource) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenLocked()
}

func (s *UDPSource) listenLocked() error {
	if s.listening {
		return nil
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("%w: source closed", ErrUnavailable)
	}

	addr, err := net.ResolveUDPAddr("udp", s.config.ListenAddr())
	if err != nil {
		return fmt.Errorf("%w: failed to resolve UDP address: %v", ErrUnavailable, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: failed to listen on UDP: %v", ErrUnavailable, err)
	}
	s.conn = conn

	if err := conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			zap.Int("buffer_size", s.config.BufferSize),
			zap.Error(err),
		)
	}

	s.logger.Info("Network microphone listening",
		zap.String("address", conn.LocalAddr().String()),
		zap.Int("buffer_size", s.config.BufferSize),
	)

	s.listening = true
	s.wg.Add(2)
	go s.processLoop()
	go s.receiveLoop()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *UDPSource) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Start begins forwarding frames. It is a no-op while already capturing.
func (s *UDPSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capturing {
		return nil
	}
	if err := s.listenLocked(); err != nil {
		return err
	}

	s.capturing = true
	s.ctrl <- true
	return nil
}

// Stop ends forwarding. Packets still held for reordering are released
// before CaptureStopped is emitted.
func (s *UDPSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.capturing {
		return nil
	}
	s.capturing = false
	s.ctrl <- false
	return nil
}

// Events returns the capture event stream.
func (s *UDPSource) Events() <-chan Event {
	return s.events
}

// MediaType reports the L16 layout announced by the most recent format packet.
func (s *UDPSource) MediaType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return audio.L16MediaType(s.sampleRate, s.channels)
}

// Close shuts the socket down and waits for the loops to exit.
func (s *UDPSource) Close() error {
	s.cancel()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.wg.Wait()

	s.mu.RLock()
	s.logger.Info("Network microphone stopped",
		zap.Uint64("packets_received", s.packetsReceived),
		zap.Uint64("parse_errors", s.parseErrors),
	)
	s.mu.RUnlock()
	return err
}

// receiveLoop is the main packet receiving loop
func (s *UDPSource) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, protocol.MaxPacketSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Periodic deadline so cancellation is noticed
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to set read deadline", zap.Error(err))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Error("Failed to read UDP packet", zap.Error(err))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// The receive buffer is reused
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		select {
		case s.packetChan <- &incomingPacket{data: packetData, remoteAddr: remoteAddr, timestamp: time.Now()}:
		default:
			s.logger.Warn("Packet processing queue full, dropping packet",
				zap.String("remote_addr", remoteAddr.String()),
				zap.Int("packet_size", n),
			)
		}
	}
}

// processLoop serializes packet handling and start/stop transitions so that
// events leave in order.
func (s *UDPSource) processLoop() {
	defer s.wg.Done()

	forwarding := false
	for {
		select {
		case <-s.ctx.Done():
			return

		case start := <-s.ctrl:
			if start {
				s.reorder.Reset()
				forwarding = true
				s.emit(Event{Kind: CaptureStarted, At: time.Now()})
				continue
			}
			lostBefore := s.reorder.GetStats().LostPackets
			s.release(s.reorder.Flush(), time.Now())
			s.metrics.RecordPacketsLost(int(s.reorder.GetStats().LostPackets - lostBefore))
			forwarding = false
			s.emit(Event{Kind: CaptureStopped, At: time.Now()})

		case packet := <-s.packetChan:
			s.handlePacket(packet, forwarding)
		}
	}
}

// handlePacket processes a single incoming packet
func (s *UDPSource) handlePacket(packet *incomingPacket, forwarding bool) {
	parsed, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		s.metrics.RecordParseError()

		s.logger.Warn("Failed to parse packet",
			zap.String("remote_addr", packet.remoteAddr.String()),
			zap.Int("packet_size", len(packet.data)),
			zap.Error(err),
		)
		return
	}

	if parsed.Header.StreamID != s.streamID {
		s.logger.Info("Network microphone stream changed",
			zap.Uint32("previous_stream_id", s.streamID),
			zap.Uint32("stream_id", parsed.Header.StreamID),
			zap.String("remote_addr", packet.remoteAddr.String()),
		)
		s.streamID = parsed.Header.StreamID
		s.reorder.Reset()
	}

	switch parsed.Header.PacketType {
	case protocol.PacketTypeFormat:
		s.mu.Lock()
		changed := int(parsed.Format.SampleRate) != s.sampleRate || int(parsed.Format.Channels) != s.channels
		if forwarding && changed {
			// chunks of the running session are labelled with the format at start
			s.formatsRejected++
			s.mu.Unlock()
			s.logger.Warn("Ignoring format change during capture",
				zap.Uint32("stream_id", parsed.Header.StreamID),
				zap.Stringer("format", parsed.Format),
			)
			return
		}
		s.sampleRate = int(parsed.Format.SampleRate)
		s.channels = int(parsed.Format.Channels)
		s.mu.Unlock()
		s.reorder.Reset()

		s.logger.Debug("Format announced",
			zap.Uint32("stream_id", parsed.Header.StreamID),
			zap.Stringer("format", parsed.Format),
		)

	case protocol.PacketTypeAudio:
		if !forwarding {
			return
		}

		lostBefore := s.reorder.GetStats().LostPackets
		released, err := s.reorder.Push(parsed.Audio.Sequence, parsed.Audio.AudioData)
		if err != nil {
			s.logger.Debug("Dropping audio packet",
				zap.Uint32("sequence", parsed.Audio.Sequence),
				zap.Error(err),
			)
			return
		}
		s.metrics.RecordPacketsLost(int(s.reorder.GetStats().LostPackets - lostBefore))
		s.release(released, packet.timestamp)
	}
}

func (s *UDPSource) release(frames [][]byte, at time.Time) {
	for _, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		s.emit(Event{Kind: FrameArrived, Frame: frame, At: at})
	}
}

func (s *UDPSource) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// GetStatistics returns current network microphone statistics
func (s *UDPSource) GetStatistics() UDPStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return UDPStats{
		PacketsReceived: s.packetsReceived,
		ParseErrors:     s.parseErrors,
		FormatsRejected: s.formatsRejected,
		SampleRate:      s.sampleRate,
		Channels:        s.channels,
		QueueSize:       len(s.packetChan),
		QueueCapacity:   cap(s.packetChan),
	}
}
