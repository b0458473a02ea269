package capture

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/audio"
)

// FileConfig configures a FileSource.
type FileConfig struct {
	Path          string
	FrameDuration time.Duration
	Loop          bool // rewind at end of file instead of going silent
	Clock         clock.Clock
	Logger        *zap.Logger
}

// FileSource replays a decoded audio file as if it were a live microphone:
// one L16 frame per FrameDuration, paced by the clock.
type FileSource struct {
	buf       *audio.DecodedBuffer
	mediaType string
	frameLen  int // samples per channel per frame
	loop      bool
	clock     clock.Clock
	logger    *zap.Logger

	events chan Event

	mu        sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	exhausted chan struct{}

	// Owned by the replay goroutine; runs never overlap
	pos int
}

// NewFileSource decodes the file at cfg.Path. Any failure to read or decode
// it is reported as ErrUnavailable.
func NewFileSource(cfg FileConfig) (*FileSource, error) {
	mediaType, err := audio.MediaTypeForPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	buf, err := audio.NewConverter(audio.PCM16).Decode(audio.Blob{Data: data, MediaType: mediaType})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return NewFileSourceFromBuffer(buf, cfg)
}

// NewFileSourceFromBuffer replays an already decoded buffer.
func NewFileSourceFromBuffer(buf *audio.DecodedBuffer, cfg FileConfig) (*FileSource, error) {
	channels := buf.NumChannels()
	if channels == 0 || channels > 2 {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, audio.ErrUnsupportedChannelLayout)
	}
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrUnavailable, buf.SampleRate)
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 100 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	frameLen := int(int64(buf.SampleRate) * int64(cfg.FrameDuration) / int64(time.Second))
	if frameLen < 1 {
		frameLen = 1
	}

	return &FileSource{
		buf:       buf,
		mediaType: audio.L16MediaType(buf.SampleRate, channels),
		frameLen:  frameLen,
		loop:      cfg.Loop,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		events:    make(chan Event, defaultEventBuffer),
	}, nil
}

// Start begins replay from the current position.
func (s *FileSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.done != nil {
		// Previous run is finishing its final frame
		<-s.done
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.exhausted = make(chan struct{})

	go s.run(s.stop, s.done, s.exhausted)
	return nil
}

// Stop ends replay. The partial frame since the last tick is delivered
// before CaptureStopped.
func (s *FileSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stop)
	return nil
}

// Events returns the capture event stream.
func (s *FileSource) Events() <-chan Event {
	return s.events
}

// MediaType returns the L16 media type of emitted frames.
func (s *FileSource) MediaType() string {
	return s.mediaType
}

// Exhausted is closed when the current run reaches the end of the file.
// It never closes for looping sources.
func (s *FileSource) Exhausted() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted == nil {
		return make(chan struct{})
	}
	return s.exhausted
}

// Duration of the underlying audio.
func (s *FileSource) Duration() time.Duration {
	return s.buf.Duration()
}

// Close stops replay and waits for the replay goroutine to exit.
func (s *FileSource) Close() error {
	s.Stop()

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (s *FileSource) run(stop <-chan struct{}, done, exhausted chan struct{}) {
	defer close(done)

	ticker := s.clock.Ticker(time.Duration(s.frameLen) * time.Second / time.Duration(s.buf.SampleRate))
	defer ticker.Stop()

	last := s.clock.Now()
	s.events <- Event{Kind: CaptureStarted, At: last}

	ended := false
	for {
		select {
		case <-stop:
			elapsed := s.clock.Now().Sub(last)
			n := int(int64(s.buf.SampleRate) * int64(elapsed) / int64(time.Second))
			if n > s.frameLen {
				n = s.frameLen
			}
			if n > 0 && !ended {
				ended = s.emitFrame(n, exhausted)
			}
			if ended {
				s.pos = 0
			}
			s.events <- Event{Kind: CaptureStopped, At: s.clock.Now()}
			return

		case t := <-ticker.C:
			last = t
			if ended {
				continue
			}
			ended = s.emitFrame(s.frameLen, exhausted)
		}
	}
}

// emitFrame sends up to n samples per channel and reports whether the file
// ended without looping.
func (s *FileSource) emitFrame(n int, exhausted chan struct{}) bool {
	total := s.buf.Frames()
	out := &audio.DecodedBuffer{SampleRate: s.buf.SampleRate, Channels: make([][]float32, s.buf.NumChannels())}

	ended := false
	for n > 0 {
		take := n
		if remaining := total - s.pos; take > remaining {
			take = remaining
		}
		for c := range out.Channels {
			out.Channels[c] = append(out.Channels[c], s.buf.Channels[c][s.pos:s.pos+take]...)
		}
		s.pos += take
		n -= take

		if s.pos < total {
			continue
		}
		if !s.loop {
			ended = true
			close(exhausted)
			s.logger.Debug("File source exhausted", zap.Duration("duration", s.buf.Duration()))
			break
		}
		s.pos = 0
		if total == 0 {
			break
		}
	}

	if out.Frames() > 0 {
		s.events <- Event{Kind: FrameArrived, Frame: audio.EncodeL16(out), At: s.clock.Now()}
	}
	return ended
}
