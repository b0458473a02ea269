package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/transcript"
)

// State is the controller's position in the capture lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode selects how a session's audio is delivered.
type Mode string

const (
	// ModeChunked submits each chunk as soon as it is detached.
	ModeChunked Mode = config.ModeChunked
	// ModeWhole submits the complete session audio once, on stop.
	ModeWhole Mode = config.ModeWhole
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeChunked, ModeWhole:
		return Mode(s), nil
	default:
		return "", &config.ValidationError{Field: "mode", Value: s, Reason: "must be 'chunked' or 'whole'"}
	}
}

// Chunk is a detached, non-empty run of frames. Seq is assigned at
// detachment and starts at 1 in every session.
type Chunk struct {
	Seq        uint64
	SessionID  string
	Frames     [][]byte
	DetachedAt time.Time
	Final      bool // detached by stop rather than by the ticker
}

// Bytes concatenates the chunk's frames.
func (c *Chunk) Bytes() []byte {
	out := make([]byte, 0, c.Size())
	for _, f := range c.Frames {
		out = append(out, f...)
	}
	return out
}

// Size returns the total number of bytes in the chunk.
func (c *Chunk) Size() int {
	n := 0
	for _, f := range c.Frames {
		n += len(f)
	}
	return n
}

// CaptureSession is one start-to-stop interval. All fields except the
// assembler and inflight are guarded by the controller mutex.
type CaptureSession struct {
	ID          string
	Mode        Mode
	ChunkPeriod time.Duration
	MediaType   string
	StartedAt   time.Time
	StoppedAt   time.Time

	pending [][]byte
	nextSeq uint64
	frames  int

	assembler *transcript.Assembler
	inflight  sync.WaitGroup

	tickDone    chan struct{}
	captureDone chan struct{}
	captured    bool // captureDone closed
}

func newCaptureSession(id string, mode Mode, period time.Duration, mediaType string, clk clock.Clock) *CaptureSession {
	return &CaptureSession{
		ID:          id,
		Mode:        mode,
		ChunkPeriod: period,
		MediaType:   mediaType,
		StartedAt:   clk.Now(),
		nextSeq:     1,
		assembler:   transcript.NewAssembler(clk),
		captureDone: make(chan struct{}),
	}
}

// detach moves every pending frame into a new chunk. An empty detachment
// returns nil and consumes no sequence number.
func (s *CaptureSession) detach(at time.Time, final bool) *Chunk {
	if len(s.pending) == 0 {
		return nil
	}

	chunk := &Chunk{
		Seq:        s.nextSeq,
		SessionID:  s.ID,
		Frames:     s.pending,
		DetachedAt: at,
		Final:      final,
	}
	s.nextSeq++
	s.pending = nil

	s.assembler.Expect(chunk.Seq)
	s.inflight.Add(1)
	return chunk
}

func (s *CaptureSession) submitted() uint64 {
	return s.nextSeq - 1
}

func (s *CaptureSession) markCaptureStopped() {
	if !s.captured {
		s.captured = true
		close(s.captureDone)
	}
}
