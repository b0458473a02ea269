package capture

import (
	"errors"
	"time"
)

// ErrUnavailable is returned when a capture device cannot be acquired.
var ErrUnavailable = errors.New("capture unavailable")

// EventKind identifies a capture backend event.
type EventKind int

const (
	// FrameArrived carries one encoded audio frame.
	FrameArrived EventKind = iota
	// CaptureStarted is emitted once the backend is producing frames.
	CaptureStarted
	// CaptureStopped is emitted after the backend delivered its last frame.
	CaptureStopped
)

func (k EventKind) String() string {
	switch k {
	case FrameArrived:
		return "frame_arrived"
	case CaptureStarted:
		return "capture_started"
	case CaptureStopped:
		return "capture_stopped"
	default:
		return "unknown"
	}
}

// Event is delivered on a Source's event channel. Frame is owned by the
// receiver and is never reused by the backend.
type Event struct {
	Kind  EventKind
	Frame []byte
	At    time.Time
}

// Source is an audio capture backend. Start and Stop never block on event
// delivery; events are emitted asynchronously on Events.
type Source interface {
	Start() error
	Stop() error
	Events() <-chan Event
	// MediaType describes the container format of emitted frames.
	MediaType() string
}

const defaultEventBuffer = 256
