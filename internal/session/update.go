package session

import "time"

// Status is the user-visible phase reported with an Update.
type Status int

const (
	StatusRecording Status = iota
	StatusProcessing
	StatusTranscript  // running transcript changed
	StatusChunkFailed // one chunk failed, the session continues
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRecording:
		return "recording"
	case StatusProcessing:
		return "processing"
	case StatusTranscript:
		return "transcript"
	case StatusChunkFailed:
		return "chunk_failed"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Update is a notification about the current or a finishing session.
type Update struct {
	SessionID  string
	Status     Status
	Transcript string
	Latency    time.Duration // set on StatusDone and StatusFailed
	Seq        uint64        // set on StatusTranscript and StatusChunkFailed
	Err        error
}

// Notifier receives updates. Notify is called from several goroutines and
// must not block for long.
type Notifier interface {
	Notify(Update)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Update)

func (f NotifierFunc) Notify(u Update) {
	f(u)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Update) {}
