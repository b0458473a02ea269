package transcript

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ChunkFailure records a chunk whose conversion or submission failed.
type ChunkFailure struct {
	Seq uint64
	Err error
}

// Result is the outcome of a finished session.
type Result struct {
	Transcript string
	Latency    time.Duration
	Fragments  int // released fragments that carried text
	Failures   []ChunkFailure
}

// Stats is a point-in-time view of the assembler
type Stats struct {
	InFlight    int    `json:"in_flight"`
	Buffered    int    `json:"buffered"`
	NextSeq     uint64 `json:"next_seq"`
	Released    int    `json:"released"`
	FailedCount int    `json:"failed"`
}

type slot struct {
	text string
	err  error
}

// Assembler orders transcript fragments by chunk sequence number.
// Fragments that arrive early are held until every lower sequence number
// has resolved, either with text or with a failure.
type Assembler struct {
	clock clock.Clock

	mu       sync.Mutex
	inFlight map[uint64]struct{}
	buffered map[uint64]slot // resolved, waiting for a lower seq
	nextSeq  uint64
	released []string
	failures []ChunkFailure

	stopped      bool
	stoppedAt    time.Time
	lastResolved time.Time
}

// NewAssembler creates an assembler whose first expected sequence number is 1.
func NewAssembler(clk clock.Clock) *Assembler {
	if clk == nil {
		clk = clock.New()
	}
	a := &Assembler{clock: clk}
	a.reset()
	return a
}

func (a *Assembler) reset() {
	a.inFlight = make(map[uint64]struct{})
	a.buffered = make(map[uint64]slot)
	a.nextSeq = 1
	a.released = nil
	a.failures = nil
	a.stopped = false
	a.stoppedAt = time.Time{}
	a.lastResolved = time.Time{}
}

// Expect registers a submitted chunk. Only expected sequence numbers are accepted.
func (a *Assembler) Expect(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight[seq] = struct{}{}
}

// OnFragment records transcribed text for seq and returns the running
// transcript. Unknown or duplicate sequence numbers are ignored.
func (a *Assembler) OnFragment(seq uint64, text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resolveLocked(seq, slot{text: strings.TrimSpace(text)})
	return a.textLocked()
}

// OnFailure resolves seq without text so later fragments are not blocked.
func (a *Assembler) OnFailure(seq uint64, err error) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.inFlight[seq]; ok {
		a.failures = append(a.failures, ChunkFailure{Seq: seq, Err: err})
	}
	a.resolveLocked(seq, slot{err: err})
	return a.textLocked()
}

func (a *Assembler) resolveLocked(seq uint64, s slot) {
	if _, ok := a.inFlight[seq]; !ok {
		return
	}
	delete(a.inFlight, seq)
	a.buffered[seq] = s
	a.lastResolved = a.clock.Now()
	a.releaseLocked()
}

// releaseLocked moves the contiguous resolved prefix into the transcript
func (a *Assembler) releaseLocked() {
	for {
		s, ok := a.buffered[a.nextSeq]
		if !ok {
			break
		}
		if s.err == nil && s.text != "" {
			a.released = append(a.released, s.text)
		}
		delete(a.buffered, a.nextSeq)
		a.nextSeq++
	}
}

// Text returns the running transcript.
func (a *Assembler) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.textLocked()
}

func (a *Assembler) textLocked() string {
	return strings.Join(a.released, " ")
}

// MarkStopped records the stop signal time used for latency.
func (a *Assembler) MarkStopped(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.stoppedAt = t
}

// Pending returns the number of submissions that have not resolved.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inFlight)
}

// GetStats returns current assembler statistics
func (a *Assembler) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		InFlight:    len(a.inFlight),
		Buffered:    len(a.buffered),
		NextSeq:     a.nextSeq,
		Released:    len(a.released),
		FailedCount: len(a.failures),
	}
}

// OnSessionEnd finalizes the transcript and resets the assembler.
// Anything still buffered behind a gap is released in sequence order.
// Latency is the time from the stop signal to the last resolution, or zero
// if nothing resolved after the stop.
func (a *Assembler) OnSessionEnd() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buffered) > 0 {
		seqs := make([]uint64, 0, len(a.buffered))
		for seq := range a.buffered {
			seqs = append(seqs, seq)
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		for _, seq := range seqs {
			if s := a.buffered[seq]; s.err == nil && s.text != "" {
				a.released = append(a.released, s.text)
			}
		}
	}

	var latency time.Duration
	if a.stopped && a.lastResolved.After(a.stoppedAt) {
		latency = a.lastResolved.Sub(a.stoppedAt)
	}

	result := Result{
		Transcript: a.textLocked(),
		Latency:    latency,
		Fragments:  len(a.released),
		Failures:   a.failures,
	}

	a.reset()
	return result
}
