package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/audio"
	"github.com/trillhause/speech-to-text/internal/capture"
	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/metrics"
	"github.com/trillhause/speech-to-text/internal/transcription"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("controller closed")

// Converter turns captured audio into a WAV container.
type Converter interface {
	Convert(ctx context.Context, blob audio.Blob) ([]byte, error)
}

// Transport delivers a WAV container and returns its transcription.
type Transport interface {
	Transcribe(ctx context.Context, target transcription.Target, wav []byte) (string, error)
}

// Config holds the controller settings. Mode and ChunkPeriod are the
// initial values for new sessions.
type Config struct {
	Mode          Mode
	ChunkPeriod   time.Duration
	StopGrace     time.Duration // how long Stop waits for the backend's last frame
	SubmitTimeout time.Duration // zero means no per-submission timeout
}

// ConfigFromClient derives controller settings from the client configuration.
func ConfigFromClient(c *config.ClientConfig) Config {
	return Config{
		Mode:          Mode(c.Mode),
		ChunkPeriod:   c.ChunkPeriod(),
		StopGrace:     c.StopGrace(),
		SubmitTimeout: c.GetSubmitTimeoutDuration(),
	}
}

// Deps are the collaborators of a Controller. Source, Converter and
// Transport are required.
type Deps struct {
	Source    capture.Source
	Converter Converter
	Transport Transport
	Notifier  Notifier
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Snapshot is a point-in-time view of the controller
type Snapshot struct {
	State           State         `json:"state"`
	Mode            Mode          `json:"mode"`
	ChunkPeriod     time.Duration `json:"chunk_period"`
	SessionID       string        `json:"session_id,omitempty"`
	PendingFrames   int           `json:"pending_frames"`
	Transcript      string        `json:"transcript"`
	Sessions        uint64        `json:"sessions"`
	ChunksSubmitted uint64        `json:"chunks_submitted"`
	ChunksSkipped   uint64        `json:"chunks_skipped"`
	ChunksFailed    uint64        `json:"chunks_failed"`
}

// Controller drives push-to-talk capture sessions: it accumulates frames
// from the capture backend, detaches them into chunks on a timer, submits
// every chunk in the background and assembles the transcript.
type Controller struct {
	source    capture.Source
	converter Converter
	transport Transport
	notifier  Notifier
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics

	stopGrace     time.Duration
	submitTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // finalizers

	mu          sync.Mutex
	state       State
	session     *CaptureSession
	mode        Mode          // for the next session
	chunkPeriod time.Duration // for the next session
	closed      bool

	sessions        uint64
	chunksSubmitted uint64
	chunksSkipped   uint64
	chunksFailed    uint64
}

// New creates a controller in the idle state.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Source == nil || deps.Converter == nil || deps.Transport == nil {
		return nil, fmt.Errorf("source, converter and transport are required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeChunked
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.ChunkPeriod <= 0 {
		return nil, &config.ValidationError{Field: "chunk_period_ms", Value: strconv.FormatInt(cfg.ChunkPeriod.Milliseconds(), 10), Reason: "must be a positive integer"}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		source:        deps.Source,
		converter:     deps.Converter,
		transport:     deps.Transport,
		notifier:      deps.Notifier,
		clock:         deps.Clock,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		stopGrace:     cfg.StopGrace,
		submitTimeout: cfg.SubmitTimeout,
		ctx:           ctx,
		cancel:        cancel,
		mode:          cfg.Mode,
		chunkPeriod:   cfg.ChunkPeriod,
	}, nil
}

// Start begins a new session. It is a no-op unless the controller is idle.
// If the capture backend cannot start, the session never begins and the
// error wraps capture.ErrUnavailable.
func (c *Controller) Start() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}

	if err := c.source.Start(); err != nil {
		c.mu.Unlock()
		if !errors.Is(err, capture.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", capture.ErrUnavailable, err)
		}
		c.logger.Error("Failed to start capture", zap.Error(err))
		c.notifier.Notify(Update{Status: StatusFailed, Err: err})
		return err
	}

	s := newCaptureSession(uuid.NewString(), c.mode, c.chunkPeriod, c.source.MediaType(), c.clock)
	if s.Mode == ModeChunked {
		s.tickDone = make(chan struct{})
		go c.tickLoop(s, c.clock.Ticker(s.ChunkPeriod), s.tickDone)
	}

	c.session = s
	c.state = StateRecording
	c.sessions++
	c.mu.Unlock()

	c.metrics.RecordSessionStarted(string(s.Mode))
	c.logger.Info("Capture session started",
		zap.String("session_id", s.ID),
		zap.String("mode", string(s.Mode)),
		zap.Duration("chunk_period", s.ChunkPeriod),
		zap.String("media_type", s.MediaType),
	)
	c.notifier.Notify(Update{SessionID: s.ID, Status: StatusRecording})
	return nil
}

// Stop ends the current session. It is a no-op unless recording. Stop
// waits up to the stop grace period for the backend's last frame, submits
// the remainder and returns; in-flight submissions finish in the background.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}

	s := c.session
	c.state = StateStopping
	if s.tickDone != nil {
		close(s.tickDone)
	}
	s.StoppedAt = c.clock.Now()
	s.assembler.MarkStopped(s.StoppedAt)
	c.mu.Unlock()

	c.metrics.RecordSessionStopped()

	if err := c.source.Stop(); err != nil {
		c.logger.Warn("Failed to stop capture backend",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
	} else if c.stopGrace > 0 {
		select {
		case <-s.captureDone:
		case <-c.clock.After(c.stopGrace):
			c.logger.Warn("Capture backend did not confirm stop within grace period",
				zap.String("session_id", s.ID),
				zap.Duration("stop_grace", c.stopGrace),
			)
		case <-c.ctx.Done():
		}
	}

	c.mu.Lock()
	chunk := c.detachLocked(s, true)
	c.state = StateIdle
	c.session = nil
	c.mu.Unlock()

	c.logger.Info("Capture session stopped",
		zap.String("session_id", s.ID),
		zap.Int("frames", s.frames),
		zap.Uint64("chunks", s.submitted()),
		zap.Duration("duration", s.StoppedAt.Sub(s.StartedAt)),
	)
	c.notifier.Notify(Update{SessionID: s.ID, Status: StatusProcessing, Transcript: s.assembler.Text()})

	if chunk != nil {
		c.submit(s, chunk)
	}

	c.wg.Add(1)
	go c.finalize(s)
	return nil
}

// HandleEvent applies one capture backend event.
func (c *Controller) HandleEvent(ev capture.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	switch ev.Kind {
	case capture.FrameArrived:
		if s == nil {
			c.logger.Debug("Dropping frame outside a session", zap.Int("size", len(ev.Frame)))
			return
		}
		if len(ev.Frame) == 0 {
			return
		}
		s.pending = append(s.pending, ev.Frame)
		s.frames++
		c.metrics.RecordFrame()

	case capture.CaptureStarted:
		if s != nil {
			c.logger.Debug("Capture backend started", zap.String("session_id", s.ID))
		}

	case capture.CaptureStopped:
		if s != nil {
			s.markCaptureStopped()
		}
	}
}

// Run feeds the source's events to the controller until ctx is done, the
// controller is closed or the event channel is closed.
func (c *Controller) Run(ctx context.Context) error {
	events := c.source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleEvent(ev)
		}
	}
}

// SetChunkPeriod parses a millisecond value typed by the user. Invalid input
// returns a *config.ValidationError and the current period is kept. The new
// period applies from the next session.
func (c *Controller) SetChunkPeriod(raw string) error {
	period, err := config.ParseChunkPeriod(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.chunkPeriod = period
	c.mu.Unlock()

	c.logger.Info("Chunk period changed", zap.Duration("chunk_period", period))
	return nil
}

// SetChunkPeriodMs is SetChunkPeriod for an integer value.
func (c *Controller) SetChunkPeriodMs(ms int) error {
	return c.SetChunkPeriod(strconv.Itoa(ms))
}

// SetMode selects the delivery mode for the next session.
func (c *Controller) SetMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	return nil
}

// Snapshot returns the current state and counters.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:           c.state,
		Mode:            c.mode,
		ChunkPeriod:     c.chunkPeriod,
		Sessions:        c.sessions,
		ChunksSubmitted: c.chunksSubmitted,
		ChunksSkipped:   c.chunksSkipped,
		ChunksFailed:    c.chunksFailed,
	}
	if s := c.session; s != nil {
		snap.Mode = s.Mode
		snap.ChunkPeriod = s.ChunkPeriod
		snap.SessionID = s.ID
		snap.PendingFrames = len(s.pending)
		snap.Transcript = s.assembler.Text()
	}
	return snap
}

// Close stops any active session, cancels in-flight submissions and waits
// for every session to finalize.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	// Submissions are cancelled before Stop so a grace wait cannot hang
	c.cancel()
	err := c.Stop()
	c.wg.Wait()
	return err
}

func (c *Controller) tickLoop(s *CaptureSession, ticker *clock.Ticker, done <-chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.flush(s)
		}
	}
}

// flush detaches the pending frames of a recording session
func (c *Controller) flush(s *CaptureSession) {
	c.mu.Lock()
	if c.session != s || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	chunk := c.detachLocked(s, false)
	c.mu.Unlock()

	if chunk != nil {
		c.submit(s, chunk)
	}
}

func (c *Controller) detachLocked(s *CaptureSession, final bool) *Chunk {
	chunk := s.detach(c.clock.Now(), final)
	if chunk == nil {
		c.chunksSkipped++
		c.metrics.RecordChunkSkipped()
		return nil
	}

	c.chunksSubmitted++
	c.metrics.RecordChunkDetached(chunk.Size())
	return chunk
}

// submit converts and delivers one chunk in the background
func (c *Controller) submit(s *CaptureSession, chunk *Chunk) {
	target := transcription.TargetChunk
	if s.Mode == ModeWhole {
		target = transcription.TargetWhole
	}

	logger := c.logger.With(
		zap.String("session_id", s.ID),
		zap.Uint64("seq", chunk.Seq),
	)
	logger.Debug("Submitting chunk",
		zap.Int("frames", len(chunk.Frames)),
		zap.Int("size", chunk.Size()),
		zap.Bool("final", chunk.Final),
		zap.String("target", target.String()),
	)

	go func() {
		defer s.inflight.Done()

		ctx := c.ctx
		if c.submitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.submitTimeout)
			defer cancel()
		}

		text, err := c.deliver(ctx, s, chunk, target)
		if err != nil {
			c.mu.Lock()
			c.chunksFailed++
			c.mu.Unlock()

			logger.Warn("Chunk failed", zap.Error(err))
			running := s.assembler.OnFailure(chunk.Seq, err)
			c.notifier.Notify(Update{SessionID: s.ID, Status: StatusChunkFailed, Transcript: running, Seq: chunk.Seq, Err: err})
			return
		}

		logger.Debug("Chunk transcribed", zap.Int("text_length", len(text)))
		running := s.assembler.OnFragment(chunk.Seq, text)
		c.notifier.Notify(Update{SessionID: s.ID, Status: StatusTranscript, Transcript: running, Seq: chunk.Seq})
	}()
}

func (c *Controller) deliver(ctx context.Context, s *CaptureSession, chunk *Chunk, target transcription.Target) (string, error) {
	start := c.clock.Now()
	wav, err := c.converter.Convert(ctx, audio.Blob{Data: chunk.Bytes(), MediaType: s.MediaType})
	c.metrics.RecordConversion(c.clock.Since(start).Seconds(), err)
	if err != nil {
		return "", fmt.Errorf("failed to convert chunk %d: %w", chunk.Seq, err)
	}

	start = c.clock.Now()
	c.metrics.RecordSubmissionStarted(target.String())
	text, err := c.transport.Transcribe(ctx, target, wav)
	c.metrics.RecordSubmissionResult(c.clock.Since(start).Seconds(), err)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe chunk %d: %w", chunk.Seq, err)
	}
	return text, nil
}

// finalize waits for the session's submissions and reports the result
func (c *Controller) finalize(s *CaptureSession) {
	defer c.wg.Done()

	s.inflight.Wait()
	result := s.assembler.OnSessionEnd()

	update := Update{
		SessionID:  s.ID,
		Status:     StatusDone,
		Transcript: result.Transcript,
		Latency:    result.Latency,
	}

	// A session fails only when nothing it submitted succeeded
	if submitted := s.submitted(); submitted > 0 && uint64(len(result.Failures)) == submitted {
		update.Status = StatusFailed
		update.Err = result.Failures[0].Err
	}

	outcome := "done"
	if update.Status == StatusFailed {
		outcome = "failed"
	}
	c.metrics.RecordSessionFinished(string(s.Mode), outcome, result.Latency.Seconds())

	c.logger.Info("Capture session finished",
		zap.String("session_id", s.ID),
		zap.String("outcome", outcome),
		zap.Duration("latency", result.Latency),
		zap.Int("fragments", result.Fragments),
		zap.Int("failures", len(result.Failures)),
	)
	c.notifier.Notify(update)
}
