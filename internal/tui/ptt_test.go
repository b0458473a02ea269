package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/session"
)

type fakeRecorder struct {
	state    session.State
	period   time.Duration
	starts   int
	stops    int
	startErr error
}

func (f *fakeRecorder) Start() error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state = session.StateRecording
	return nil
}

func (f *fakeRecorder) Stop() error {
	f.stops++
	f.state = session.StateIdle
	return nil
}

func (f *fakeRecorder) SetChunkPeriod(raw string) error {
	d, err := config.ParseChunkPeriod(raw)
	if err != nil {
		return err
	}
	f.period = d
	return nil
}

func (f *fakeRecorder) Snapshot() session.Snapshot {
	return session.Snapshot{State: f.state, Mode: session.ModeChunked, ChunkPeriod: f.period}
}

var (
	spaceKey = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	enterKey = tea.KeyMsg{Type: tea.KeyEnter}
	escKey   = tea.KeyMsg{Type: tea.KeyEsc}
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(t *testing.T, m PTTModel, msg tea.Msg) (PTTModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(PTTModel)
	if !ok {
		t.Fatalf("Expected PTTModel, got %T", next)
	}
	return model, cmd
}

func TestSpaceTogglesRecording(t *testing.T) {
	rec := &fakeRecorder{period: 2 * time.Second}
	m := NewPTTModel(rec, nil)

	m, cmd := update(t, m, spaceKey)
	if cmd == nil {
		t.Fatal("Expected a start command")
	}
	m, _ = update(t, m, cmd())
	if rec.starts != 1 || rec.state != session.StateRecording {
		t.Fatalf("Expected recorder to start, got starts=%d state=%s", rec.starts, rec.state)
	}

	m, cmd = update(t, m, spaceKey)
	if cmd == nil {
		t.Fatal("Expected a stop command")
	}
	update(t, m, cmd())
	if rec.stops != 1 || rec.state != session.StateIdle {
		t.Errorf("Expected recorder to stop, got stops=%d state=%s", rec.stops, rec.state)
	}
}

func TestSpaceIgnoredWhileStopping(t *testing.T) {
	rec := &fakeRecorder{state: session.StateStopping}
	m := NewPTTModel(rec, nil)

	if _, cmd := update(t, m, spaceKey); cmd != nil {
		t.Error("Expected no command while stopping")
	}
}

func TestStartFailureShown(t *testing.T) {
	rec := &fakeRecorder{startErr: errors.New("capture backend unavailable")}
	m := NewPTTModel(rec, nil)

	m, cmd := update(t, m, spaceKey)
	m, _ = update(t, m, cmd())

	if !strings.Contains(m.View(), "start failed: capture backend unavailable") {
		t.Errorf("Expected start error in view:\n%s", m.View())
	}
}

func TestChunkSizeInput(t *testing.T) {
	tests := []struct {
		name       string
		typed      string
		wantPeriod time.Duration
		wantError  bool
	}{
		{"valid", "1500", 1500 * time.Millisecond, false},
		{"negative", "-5", 2 * time.Second, true},
		{"not a number", "abc", 2 * time.Second, true},
		{"zero", "0", 2 * time.Second, true},
		{"empty", "", 2 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{period: 2 * time.Second}
			m := NewPTTModel(rec, nil)

			m, _ = update(t, m, runeKey('c'))
			if !m.editing {
				t.Fatal("Expected input to open on 'c'")
			}
			for _, r := range tt.typed {
				m, _ = update(t, m, runeKey(r))
			}
			m, _ = update(t, m, enterKey)

			if rec.period != tt.wantPeriod {
				t.Errorf("Expected period %v, got %v", tt.wantPeriod, rec.period)
			}
			if tt.wantError {
				if m.errMsg == "" || !m.editing {
					t.Errorf("Expected error with input still open, got err=%q editing=%v", m.errMsg, m.editing)
				}
			} else if m.errMsg != "" || m.editing {
				t.Errorf("Expected input closed without error, got err=%q editing=%v", m.errMsg, m.editing)
			}
		})
	}
}

func TestChunkSizeInputCancel(t *testing.T) {
	rec := &fakeRecorder{period: 2 * time.Second}
	m := NewPTTModel(rec, nil)

	m, _ = update(t, m, runeKey('c'))
	m, _ = update(t, m, runeKey('9'))
	m, _ = update(t, m, escKey)

	if m.editing {
		t.Error("Expected input closed after esc")
	}
	if rec.period != 2*time.Second {
		t.Errorf("Expected period unchanged, got %v", rec.period)
	}

	// space while editing types into the input instead of recording
	m, _ = update(t, m, runeKey('c'))
	update(t, m, spaceKey)
	if rec.starts != 0 {
		t.Error("Expected no recording while editing")
	}
}

func TestUpdatesDriveTranscript(t *testing.T) {
	rec := &fakeRecorder{period: time.Second}
	m := NewPTTModel(rec, nil)

	steps := []session.Update{
		{SessionID: "s1", Status: session.StatusRecording},
		{SessionID: "s1", Status: session.StatusTranscript, Seq: 2, Transcript: "world"},
		{SessionID: "s1", Status: session.StatusProcessing, Transcript: "world"},
		{SessionID: "s1", Status: session.StatusTranscript, Seq: 1, Transcript: "hello world"},
		{SessionID: "s1", Status: session.StatusDone, Transcript: "hello world", Latency: 1200 * time.Millisecond},
	}
	for _, u := range steps {
		m, _ = update(t, m, updateMsg(u))
	}

	if m.status != statusDone {
		t.Errorf("Expected status done, got %s", m.status)
	}
	if m.transcript != "hello world" {
		t.Errorf("Expected 'hello world', got %q", m.transcript)
	}
	view := m.View()
	if !strings.Contains(view, "hello world") || !strings.Contains(view, "1.20s") {
		t.Errorf("Expected transcript and latency in view:\n%s", view)
	}
}

func TestStaleSessionUpdatesIgnored(t *testing.T) {
	m := NewPTTModel(&fakeRecorder{}, nil)

	m, _ = update(t, m, updateMsg{SessionID: "old", Status: session.StatusRecording})
	m, _ = update(t, m, updateMsg{SessionID: "new", Status: session.StatusRecording})
	m, _ = update(t, m, updateMsg{SessionID: "old", Status: session.StatusDone, Transcript: "stale"})

	if m.status != statusRecording || m.transcript != "" {
		t.Errorf("Expected stale update ignored, got status=%s transcript=%q", m.status, m.transcript)
	}
}

func TestChunkFailureNotice(t *testing.T) {
	m := NewPTTModel(&fakeRecorder{}, nil)

	m, _ = update(t, m, updateMsg{SessionID: "s", Status: session.StatusRecording})
	m, _ = update(t, m, updateMsg{SessionID: "s", Status: session.StatusChunkFailed, Seq: 2, Transcript: "one", Err: errors.New("503")})

	if m.notice != "chunk 2 failed: 503" {
		t.Errorf("Unexpected notice %q", m.notice)
	}
	if m.transcript != "one" {
		t.Errorf("Expected transcript 'one', got %q", m.transcript)
	}
}

func TestQuit(t *testing.T) {
	m := NewPTTModel(&fakeRecorder{}, nil)

	m, cmd := update(t, m, runeKey('q'))
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Error("Expected empty view after quit")
	}
}

func TestUpdatesNeverBlock(t *testing.T) {
	u := NewUpdates(2)
	for i := 1; i <= 5; i++ {
		u.Notify(session.Update{Seq: uint64(i)})
	}

	first := <-u.C()
	second := <-u.C()
	if first.Seq != 4 || second.Seq != 5 {
		t.Errorf("Expected the two newest updates, got %d and %d", first.Seq, second.Seq)
	}
}

func TestWaitForUpdate(t *testing.T) {
	u := NewUpdates(1)
	u.Notify(session.Update{SessionID: "x", Status: session.StatusDone})

	msg := waitForUpdate(u.C())()
	got, ok := msg.(updateMsg)
	if !ok || got.SessionID != "x" {
		t.Errorf("Expected updateMsg for x, got %#v", msg)
	}

	if waitForUpdate(nil) != nil {
		t.Error("Expected nil command for nil channel")
	}
}
