package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/trillhause/speech-to-text/internal/session"
)

const (
	statusIdle       = "idle"
	statusRecording  = "recording"
	statusProcessing = "processing"
	statusDone       = "done"
	statusFailed     = "failed"
)

// Recorder is the part of the session controller the UI drives.
type Recorder interface {
	Start() error
	Stop() error
	SetChunkPeriod(raw string) error
	Snapshot() session.Snapshot
}

type keyMap struct {
	Toggle    key.Binding
	ChunkSize key.Binding
	Confirm   key.Binding
	Cancel    key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "start/stop recording"),
	),
	ChunkSize: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "set chunk size"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "apply"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// actionResultMsg reports the outcome of a Start or Stop issued from a key.
type actionResultMsg struct {
	action string
	err    error
}

// PTTModel is the push-to-talk screen.
type PTTModel struct {
	recorder Recorder
	updates  <-chan session.Update

	status     string
	sessionID  string
	transcript string
	latency    time.Duration
	notice     string
	errMsg     string

	editing bool
	input   textinput.Model

	width    int
	quitting bool
}

// NewPTTModel creates the push-to-talk model. updates is normally
// Updates.C() of the notifier given to the controller.
func NewPTTModel(rec Recorder, updates <-chan session.Update) PTTModel {
	input := textinput.New()
	input.Placeholder = "chunk size in ms"
	input.CharLimit = 7
	input.Width = 12

	return PTTModel{
		recorder: rec,
		updates:  updates,
		status:   statusIdle,
		input:    input,
	}
}

// Init implements tea.Model.
func (m PTTModel) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

// Update implements tea.Model.
func (m PTTModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case updateMsg:
		m.applyUpdate(session.Update(msg))
		return m, waitForUpdate(m.updates)

	case actionResultMsg:
		if msg.err != nil {
			m.errMsg = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateInput(msg)
		}

		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Toggle):
			return m, m.toggle()

		case key.Matches(msg, keys.ChunkSize):
			m.editing = true
			m.errMsg = ""
			m.input.SetValue("")
			cmd := m.input.Focus()
			return m, cmd
		}
	}

	return m, nil
}

// toggle starts a session when idle and stops it when recording. A press
// while the previous session is still stopping is ignored.
func (m PTTModel) toggle() tea.Cmd {
	rec := m.recorder
	switch rec.Snapshot().State {
	case session.StateIdle:
		return func() tea.Msg {
			return actionResultMsg{action: "start", err: rec.Start()}
		}
	case session.StateRecording:
		return func() tea.Msg {
			return actionResultMsg{action: "stop", err: rec.Stop()}
		}
	default:
		return nil
	}
}

func (m PTTModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Confirm):
		raw := m.input.Value()
		if err := m.recorder.SetChunkPeriod(raw); err != nil {
			// keep the input open so the value can be corrected
			m.errMsg = err.Error()
			return m, nil
		}
		m.editing = false
		m.errMsg = ""
		m.notice = fmt.Sprintf("chunk size set to %s ms (next session)", strings.TrimSpace(raw))
		m.input.Blur()
		return m, nil

	case key.Matches(msg, keys.Cancel):
		m.editing = false
		m.errMsg = ""
		m.input.Blur()
		return m, nil

	case msg.Type == tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *PTTModel) applyUpdate(u session.Update) {
	if u.Status == session.StatusRecording {
		m.sessionID = u.SessionID
		m.status = statusRecording
		m.transcript = ""
		m.latency = 0
		m.notice = ""
		m.errMsg = ""
		return
	}

	// updates from an earlier session that finishes late are not shown
	if u.SessionID != "" && u.SessionID != m.sessionID {
		return
	}

	switch u.Status {
	case session.StatusProcessing:
		m.status = statusProcessing
		m.transcript = u.Transcript
	case session.StatusTranscript:
		m.transcript = u.Transcript
	case session.StatusChunkFailed:
		m.transcript = u.Transcript
		m.notice = fmt.Sprintf("chunk %d failed: %v", u.Seq, u.Err)
	case session.StatusDone:
		m.status = statusDone
		m.transcript = u.Transcript
		m.latency = u.Latency
	case session.StatusFailed:
		m.status = statusFailed
		m.latency = u.Latency
		if u.Err != nil {
			m.errMsg = u.Err.Error()
		}
	}
}

// View implements tea.Model.
func (m PTTModel) View() string {
	if m.quitting {
		return ""
	}

	snap := m.recorder.Snapshot()

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Push-to-talk transcription"))
	b.WriteString("\n\n")

	indicator := m.status
	if m.status == statusRecording {
		indicator = "● " + indicator
	}
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Status:"), StatusStyle(m.status).Render(indicator)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Mode:"), ValueStyle.Render(string(snap.Mode))))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Chunk size:"),
		ValueStyle.Render(fmt.Sprintf("%d ms", snap.ChunkPeriod.Milliseconds()))))

	if m.latency > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Latency:"),
			ValueStyle.Render(fmt.Sprintf("%.2fs", m.latency.Seconds()))))
	}

	if m.editing {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("New size:"), m.input.View()))
	}

	if m.notice != "" {
		b.WriteString("\n" + WarningStyle.Render(m.notice) + "\n")
	}
	if m.errMsg != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.errMsg) + "\n")
	}

	transcript := m.transcript
	if transcript == "" {
		transcript = "(no transcript yet)"
	}
	width := m.width - 10
	if width < 20 {
		width = 60
	}
	b.WriteString("\n")
	b.WriteString(TranscriptStyle.Width(width).Render(transcript))

	help := "space start/stop • c chunk size • q quit"
	if m.editing {
		help = "enter apply • esc cancel"
	}
	return BoxStyle.Render(b.String()) + "\n" + HelpStyle.Render(help)
}

// RunPTT runs the push-to-talk TUI until the user quits or ctx is done.
func RunPTT(ctx context.Context, rec Recorder, updates <-chan session.Update) error {
	p := tea.NewProgram(NewPTTModel(rec, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
