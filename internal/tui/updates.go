package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/trillhause/speech-to-text/internal/session"
)

const defaultUpdateBuffer = 64

// Updates bridges controller notifications into the Bubble Tea event loop.
// It implements session.Notifier.
type Updates struct {
	ch chan session.Update
}

// NewUpdates creates a notifier with a buffer of size updates.
func NewUpdates(size int) *Updates {
	if size <= 0 {
		size = defaultUpdateBuffer
	}
	return &Updates{ch: make(chan session.Update, size)}
}

// Notify never blocks. When the UI falls behind, the oldest queued update is
// dropped; every update carries the full transcript so nothing is lost for
// display.
func (u *Updates) Notify(update session.Update) {
	for {
		select {
		case u.ch <- update:
			return
		default:
		}
		select {
		case <-u.ch:
		default:
		}
	}
}

// C returns the receive side of the bridge.
func (u *Updates) C() <-chan session.Update {
	return u.ch
}

type updateMsg session.Update

// waitForUpdate blocks until the next controller update arrives.
func waitForUpdate(ch <-chan session.Update) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}
