package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/agent-collab/internal/workflow"
)

// DefaultBridgeBuffer is the number of controller notifications queued
// before the controller waits for the UI.
const DefaultBridgeBuffer = 1024

type outputMsg struct{ text string }

type phaseMsg struct{ phase workflow.Phase }

// Bridge carries controller notifications onto the bubbletea loop. Register
// it as a controller listener and pass it to NewApp.
type Bridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewBridge creates a bridge with the given queue size.
func NewBridge(buffer int) *Bridge {
	if buffer <= 0 {
		buffer = DefaultBridgeBuffer
	}
	return &Bridge{
		events: make(chan tea.Msg, buffer),
		done:   make(chan struct{}),
	}
}

// OnOutput queues a streamed fragment.
func (b *Bridge) OnOutput(fragment string) {
	b.send(outputMsg{text: fragment})
}

// OnPhaseChange queues a phase change.
func (b *Bridge) OnPhaseChange(phase workflow.Phase) {
	b.send(phaseMsg{phase: phase})
}

// Close releases any controller goroutine waiting on a full queue. Later
// notifications are discarded.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// wait returns a command that delivers the next notification.
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}
