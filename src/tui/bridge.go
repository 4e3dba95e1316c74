package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestra-mcp/railbook/src/app"
)

// ViewMsg delivers a controller frame to the program.
type ViewMsg struct{ app.View }

// Bridge hands frames from the controller loop to the program without
// blocking the loop. Frames published faster than the program reads
// them collapse into the newest.
type Bridge struct {
	mu     sync.Mutex
	latest app.View
	fresh  bool
	notify chan struct{}
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{notify: make(chan struct{}, 1)}
}

// Publish is the controller's OnRender callback.
func (b *Bridge) Publish(v app.View) {
	b.mu.Lock()
	b.latest = v
	b.fresh = true
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Wait returns a command that resolves to the next unseen frame.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		for {
			<-b.notify
			b.mu.Lock()
			if b.fresh {
				b.fresh = false
				v := b.latest
				b.mu.Unlock()
				return ViewMsg{v}
			}
			b.mu.Unlock()
		}
	}
}
