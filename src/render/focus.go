package render

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Focusable is an input whose focus and cursor survive a rebuild.
// *textinput.Model satisfies it.
type Focusable interface {
	Focused() bool
	Focus() tea.Cmd
	Blur()
	Position() int
	SetCursor(pos int)
}

// Focus is a captured focus position.
type Focus struct {
	ID     string
	Cursor int
}

// Zero reports whether nothing was focused.
func (f Focus) Zero() bool { return f.ID == "" }

// FocusKeeper carries focus across full view rebuilds for inputs whose
// id starts with one of the declared prefixes.
type FocusKeeper struct {
	prefixes []string
}

// NewFocusKeeper declares the persistent input ids (or id prefixes).
func NewFocusKeeper(prefixes ...string) *FocusKeeper {
	return &FocusKeeper{prefixes: prefixes}
}

// Persistent reports whether id is tracked.
func (k *FocusKeeper) Persistent(id string) bool {
	for _, p := range k.prefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

// Capture returns the focused persistent input, if any.
func (k *FocusKeeper) Capture(fields map[string]Focusable) Focus {
	for id, f := range fields {
		if f.Focused() && k.Persistent(id) {
			return Focus{ID: id, Cursor: f.Position()}
		}
	}
	return Focus{}
}

// Restore re-focuses the captured input in the rebuilt set and blurs
// every other one. If the input no longer exists nothing is focused.
func (k *FocusKeeper) Restore(fields map[string]Focusable, focus Focus) tea.Cmd {
	var cmd tea.Cmd
	for id, f := range fields {
		if !focus.Zero() && id == focus.ID {
			cmd = f.Focus()
			f.SetCursor(focus.Cursor)
			continue
		}
		f.Blur()
	}
	return cmd
}
