package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestra-mcp/railbook/src/render"
)

// Stable input ids. The prefixes are what the focus keeper tracks.
const (
	idFrom  = "search.from"
	idTo    = "search.to"
	idDate  = "search.date"
	idSeat  = "search.seat"
	idPhone = "login.phone"
	idPass  = "login.password"
	idVName = "verify.name"
	idVID   = "verify.id"
	idVTel  = "verify.phone"
)

var persistentPrefixes = []string{"search.", "passenger.", "login.", "verify."}

func passengerID(i int, field string) string {
	return fmt.Sprintf("passenger.%d.%s", i, field)
}

// parsePassengerID splits "passenger.<i>.<field>".
func parsePassengerID(id string) (int, string, bool) {
	parts := strings.Split(id, ".")
	if len(parts) != 3 || parts[0] != "passenger" {
		return 0, "", false
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", false
	}
	return i, parts[2], true
}

// inputSet is the inputs of one built frame, in tab order.
type inputSet struct {
	order  []string
	fields map[string]*textinput.Model
}

func newInputSet() *inputSet {
	return &inputSet{fields: make(map[string]*textinput.Model)}
}

func (s *inputSet) add(id, placeholder, value string, width int) *textinput.Model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholder
	in.Width = width
	in.SetValue(value)
	s.order = append(s.order, id)
	s.fields[id] = &in
	return &in
}

func (s *inputSet) get(id string) *textinput.Model { return s.fields[id] }

func (s *inputSet) focusables() map[string]render.Focusable {
	out := make(map[string]render.Focusable, len(s.fields))
	for id, in := range s.fields {
		out[id] = in
	}
	return out
}

// focused returns the focused input id, or "".
func (s *inputSet) focused() string {
	for _, id := range s.order {
		if s.fields[id].Focused() {
			return id
		}
	}
	return ""
}

// cycle moves focus by delta through the inputs plus one unfocused
// slot, which hands keys to the page instead.
func (s *inputSet) cycle(delta int) tea.Cmd {
	n := len(s.order) + 1
	cur := len(s.order)
	if id := s.focused(); id != "" {
		for i, o := range s.order {
			if o == id {
				cur = i
			}
		}
	}
	next := ((cur+delta)%n + n) % n
	return s.focus(next)
}

func (s *inputSet) focus(idx int) tea.Cmd {
	var cmd tea.Cmd
	for i, id := range s.order {
		if i == idx {
			cmd = s.fields[id].Focus()
			continue
		}
		s.fields[id].Blur()
	}
	return cmd
}

func (s *inputSet) blur() {
	for _, in := range s.fields {
		in.Blur()
	}
}
