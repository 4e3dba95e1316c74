// Package tui is the terminal front end. It draws controller frames
// and turns keys into controller events; it holds no booking state of
// its own.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestra-mcp/railbook/src/app"
	"github.com/orchestra-mcp/railbook/src/booking"
	"github.com/orchestra-mcp/railbook/src/render"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/orchestra-mcp/railbook/src/viewport"
)

// Lines taken by one result row, and by the chrome around the list.
const (
	rowLines     = 2
	headerLines  = 6
	footerLines  = 3
	minListLines = 4
)

var payChannels = []string{"ALIPAY", "WECHAT"}

// Poster accepts controller events. *app.Controller implements it.
type Poster interface {
	Post(ev app.Event)
}

// Options seeds the search form.
type Options struct {
	Query types.SearchQuery
}

// Model is the bubbletea model.
type Model struct {
	ctrl   Poster
	bridge *Bridge
	keeper *render.FocusKeeper

	view   app.View
	ready  bool
	screen app.Screen
	in     *inputSet

	// form holds the text of inputs the controller does not echo back.
	form map[string]string
	// typed holds passenger edits the controller has not echoed yet.
	typed map[string]string

	width, height int
	measured      viewport.Measurement

	sel        int
	lastQuery  string
	draft      int
	channel    int
}

// New creates the model. Frames arrive through bridge.
func New(ctrl Poster, bridge *Bridge, opts Options) *Model {
	q := opts.Query
	return &Model{
		ctrl:   ctrl,
		bridge: bridge,
		keeper: render.NewFocusKeeper(persistentPrefixes...),
		in:     newInputSet(),
		form: map[string]string{
			idFrom: q.DepartureStation,
			idTo:   q.ArrivalStation,
			idDate: q.TravelDate,
			idSeat: q.SeatType,
		},
		typed: make(map[string]string),
	}
}

// Init waits for the first frame.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.Wait(), textinput.Blink)
}

// Update handles a message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ViewMsg:
		cmd := m.apply(msg.View)
		return m, tea.Batch(cmd, m.bridge.Wait())
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.measure()
		return m, nil
	case tea.KeyMsg:
		return m, m.key(msg)
	}
	return m, m.updateFocused(msg)
}

// apply installs a frame and rebuilds the inputs around it, keeping
// focus and cursor on inputs that survive.
func (m *Model) apply(v app.View) tea.Cmd {
	prevScreen := m.screen
	m.view = v
	m.screen = v.Screen
	first := !m.ready
	m.ready = true

	if key := queryKey(v); key != m.lastQuery {
		m.lastQuery = key
		m.sel = 0
	}
	if m.sel >= v.Total {
		m.sel = max(0, v.Total-1)
	}
	if v.Booking != nil && m.draft >= len(v.Booking.Drafts) {
		m.draft = len(v.Booking.Drafts) - 1
	}

	focus := m.keeper.Capture(m.in.focusables())
	m.in = m.build(v)
	var cmd tea.Cmd
	if first || prevScreen != v.Screen {
		m.in.blur()
		if v.Screen != app.ScreenResults && v.Screen != app.ScreenPayment && len(m.in.order) > 0 {
			cmd = m.in.focus(0)
		}
	} else {
		cmd = m.keeper.Restore(m.in.focusables(), focus)
	}
	m.measure()
	return cmd
}

func queryKey(v app.View) string {
	q := v.Query
	return strings.Join([]string{q.DepartureStation, q.ArrivalStation, q.TravelDate, q.SeatType, q.Cursor}, "|")
}

func (m *Model) build(v app.View) *inputSet {
	s := newInputSet()
	switch v.Screen {
	case app.ScreenResults:
		s.add(idFrom, "出发地", m.form[idFrom], 12)
		s.add(idTo, "到达地", m.form[idTo], 12)
		s.add(idDate, "YYYY-MM-DD", m.form[idDate], 10)
		s.add(idSeat, "席别(可空)", m.form[idSeat], 8)
	case app.ScreenBooking:
		if v.Booking == nil || v.Booking.Step != booking.StepPassengers {
			break
		}
		for i, d := range v.Booking.Drafts {
			s.add(passengerID(i, "name"), "姓名", m.echoed(passengerID(i, "name"), d.Name), 12)
			s.add(passengerID(i, "id"), "身份证号", m.echoed(passengerID(i, "id"), d.IDNumber), 18)
		}
	case app.ScreenLogin:
		if m.form[idPhone] == "" {
			m.form[idPhone] = v.Credential.Phone
		}
		s.add(idPhone, "手机号", m.form[idPhone], 11)
		pw := s.add(idPass, "密码", m.form[idPass], 20)
		pw.EchoMode = textinput.EchoPassword
	case app.ScreenVerify:
		if m.form[idVTel] == "" {
			m.form[idVTel] = v.Credential.Phone
		}
		s.add(idVName, "真实姓名", m.form[idVName], 12)
		s.add(idVID, "身份证号", m.form[idVID], 18)
		s.add(idVTel, "手机号", m.form[idVTel], 11)
	}
	return s
}

// echoed picks the text for a passenger input: the controller's value,
// unless the user typed something it has not caught up with.
func (m *Model) echoed(id, fromView string) string {
	t, ok := m.typed[id]
	if !ok {
		return fromView
	}
	if t == fromView {
		delete(m.typed, id)
	}
	return t
}

// measure reports the list geometry after layout changes. The
// controller ignores changes within its tolerances.
func (m *Model) measure() {
	if m.height == 0 || !m.ready {
		return
	}
	list := max(minListLines, m.height-headerLines-footerLines)
	meas := viewport.Measurement{Viewport: float64(list), RowHeight: rowLines}
	if meas == m.measured {
		return
	}
	m.measured = meas
	m.ctrl.Post(app.Measured{Measurement: meas})
}

func (m *Model) updateFocused(msg tea.Msg) tea.Cmd {
	id := m.in.focused()
	if id == "" {
		return nil
	}
	in := m.in.get(id)
	before := in.Value()
	next, cmd := in.Update(msg)
	*in = next
	if after := in.Value(); after != before {
		m.edited(id, after)
	}
	return cmd
}

func (m *Model) edited(id, value string) {
	i, field, ok := parsePassengerID(id)
	if !ok {
		m.form[id] = value
		return
	}
	m.typed[id] = value
	m.draft = i
	switch field {
	case "name":
		m.ctrl.Post(app.EditName{Index: i, Value: value})
	case "id":
		m.ctrl.Post(app.EditIDNumber{Index: i, Value: value})
	}
}

func (m *Model) key(k tea.KeyMsg) tea.Cmd {
	switch k.String() {
	case "ctrl+c":
		return tea.Quit
	case "tab":
		return m.in.cycle(1)
	case "shift+tab":
		return m.in.cycle(-1)
	}
	if !m.ready {
		return nil
	}
	focused := m.in.focused()
	if focused != "" {
		if i, _, ok := parsePassengerID(focused); ok {
			m.draft = i
		}
		if k.String() == "esc" {
			m.in.blur()
			return nil
		}
	}

	switch m.view.Screen {
	case app.ScreenResults:
		return m.keyResults(k, focused)
	case app.ScreenBooking:
		return m.keyBooking(k, focused)
	case app.ScreenPayment:
		return m.keyPayment(k)
	case app.ScreenLogin:
		if k.String() == "enter" {
			m.ctrl.Post(app.Login{Phone: m.form[idPhone], Password: m.form[idPass]})
			return nil
		}
		if focused == "" && k.String() == "esc" {
			m.ctrl.Post(app.Navigate{To: app.ScreenResults})
			return nil
		}
	case app.ScreenVerify:
		if k.String() == "enter" {
			m.ctrl.Post(app.VerifyRealName{Name: m.form[idVName], IDNumber: m.form[idVID], Phone: m.form[idVTel]})
			return nil
		}
		if focused == "" && k.String() == "esc" {
			m.ctrl.Post(app.Navigate{To: app.ScreenResults})
			return nil
		}
	}
	return m.updateFocused(k)
}

func (m *Model) searchQuery() types.SearchQuery {
	return types.SearchQuery{
		DepartureStation: m.form[idFrom],
		ArrivalStation:   m.form[idTo],
		TravelDate:       strings.TrimSpace(m.form[idDate]),
		SeatType:         strings.TrimSpace(m.form[idSeat]),
	}
}

func (m *Model) keyResults(k tea.KeyMsg, focused string) tea.Cmd {
	if focused != "" {
		if k.String() == "enter" {
			m.ctrl.Post(app.Search{Query: m.searchQuery()})
			m.in.blur()
			return nil
		}
		return m.updateFocused(k)
	}
	switch k.String() {
	case "up", "k":
		m.moveSelection(-1)
	case "down", "j":
		m.moveSelection(1)
	case "pgup":
		m.moveSelection(-m.pageRows())
	case "pgdown":
		m.moveSelection(m.pageRows())
	case "n":
		m.ctrl.Post(app.NextPage{})
	case "p":
		m.ctrl.Post(app.PrevPage{})
	case "enter":
		if t, ok := m.selected(); ok {
			m.ctrl.Post(app.OpenBooking{TrainID: t.TrainID})
		}
	case "/":
		return m.in.focus(0)
	case "l":
		m.ctrl.Post(app.Navigate{To: app.ScreenLogin})
	case "v":
		m.ctrl.Post(app.Navigate{To: app.ScreenVerify})
	case "o":
		m.ctrl.Post(app.Logout{})
	}
	return nil
}

func (m *Model) pageRows() int {
	rh := m.view.Layout.RowHeight
	if rh <= 0 {
		return 1
	}
	return max(1, int(m.view.Layout.Viewport/rh))
}

// firstVisible is the index of the top row on screen.
func (m *Model) firstVisible() int {
	rh := m.view.Layout.RowHeight
	if rh <= 0 {
		return 0
	}
	return int(m.view.Scroll / rh)
}

// moveSelection moves the highlight and scrolls the list to keep it on
// screen.
func (m *Model) moveSelection(delta int) {
	if m.view.Total == 0 {
		return
	}
	m.sel = min(max(0, m.sel+delta), m.view.Total-1)
	first, rows := m.firstVisible(), m.pageRows()
	switch {
	case m.sel < first:
		m.ctrl.Post(app.Scroll{Rows: m.sel - first})
	case m.sel >= first+rows:
		m.ctrl.Post(app.Scroll{Rows: m.sel - (first + rows) + 1})
	}
}

func (m *Model) selected() (types.Train, bool) {
	i := m.sel - m.view.Window.Start
	if i < 0 || i >= len(m.view.Rows) {
		return types.Train{}, false
	}
	return m.view.Rows[i], true
}

func (m *Model) keyBooking(k tea.KeyMsg, focused string) tea.Cmd {
	b := m.view.Booking
	if b == nil {
		return nil
	}
	i := m.draft
	switch k.String() {
	case "enter":
		if b.Step == booking.StepConfirm {
			m.ctrl.Post(app.SubmitBooking{})
		} else {
			m.ctrl.Post(app.BookingNext{})
		}
		return nil
	case "ctrl+b":
		m.ctrl.Post(app.BookingBack{})
		return nil
	case "ctrl+a":
		m.ctrl.Post(app.AddPassenger{})
		return nil
	case "ctrl+x":
		m.forget(i)
		m.ctrl.Post(app.RemovePassenger{Index: i})
		return nil
	case "ctrl+s":
		m.forget(i)
		m.ctrl.Post(app.ToggleSelf{Index: i})
		return nil
	case "ctrl+l":
		m.forget(i)
		m.ctrl.Post(app.LinkPassenger{Index: i, PassengerID: nextSaved(b, i)})
		return nil
	case "ctrl+t":
		if c := nextClass(b, i); c != "" {
			m.ctrl.Post(app.ChooseSeatClass{Index: i, Class: c})
		}
		return nil
	case "ctrl+e":
		if s := nextSeat(b, i); s != "" {
			m.ctrl.Post(app.PickSeat{Index: i, Seat: s})
		}
		return nil
	}
	if focused == "" {
		switch k.String() {
		case "esc":
			m.ctrl.Post(app.CancelBooking{})
		case "up", "k":
			m.draft = max(0, m.draft-1)
		case "down", "j":
			m.draft = min(len(b.Drafts)-1, m.draft+1)
		}
		return nil
	}
	return m.updateFocused(k)
}

// forget drops pending typed text for passenger i ahead of an action
// that replaces it.
func (m *Model) forget(i int) {
	delete(m.typed, passengerID(i, "name"))
	delete(m.typed, passengerID(i, "id"))
}

func (m *Model) keyPayment(k tea.KeyMsg) tea.Cmd {
	switch k.String() {
	case "p":
		m.ctrl.Post(app.PayOrder{Channel: payChannels[m.channel]})
	case "c":
		m.channel = (m.channel + 1) % len(payChannels)
	case "m":
		m.ctrl.Post(app.MockPay{})
	case "r":
		m.ctrl.Post(app.RefreshPayment{})
	case "x":
		m.ctrl.Post(app.CancelOrder{})
	case "f":
		m.ctrl.Post(app.RefundOrder{})
	case "g":
		t, _ := m.selected()
		m.ctrl.Post(app.ChangeOrder{TrainID: t.TrainID})
	case "esc":
		m.ctrl.Post(app.LeavePayment{})
	}
	return nil
}

func nextSaved(b *app.BookingView, i int) uint64 {
	if i >= len(b.Drafts) || len(b.Saved) == 0 {
		return 0
	}
	cur := b.Drafts[i].PassengerID
	if cur == 0 {
		return b.Saved[0].PassengerID
	}
	for j, p := range b.Saved {
		if p.PassengerID == cur && j+1 < len(b.Saved) {
			return b.Saved[j+1].PassengerID
		}
	}
	return 0
}

func nextClass(b *app.BookingView, i int) string {
	if i >= len(b.Drafts) {
		return ""
	}
	classes := types.SeatClasses
	if b.Fare != nil && len(b.Fare.SeatTypes) > 0 {
		classes = nil
		for _, f := range b.Fare.SeatTypes {
			classes = append(classes, f.SeatType)
		}
	}
	cur := b.Drafts[i].SeatClass
	for j, c := range classes {
		if c == cur {
			return classes[(j+1)%len(classes)]
		}
	}
	return classes[0]
}

// nextSeat returns the enabled seat after the current preference. When
// the preference is the only enabled seat it is returned, which clears
// it.
func nextSeat(b *app.BookingView, i int) string {
	if i >= len(b.SeatMaps) {
		return ""
	}
	var enabled []string
	for _, s := range b.SeatMaps[i] {
		if s.Enabled {
			enabled = append(enabled, s.Label)
		}
	}
	if len(enabled) == 0 {
		return ""
	}
	cur := b.Drafts[i].SeatPref
	for j, s := range enabled {
		if s == cur {
			return enabled[(j+1)%len(enabled)]
		}
	}
	return enabled[0]
}
