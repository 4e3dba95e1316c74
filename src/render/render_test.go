package render

import (
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/orchestra-mcp/railbook/src/clock"
	"github.com/stretchr/testify/assert"
)

// syncLoop stands in for the owner's loop: dispatched work is queued
// and run by drain.
type syncLoop struct {
	queue []func()
}

func (l *syncLoop) dispatch(f func()) { l.queue = append(l.queue, f) }

func (l *syncLoop) drain() {
	for len(l.queue) > 0 {
		f := l.queue[0]
		l.queue = l.queue[1:]
		f()
	}
}

func TestScheduleCoalescesWithinFrame(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	loop := &syncLoop{}
	renders := 0
	s := NewScheduler(fc, 0, loop.dispatch, func() { renders++ })

	for i := 0; i < 10; i++ {
		s.Schedule()
	}
	assert.True(t, s.Pending())
	assert.Equal(t, 1, fc.Pending())

	fc.Advance(DefaultFrame)
	loop.drain()
	assert.Equal(t, 1, renders)
	assert.False(t, s.Pending())

	fc.Advance(DefaultFrame)
	loop.drain()
	assert.Equal(t, 1, renders)
}

func TestScheduleObservesLatestState(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	loop := &syncLoop{}
	state, seen := 0, -1
	s := NewScheduler(fc, 0, loop.dispatch, func() { seen = state })

	state = 1
	s.Schedule()
	state = 2
	s.Schedule()
	fc.Advance(DefaultFrame)
	loop.drain()
	assert.Equal(t, 2, seen)
}

func TestScheduleFromRenderRunsNextFrame(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	loop := &syncLoop{}
	var s *Scheduler
	renders := 0
	s = NewScheduler(fc, 0, loop.dispatch, func() {
		renders++
		if renders == 1 {
			s.Schedule()
		}
	})

	s.Schedule()
	fc.Advance(DefaultFrame)
	loop.drain()
	assert.Equal(t, 1, renders)
	assert.True(t, s.Pending())

	fc.Advance(DefaultFrame)
	loop.drain()
	assert.Equal(t, 2, renders)
	assert.Equal(t, 2, s.Passes())
}

func TestReentrantFlushRetriesNextFrame(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	var s *Scheduler
	renders := 0
	s = NewScheduler(fc, 0, func(f func()) { f() }, func() {
		renders++
		if renders == 1 {
			s.Schedule()
			fc.Advance(DefaultFrame)
		}
	})

	s.Schedule()
	fc.Advance(DefaultFrame)
	assert.Equal(t, 1, renders)
	assert.True(t, s.Pending())
	assert.Equal(t, 1, fc.Pending(), "retry armed")

	fc.Advance(DefaultFrame)
	assert.Equal(t, 2, renders)
	assert.False(t, s.Pending())
}

func TestStopCancelsPass(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	loop := &syncLoop{}
	renders := 0
	s := NewScheduler(fc, 0, loop.dispatch, func() { renders++ })

	s.Schedule()
	s.Stop()
	fc.Advance(DefaultFrame)
	loop.drain()
	assert.Equal(t, 0, renders)
}

func TestFocusKeeperCarriesCursorAcrossRebuild(t *testing.T) {
	k := NewFocusKeeper("search.", "passenger.")

	name := textinput.New()
	name.SetValue("北京南站")
	name.Focus()
	name.SetCursor(2)
	other := textinput.New()

	before := map[string]Focusable{"search.from": &name, "search.to": &other}
	focus := k.Capture(before)
	assert.Equal(t, Focus{ID: "search.from", Cursor: 2}, focus)

	rebuiltName := textinput.New()
	rebuiltName.SetValue("北京南站")
	rebuiltOther := textinput.New()
	rebuiltOther.Focus()
	after := map[string]Focusable{"search.from": &rebuiltName, "search.to": &rebuiltOther}
	k.Restore(after, focus)

	assert.True(t, rebuiltName.Focused())
	assert.Equal(t, 2, rebuiltName.Position())
	assert.False(t, rebuiltOther.Focused())
}

func TestFocusKeeperIgnoresUndeclaredInputs(t *testing.T) {
	k := NewFocusKeeper("passenger.")
	in := textinput.New()
	in.Focus()
	assert.True(t, k.Capture(map[string]Focusable{"login.phone": &in}).Zero())

	k.Restore(map[string]Focusable{"login.phone": &in}, Focus{})
	assert.False(t, in.Focused())
}
