package render

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/railbook/src/clock"
)

// DefaultFrame is the render cadence.
const DefaultFrame = 16 * time.Millisecond

// Scheduler coalesces render requests into at most one pass per frame.
// The pass runs on the owner's loop: when the frame elapses, dispatch
// is handed a function that the owner must call from that loop.
type Scheduler struct {
	clock    clock.Clock
	frame    time.Duration
	dispatch func(func())
	render   func()

	mu        sync.Mutex
	pending   bool
	rendering bool
	timer     *clock.Timer
	passes    int
}

// NewScheduler creates a scheduler. A non-positive frame uses
// DefaultFrame.
func NewScheduler(c clock.Clock, frame time.Duration, dispatch func(func()), render func()) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Scheduler{clock: c, frame: frame, dispatch: dispatch, render: render}
}

// Schedule requests a pass at the next frame boundary. Any number of
// calls before then collapse into that one pass.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return
	}
	s.pending = true
	s.timer = s.clock.AfterFunc(s.frame, func() { s.dispatch(s.flush) })
}

// Pending reports whether a pass is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Passes returns the number of passes run so far.
func (s *Scheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// Stop cancels a scheduled pass.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
}

func (s *Scheduler) flush() {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	if s.rendering {
		// Re-entered from a pass: try again next frame.
		s.timer = s.clock.AfterFunc(s.frame, func() { s.dispatch(s.flush) })
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.rendering = true
	s.passes++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.rendering = false
		s.mu.Unlock()
	}()
	s.render()
}
