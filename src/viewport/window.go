package viewport

import (
	"math"
	"sync"
)

const (
	DefaultRowHeight = 132
	DefaultViewport  = 620
	DefaultOverscan  = 6

	DefaultViewportTolerance = 2
	DefaultRowTolerance      = 1
)

// Window is the slice [Start, End) of a list that gets rendered, with
// the space the skipped rows would occupy above and below it.
type Window struct {
	Start    int
	End      int
	Leading  float64
	Trailing float64
}

// Len returns the number of rendered rows.
func (w Window) Len() int { return w.End - w.Start }

// Compute returns the window for scroll offset s, viewport height h,
// estimated row height r, overscan o and n rows.
func Compute(s, h, r float64, o, n int) Window {
	if n <= 0 || r <= 0 {
		return Window{}
	}
	s = math.Max(0, s)
	start := max(0, int(math.Floor(s/r))-o)
	end := min(n, int(math.Ceil((s+h)/r))+o)
	if start > end {
		start = end
	}
	return Window{
		Start:    start,
		End:      end,
		Leading:  float64(start) * r,
		Trailing: float64(n-end) * r,
	}
}

// Measurement is what the view reports after painting. Zero fields are
// treated as "not measured".
type Measurement struct {
	Viewport  float64
	RowHeight float64
}

// Config tunes a Windower.
type Config struct {
	RowHeight         float64
	Viewport          float64
	Overscan          int
	ViewportTolerance float64
	RowTolerance      float64
}

// DefaultConfig returns the stock windowing parameters.
func DefaultConfig() Config {
	return Config{
		RowHeight:         DefaultRowHeight,
		Viewport:          DefaultViewport,
		Overscan:          DefaultOverscan,
		ViewportTolerance: DefaultViewportTolerance,
		RowTolerance:      DefaultRowTolerance,
	}
}

// Windower tracks scroll state over a list of ids and publishes the ids
// of the rendered window.
type Windower struct {
	mu      sync.RWMutex
	cfg     Config
	scroll  float64
	ids     []string
	visible []string
	window  Window
}

// New creates a Windower.
func New(cfg Config) *Windower {
	w := &Windower{cfg: cfg}
	w.recompute()
	return w
}

// SetItems replaces the list and resets scrolling to the top.
func (w *Windower) SetItems(ids []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids = append(w.ids[:0:0], ids...)
	w.scroll = 0
	w.recompute()
}

// ScrollTo moves to offset s, clamped to the scrollable range. It
// reports whether the offset changed.
func (w *Windower) ScrollTo(s float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s = math.Min(math.Max(0, s), w.maxScrollLocked())
	if s == w.scroll {
		return false
	}
	w.scroll = s
	w.recompute()
	return true
}

// ScrollBy moves by delta. It reports whether the offset changed.
func (w *Windower) ScrollBy(delta float64) bool {
	w.mu.RLock()
	s := w.scroll
	w.mu.RUnlock()
	return w.ScrollTo(s + delta)
}

// ScrollRows moves by n estimated rows.
func (w *Windower) ScrollRows(n int) bool {
	w.mu.RLock()
	r := w.cfg.RowHeight
	w.mu.RUnlock()
	return w.ScrollBy(float64(n) * r)
}

// Calibrate folds a post-paint measurement into the estimates. It
// reports whether an estimate moved past its tolerance, which means the
// caller should render once more.
func (w *Windower) Calibrate(m Measurement) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := false
	if m.Viewport > 0 && math.Abs(m.Viewport-w.cfg.Viewport) > w.cfg.ViewportTolerance {
		w.cfg.Viewport = m.Viewport
		changed = true
	}
	if m.RowHeight > 0 && math.Abs(m.RowHeight-w.cfg.RowHeight) > w.cfg.RowTolerance {
		w.cfg.RowHeight = m.RowHeight
		changed = true
	}
	if changed {
		w.scroll = math.Min(w.scroll, w.maxScrollLocked())
		w.recompute()
	}
	return changed
}

// Window returns the current window.
func (w *Windower) Window() Window {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.window
}

// VisibleIDs returns the ids inside the current window.
func (w *Windower) VisibleIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.visible))
	copy(out, w.visible)
	return out
}

// Scroll returns the current offset.
func (w *Windower) Scroll() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.scroll
}

// Config returns the current estimates.
func (w *Windower) Config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Windower) maxScrollLocked() float64 {
	return math.Max(0, float64(len(w.ids))*w.cfg.RowHeight-w.cfg.Viewport)
}

func (w *Windower) recompute() {
	w.window = Compute(w.scroll, w.cfg.Viewport, w.cfg.RowHeight, w.cfg.Overscan, len(w.ids))
	w.visible = append(w.visible[:0:0], w.ids[w.window.Start:w.window.End]...)
}
