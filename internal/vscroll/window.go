// Package vscroll computes which rows of a long uniform-height list are
// worth rendering for a given scroll position.
package vscroll

import (
	"sync"
	"time"

	"github.com/matheus3301/schoolmsg/internal/schedule"
)

// DefaultScrollIdle is how long after the last scroll event IsScrolling stays true.
const DefaultScrollIdle = 150 * time.Millisecond

// Behavior is the animation requested for a programmatic scroll.
type Behavior string

const (
	BehaviorAuto   Behavior = "auto"
	BehaviorSmooth Behavior = "smooth"
)

// Scroller performs the actual scroll in the view layer.
type Scroller interface {
	ScrollTo(offset int, behavior Behavior)
}

// Config sizes the window. Heights are in rows.
type Config struct {
	ItemHeight int
	// EstimatedItemHeight is accepted for variable-height lists but every
	// computation uses ItemHeight.
	EstimatedItemHeight int
	Overscan            int
	ScrollIdle          time.Duration
}

// Window tracks scrollTop and container height and derives the visible range.
type Window struct {
	mu        sync.Mutex
	cfg       Config
	scroller  Scroller
	scrollTop int
	height    int
	count     int
	scrolling bool
	idle      *schedule.Debouncer
	onIdle    func()
}

// New creates a window. scroller may be nil when ScrollToIndex is unused.
func New(cfg Config, scroller Scroller) *Window {
	if cfg.ItemHeight <= 0 {
		cfg.ItemHeight = 1
	}
	if cfg.Overscan < 0 {
		cfg.Overscan = 0
	}
	if cfg.ScrollIdle <= 0 {
		cfg.ScrollIdle = DefaultScrollIdle
	}
	w := &Window{cfg: cfg, scroller: scroller}
	w.idle = schedule.NewDebouncer(cfg.ScrollIdle, w.settle)
	return w
}

// OnIdle registers a callback run when scrolling settles.
func (w *Window) OnIdle(fn func()) {
	w.mu.Lock()
	w.onIdle = fn
	w.mu.Unlock()
}

func (w *Window) settle() {
	w.mu.Lock()
	w.scrolling = false
	fn := w.onIdle
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (w *Window) SetItemCount(n int) {
	w.mu.Lock()
	w.count = max(n, 0)
	w.mu.Unlock()
}

func (w *Window) ItemCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// OnScroll records a scroll event.
func (w *Window) OnScroll(top int) {
	w.mu.Lock()
	w.scrollTop = max(top, 0)
	w.scrolling = true
	w.mu.Unlock()
	w.idle.Trigger()
}

// Resize records the container height.
func (w *Window) Resize(height int) {
	w.mu.Lock()
	w.height = max(height, 0)
	w.mu.Unlock()
}

// Range returns the half-open index range [start, end) to render, overscan
// included. 0 <= start <= end <= item count always holds.
func (w *Window) Range() (start, end int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := w.cfg.ItemHeight
	first := w.scrollTop / h
	visible := (w.height + h - 1) / h
	start = clamp(first-w.cfg.Overscan, 0, w.count)
	end = clamp(first+visible+w.cfg.Overscan, start, w.count)
	return start, end
}

// TotalHeight is the full scrollable height.
func (w *Window) TotalHeight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count * w.cfg.ItemHeight
}

// ScrollTop returns the last recorded scroll position.
func (w *Window) ScrollTop() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scrollTop
}

func (w *Window) IsScrolling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scrolling
}

func (w *Window) OffsetOf(index int) int {
	return index * w.cfg.ItemHeight
}

// ScrollToIndex asks the scroller to move to index. The window updates its
// own position when the resulting scroll event arrives.
func (w *Window) ScrollToIndex(index int, behavior Behavior) {
	if w.scroller == nil {
		return
	}
	w.scroller.ScrollTo(w.OffsetOf(index), behavior)
}

// Stop cancels the pending idle callback.
func (w *Window) Stop() {
	w.idle.Cancel()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
