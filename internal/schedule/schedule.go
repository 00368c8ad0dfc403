// Package schedule provides cancellable delayed callbacks. Ephemeral state in
// the engine (typing markers, scroll activity, snoozed notifications, upload
// progress reset) owns a Handle and replaces it on every new event.
package schedule

import (
	"sync"
	"time"
)

// Handle is a pending callback that can be cancelled before it fires.
type Handle struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

// After runs fn in its own goroutine once d has elapsed, unless cancelled.
func After(d time.Duration, fn func()) *Handle {
	h := &Handle{}
	h.mu.Lock()
	h.timer = time.AfterFunc(d, func() {
		h.mu.Lock()
		if h.done {
			h.mu.Unlock()
			return
		}
		h.done = true
		h.mu.Unlock()
		fn()
	})
	h.mu.Unlock()
	return h
}

// Cancel stops the callback. It reports whether the callback was still pending.
// Safe to call on a nil handle.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	h.timer.Stop()
	return true
}

// Pending reports whether the callback has neither fired nor been cancelled.
func (h *Handle) Pending() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.done
}

// Debouncer runs fn once no Trigger has happened for the configured delay.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	h     *Handle
}

// NewDebouncer creates a debouncer that calls fn after delay of inactivity.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger cancels any pending call and starts a fresh delay.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.h.Cancel()
	d.h = After(d.delay, d.fn)
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.h.Cancel()
	d.h = nil
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.h.Pending()
}
