// Package sched implements the cooperative scheduling primitives grids
// rely on: trailing-edge debouncers, leading-edge throttles, per-key
// single-flight gates and generation-scoped cancellation.
package sched

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls into one trailing invocation.
// Each Call resets the timer and replaces the pending function; only
// the last function passed within a burst runs.
type Debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	timer   *time.Timer
	pending func()
	stopped bool
}

// NewDebouncer creates a debouncer with the given trailing window.
func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Call schedules fn to run after the window elapses without further calls.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Flush runs any pending function immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop cancels any pending invocation and rejects further calls.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether an invocation is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
