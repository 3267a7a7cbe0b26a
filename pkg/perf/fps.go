package perf

import (
	"sync"
	"time"
)

// frameWindow is the number of frame deltas the rolling average spans.
const frameWindow = 60

// fpsTracker keeps a ring of recent frame deltas and derives the
// rolling frame rate from their mean.
type fpsTracker struct {
	mu     sync.Mutex
	last   time.Time
	deltas [frameWindow]time.Duration
	sum    time.Duration
	idx    int
	n      int
}

// record ingests a frame timestamp and returns the rolling frame rate.
// full is true once the ring holds a complete window.
func (t *fpsTracker) record(at time.Time) (fps float64, full bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last.IsZero() {
		t.last = at
		return 0, false
	}

	delta := at.Sub(t.last)
	t.last = at
	if delta <= 0 {
		return t.fpsLocked(), t.n == frameWindow
	}

	if t.n == frameWindow {
		t.sum -= t.deltas[t.idx]
	} else {
		t.n++
	}
	t.deltas[t.idx] = delta
	t.sum += delta
	t.idx = (t.idx + 1) % frameWindow

	return t.fpsLocked(), t.n == frameWindow
}

func (t *fpsTracker) fpsLocked() float64 {
	if t.n == 0 || t.sum <= 0 {
		return 0
	}
	return float64(t.n) / t.sum.Seconds()
}

// fps returns the current rolling frame rate.
func (t *fpsTracker) fps() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fpsLocked()
}

// reset clears the ring, e.g. after the grid was offscreen.
func (t *fpsTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
	t.sum = 0
	t.idx = 0
	t.n = 0
}
