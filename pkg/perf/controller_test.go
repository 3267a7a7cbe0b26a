package perf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type warningRecorder struct {
	mu   sync.Mutex
	seen []Warning
}

func (r *warningRecorder) record(w Warning) {
	r.mu.Lock()
	r.seen = append(r.seen, w)
	r.mu.Unlock()
}

func (r *warningRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *warningRecorder) last() Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return Warning{}
	}
	return r.seen[len(r.seen)-1]
}

func newTestController(rec *warningRecorder) *Controller {
	cfg := Config{
		GridName:       "orders",
		ScrollInterval: time.Nanosecond,
	}
	if rec != nil {
		cfg.OnWarning = rec.record
	}
	return NewController(cfg)
}

func TestVirtualizationThreshold(t *testing.T) {
	c := newTestController(nil)
	c.SetViewport(640, 32)

	c.SetRowCount(999)
	assert.False(t, c.Virtualized())
	assert.Equal(t, Window{Start: 0, End: 999}, c.Window())

	c.SetRowCount(1000)
	assert.True(t, c.Virtualized())
	assert.Equal(t, Window{Start: 0, End: 25}, c.Window())
}

func TestHandleScrollComputesWindow(t *testing.T) {
	c := newTestController(nil)
	c.SetViewport(640, 32)
	c.SetRowCount(5000)

	w, ok := c.HandleScroll(1600)
	require.True(t, ok)
	assert.Equal(t, Window{Start: 50, End: 75}, w)
	assert.LessOrEqual(t, w.Len(), 30)
}

func TestHandleScrollThrottles(t *testing.T) {
	c := NewController(Config{GridName: "orders", ScrollInterval: time.Hour})
	c.SetViewport(640, 32)
	c.SetRowCount(5000)

	w, ok := c.HandleScroll(1600)
	require.True(t, ok)
	assert.Equal(t, 50, w.Start)

	// Inside the interval the position is dropped and the window keeps
	// its previous value.
	w, ok = c.HandleScroll(32000)
	assert.False(t, ok)
	assert.Equal(t, 50, w.Start)
}

func TestMemoryPressureShrinksWindow(t *testing.T) {
	rec := &warningRecorder{}
	c := newTestController(rec)
	c.SetViewport(640, 32)
	c.SetRowCount(5000)
	require.Equal(t, 25, c.Window().Len())

	sampled := uint64(150 << 20)
	c.sampleFn = func() uint64 { return sampled }

	c.SampleMemory()
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, WarnMemory, rec.last().Kind)
	assert.Equal(t, LevelWarning, rec.last().Level)
	assert.Equal(t, 20, c.Window().Len())

	// The window never shrinks below the visible rows.
	sampled = 250 << 20
	c.SampleMemory()
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, LevelCritical, rec.last().Level)
	assert.Equal(t, 20, c.Window().Len())

	// A healthy sample restores the full window.
	sampled = 50 << 20
	c.SampleMemory()
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 25, c.Window().Len())
}

func TestRenderBudgetReported(t *testing.T) {
	rec := &warningRecorder{}
	c := newTestController(rec)

	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	c.StartRender()
	now = now.Add(8 * time.Millisecond)
	d := c.EndRender()
	assert.Equal(t, 8*time.Millisecond, d)
	assert.Equal(t, 0, rec.count())

	c.StartRender()
	now = now.Add(40 * time.Millisecond)
	d = c.EndRender()
	assert.Equal(t, 40*time.Millisecond, d)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, WarnRender, rec.last().Kind)
	assert.Equal(t, float64(40), rec.last().Value)
}

func TestEndRenderWithoutStart(t *testing.T) {
	c := newTestController(nil)
	assert.Equal(t, time.Duration(0), c.EndRender())
}

func TestFrameRateWarningIsEdgeTriggered(t *testing.T) {
	rec := &warningRecorder{}
	c := newTestController(rec)

	at := time.Unix(0, 0)
	feed := func(n int, delta time.Duration) {
		for i := 0; i < n; i++ {
			at = at.Add(delta)
			c.RecordFrame(at)
		}
	}

	// Fill the ring with 25fps frames: one warning at the crossing.
	c.RecordFrame(at)
	feed(frameWindow, 40*time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, WarnFPS, rec.last().Kind)
	assert.InDelta(t, 25.0, c.FPS(), 0.5)

	// Staying slow does not re-fire.
	feed(30, 40*time.Millisecond)
	assert.Equal(t, 1, rec.count())

	// Recovery, then slow again: fires once more.
	feed(2*frameWindow, 10*time.Millisecond)
	assert.Greater(t, c.FPS(), 30.0)
	feed(2*frameWindow, 40*time.Millisecond)
	assert.Equal(t, 2, rec.count())
}

func TestResetFramesClearsHistory(t *testing.T) {
	c := newTestController(nil)

	at := time.Unix(0, 0)
	c.RecordFrame(at)
	for i := 0; i < 10; i++ {
		at = at.Add(16 * time.Millisecond)
		c.RecordFrame(at)
	}
	require.Greater(t, c.FPS(), 0.0)

	c.ResetFrames()
	assert.Equal(t, 0.0, c.FPS())
}

func TestStartMemorySamplingStops(t *testing.T) {
	c := newTestController(nil)

	var mu sync.Mutex
	samples := 0
	c.sampleFn = func() uint64 {
		mu.Lock()
		samples++
		mu.Unlock()
		return 1 << 20
	}

	stop := c.StartMemorySampling(time.Millisecond)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return samples > 0
	}, time.Second, time.Millisecond)

	stop()
	stop() // idempotent
}
