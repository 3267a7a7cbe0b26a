package perf

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/internal/sched"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/metrics"
	"github.com/mounirtms/gridcore/pkg/observability"
)

// Input pacing defaults.
const (
	DefaultRenderBudget   = 16 * time.Millisecond
	DefaultScrollInterval = 16 * time.Millisecond
	SearchDebounce        = 300 * time.Millisecond
	ResizeDebounce        = 150 * time.Millisecond
)

// WarningKind tags the subsystem a warning came from.
type WarningKind string

const (
	WarnMemory WarningKind = "memory"
	WarnFPS    WarningKind = "fps"
	WarnRender WarningKind = "render"
)

// WarningLevel grades a warning's severity.
type WarningLevel string

const (
	LevelWarning  WarningLevel = "warning"
	LevelCritical WarningLevel = "critical"
)

// Warning is an observational performance signal. Warnings never stop
// the grid; they let the caller degrade gracefully.
type Warning struct {
	Kind    WarningKind
	Level   WarningLevel
	Message string
	Value   float64
}

// Config configures a performance controller. Zero fields take the
// package defaults.
type Config struct {
	GridName string

	VirtualizationThreshold int
	Overscan                int

	MemoryWarnMB     int
	MemoryCriticalMB int

	FPSFloor       float64
	RenderBudget   time.Duration
	ScrollInterval time.Duration

	// OnWarning receives performance warnings. May be nil.
	OnWarning func(Warning)
}

func (c Config) withDefaults() Config {
	if c.VirtualizationThreshold <= 0 {
		c.VirtualizationThreshold = DefaultVirtualizationThreshold
	}
	if c.Overscan <= 0 {
		c.Overscan = DefaultOverscan
	}
	if c.MemoryWarnMB <= 0 {
		c.MemoryWarnMB = DefaultMemoryWarnMB
	}
	if c.MemoryCriticalMB <= 0 {
		c.MemoryCriticalMB = DefaultMemoryCriticalMB
	}
	if c.FPSFloor <= 0 {
		c.FPSFloor = DefaultFPSFloor
	}
	if c.RenderBudget <= 0 {
		c.RenderBudget = DefaultRenderBudget
	}
	if c.ScrollInterval <= 0 {
		c.ScrollInterval = DefaultScrollInterval
	}
	return c
}

// Controller tracks a grid's rendering health: it decides when to
// virtualize, derives the materialized window from scroll positions,
// watches frame rate and memory pressure, and accounts render budgets.
type Controller struct {
	mu         sync.Mutex
	cfg        Config
	rowCount   int
	viewportH  int
	itemHeight int
	scrollTop  int

	// shrink scales the window length under memory pressure; 1 means
	// no pressure, each pressure sample multiplies by 0.8.
	shrink float64

	renderStart time.Time
	fpsLow      bool

	scroll  *sched.Throttle
	frames  fpsTracker
	sampler *memorySampler

	// sampleFn indirects memory sampling for tests.
	sampleFn func() uint64
	now      func() time.Time

	collector *metrics.Collector
	perfLog   *observability.PerformanceLogger
	log       *zap.Logger
}

// NewController creates a controller for the named grid.
func NewController(cfg Config) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:       cfg,
		shrink:    1,
		scroll:    sched.NewThrottle(cfg.ScrollInterval),
		sampler:   newMemorySampler(),
		now:       time.Now,
		collector: metrics.NewCollector(cfg.GridName),
		perfLog:   observability.NewPerformanceLogger(),
		log:       logger.WithGrid(cfg.GridName).Named("perf"),
	}
	c.sampleFn = c.sampler.sample
	return c
}

// Virtualized reports whether the grid renders through a window.
func (c *Controller) Virtualized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.virtualizedLocked()
}

func (c *Controller) virtualizedLocked() bool {
	return c.rowCount >= c.cfg.VirtualizationThreshold
}

// SetRowCount updates the total row count and recomputes the window.
func (c *Controller) SetRowCount(n int) Window {
	c.mu.Lock()
	c.rowCount = n
	w := c.windowLocked()
	c.mu.Unlock()

	c.collector.WindowRows(w.Len())
	return w
}

// SetViewport records the viewport geometry in pixels.
func (c *Controller) SetViewport(heightPx, itemHeightPx int) Window {
	c.mu.Lock()
	c.viewportH = heightPx
	c.itemHeight = itemHeightPx
	w := c.windowLocked()
	c.mu.Unlock()

	c.collector.WindowRows(w.Len())
	return w
}

// HandleScroll ingests a scroll position. Positions arriving faster
// than the throttle interval are dropped; ok reports acceptance.
func (c *Controller) HandleScroll(scrollTop int) (w Window, ok bool) {
	if !c.scroll.Allow() {
		return c.Window(), false
	}

	c.mu.Lock()
	c.scrollTop = scrollTop
	w = c.windowLocked()
	c.mu.Unlock()

	c.collector.WindowRows(w.Len())
	return w, true
}

// Window returns the currently materialized row range.
func (c *Controller) Window() Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowLocked()
}

func (c *Controller) windowLocked() Window {
	if !c.virtualizedLocked() {
		return Window{Start: 0, End: c.rowCount}
	}

	w := ComputeWindow(c.scrollTop, c.viewportH, c.itemHeight, c.rowCount, c.cfg.Overscan)
	if c.shrink >= 1 {
		return w
	}

	// Memory pressure trims overscan first and never cuts below the
	// visible rows.
	visible := 0
	if c.itemHeight > 0 {
		visible = (c.viewportH + c.itemHeight - 1) / c.itemHeight
	}
	limit := int(float64(w.Len()) * c.shrink)
	if limit < visible {
		limit = visible
	}
	if w.Start+limit < w.End {
		w.End = w.Start + limit
	}
	return w
}

// StartRender marks the beginning of a render pass.
func (c *Controller) StartRender() {
	c.mu.Lock()
	c.renderStart = c.now()
	c.mu.Unlock()
}

// EndRender closes the render pass, records its duration and reports a
// budget breach. Breaches are observational, never fatal.
func (c *Controller) EndRender() time.Duration {
	c.mu.Lock()
	start := c.renderStart
	c.renderStart = time.Time{}
	c.mu.Unlock()

	if start.IsZero() {
		return 0
	}
	d := c.now().Sub(start)
	c.collector.Render(d, c.cfg.RenderBudget)

	if d > c.cfg.RenderBudget {
		c.perfLog.LogLatency("render", d, c.cfg.RenderBudget)
		c.warn(Warning{
			Kind:    WarnRender,
			Level:   LevelWarning,
			Message: "render pass exceeded frame budget",
			Value:   float64(d.Milliseconds()),
		})
	}
	return d
}

// RecordFrame feeds a frame timestamp into the rolling frame rate. A
// full window averaging below the floor emits one fps warning until
// the rate recovers.
func (c *Controller) RecordFrame(at time.Time) {
	fps, full := c.frames.record(at)
	if !full {
		return
	}
	c.collector.FPS(fps)

	c.mu.Lock()
	low := fps < c.cfg.FPSFloor
	fire := low && !c.fpsLow
	c.fpsLow = low
	c.mu.Unlock()

	if fire {
		c.perfLog.LogFrameRate(c.cfg.GridName, fps, c.cfg.FPSFloor)
		c.warn(Warning{
			Kind:    WarnFPS,
			Level:   LevelWarning,
			Message: "frame rate below floor",
			Value:   fps,
		})
	}
}

// FPS returns the rolling frame rate.
func (c *Controller) FPS() float64 {
	return c.frames.fps()
}

// ResetFrames clears frame history, e.g. after the grid was offscreen.
func (c *Controller) ResetFrames() {
	c.frames.reset()
	c.mu.Lock()
	c.fpsLow = false
	c.mu.Unlock()
}

// SampleMemory takes one memory reading and applies the pressure
// policy: readings over the warn/critical thresholds shrink the window
// by 20% and emit a memory warning; healthy readings restore it.
func (c *Controller) SampleMemory() uint64 {
	bytes := c.sampleFn()
	metrics.MemoryUsage.Set(float64(bytes))

	mb := float64(bytes) / (1 << 20)
	var level WarningLevel
	switch {
	case mb >= float64(c.cfg.MemoryCriticalMB):
		level = LevelCritical
	case mb >= float64(c.cfg.MemoryWarnMB):
		level = LevelWarning
	default:
		c.mu.Lock()
		c.shrink = 1
		c.mu.Unlock()
		return bytes
	}

	c.mu.Lock()
	c.shrink *= 0.8
	if c.shrink < 0.4 {
		c.shrink = 0.4
	}
	w := c.windowLocked()
	c.mu.Unlock()

	c.perfLog.LogMemoryUsage("grid", int64(bytes),
		int64(c.cfg.MemoryWarnMB)<<20, int64(c.cfg.MemoryCriticalMB)<<20)
	c.collector.WindowRows(w.Len())
	c.warn(Warning{
		Kind:    WarnMemory,
		Level:   level,
		Message: "memory pressure, window shrunk",
		Value:   mb,
	})
	return bytes
}

// StartMemorySampling launches a sampling loop. The returned stop
// function is idempotent.
func (c *Controller) StartMemorySampling(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				c.SampleMemory()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (c *Controller) warn(w Warning) {
	c.log.Warn("performance warning",
		zap.String("kind", string(w.Kind)),
		zap.String("level", string(w.Level)),
		zap.String("message", w.Message),
		zap.Float64("value", w.Value))

	if c.cfg.OnWarning != nil {
		c.cfg.OnWarning(w)
	}
}
