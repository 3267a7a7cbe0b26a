// Package metrics provides performance tracking and observability for
// gridcore using Prometheus metrics. It offers collectors for cache
// behavior, data loads, rendering, state persistence and action
// dispatch.
//
// # Overview
//
// The metrics package provides:
//   - Prometheus-compatible metrics collection
//   - Pre-defined metrics for grid operations
//   - Per-grid convenience collectors
//   - Thread-safe metric recording
//   - Automatic metric registration
//
// # Basic Usage
//
//	// Record a cache hit
//	metrics.CacheHits.WithLabelValues("orders").Inc()
//
//	// Track load latency
//	timer := metrics.NewTimer("load_page")
//	rows, err := loader.Load(ctx, query)
//	metrics.LoadDuration.WithLabelValues("orders", "server").
//	    Observe(timer.Stop().Seconds())
//
//	// Per-grid collector
//	col := metrics.NewCollector("orders")
//	col.CacheHit()
//	col.LoadOK("server", time.Since(start))
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., total loads)
// Gauge: Values that can go up or down (e.g., cache bytes)
// Histogram: Distribution of values (e.g., render durations)
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHits counts query cache hits per grid.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_cache_hits_total",
			Help: "Total number of query cache hits",
		},
		[]string{"grid"},
	)

	// CacheMisses counts query cache misses per grid.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_cache_misses_total",
			Help: "Total number of query cache misses",
		},
		[]string{"grid"},
	)

	// CacheEvictions counts evicted cache entries per grid, labeled
	// with the reason (lru, ttl, bytes, clear).
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_cache_evictions_total",
			Help: "Total number of query cache evictions",
		},
		[]string{"grid", "reason"},
	)

	// CacheBytes tracks the estimated resident size of each grid's cache.
	CacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridcore_cache_bytes",
			Help: "Estimated query cache size in bytes",
		},
		[]string{"grid"},
	)

	// CacheEntries tracks the number of live cache entries per grid.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridcore_cache_entries",
			Help: "Number of live query cache entries",
		},
		[]string{"grid"},
	)

	// LoadsTotal counts data loads per grid.
	// Labels: grid, mode (client/server/lazy), status (success/error/canceled)
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_loads_total",
			Help: "Total number of data loads",
		},
		[]string{"grid", "mode", "status"},
	)

	// LoadDuration tracks the distribution of load latencies in seconds.
	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridcore_load_duration_seconds",
			Help:    "Data load latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"grid", "mode"},
	)

	// RenderDuration tracks per-pass render durations in seconds. The
	// buckets bracket the 16ms frame budget.
	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridcore_render_duration_seconds",
			Help:    "Grid render pass duration in seconds",
			Buckets: []float64{.001, .002, .004, .008, .016, .032, .064, .128, .256},
		},
		[]string{"grid"},
	)

	// RenderBudgetBreaches counts render passes that exceeded the frame budget.
	RenderBudgetBreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_render_budget_breaches_total",
			Help: "Render passes that exceeded the configured frame budget",
		},
		[]string{"grid"},
	)

	// FramesPerSecond reports the rolling frame rate per grid.
	FramesPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridcore_frames_per_second",
			Help: "Rolling average frames per second",
		},
		[]string{"grid"},
	)

	// MemoryUsage reports the last sampled process memory in bytes.
	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridcore_memory_usage_bytes",
			Help: "Last sampled process memory usage in bytes",
		},
	)

	// VirtualWindowRows reports the current virtualization window size.
	VirtualWindowRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridcore_virtual_window_rows",
			Help: "Rows in the current virtualization window",
		},
		[]string{"grid"},
	)

	// StateSaves counts persisted state writes per grid.
	// Labels: grid, status (success/error)
	StateSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_state_saves_total",
			Help: "Total number of state persistence writes",
		},
		[]string{"grid", "status"},
	)

	// ActionInvocations counts action dispatches per grid.
	// Labels: grid, action, status (success/error/conflict)
	ActionInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_action_invocations_total",
			Help: "Total number of action invocations",
		},
		[]string{"grid", "action", "status"},
	)

	// CellRenderFailures counts contained cell renderer failures,
	// both recovered panics and returned errors.
	CellRenderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcore_cell_render_failures_total",
			Help: "Contained failures from custom cell renderers",
		},
		[]string{"grid", "field"},
	)

	// RowThroughput reports rows delivered per second per grid.
	RowThroughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridcore_row_throughput_rows_per_second",
			Help: "Rows delivered to consumers per second",
		},
		[]string{"grid"},
	)
)

// Handler returns an http.Handler exposing all registered metrics in
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Collector binds the package metrics to one grid so call sites don't
// repeat the grid label. Each grid instance creates its own collector.
type Collector struct {
	grid string
}

// NewCollector creates a metrics collector for the named grid.
//
// Example:
//
//	col := metrics.NewCollector("orders")
//	col.CacheHit()
//	col.LoadOK("server", time.Since(start))
func NewCollector(grid string) *Collector {
	return &Collector{grid: grid}
}

// Grid returns the grid name the collector is bound to.
func (c *Collector) Grid() string {
	return c.grid
}

// CacheHit records a query cache hit.
func (c *Collector) CacheHit() {
	CacheHits.WithLabelValues(c.grid).Inc()
}

// CacheMiss records a query cache miss.
func (c *Collector) CacheMiss() {
	CacheMisses.WithLabelValues(c.grid).Inc()
}

// CacheEvicted records n evicted entries for the given reason.
func (c *Collector) CacheEvicted(reason string, n int) {
	CacheEvictions.WithLabelValues(c.grid, reason).Add(float64(n))
}

// CacheSize updates the cache size gauges.
func (c *Collector) CacheSize(entries int, bytes int64) {
	CacheEntries.WithLabelValues(c.grid).Set(float64(entries))
	CacheBytes.WithLabelValues(c.grid).Set(float64(bytes))
}

// LoadOK records a successful load with its duration.
func (c *Collector) LoadOK(mode string, d time.Duration) {
	LoadsTotal.WithLabelValues(c.grid, mode, "success").Inc()
	LoadDuration.WithLabelValues(c.grid, mode).Observe(d.Seconds())
}

// LoadError records a failed load.
func (c *Collector) LoadError(mode string) {
	LoadsTotal.WithLabelValues(c.grid, mode, "error").Inc()
}

// LoadCanceled records a load abandoned by cancellation.
func (c *Collector) LoadCanceled(mode string) {
	LoadsTotal.WithLabelValues(c.grid, mode, "canceled").Inc()
}

// Render records a render pass duration and whether it blew the budget.
func (c *Collector) Render(d, budget time.Duration) {
	RenderDuration.WithLabelValues(c.grid).Observe(d.Seconds())
	if budget > 0 && d > budget {
		RenderBudgetBreaches.WithLabelValues(c.grid).Inc()
	}
}

// FPS updates the rolling frame rate gauge.
func (c *Collector) FPS(fps float64) {
	FramesPerSecond.WithLabelValues(c.grid).Set(fps)
}

// WindowRows updates the virtualization window gauge.
func (c *Collector) WindowRows(n int) {
	VirtualWindowRows.WithLabelValues(c.grid).Set(float64(n))
}

// StateSave records a persistence write outcome.
func (c *Collector) StateSave(ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	StateSaves.WithLabelValues(c.grid, status).Inc()
}

// Action records an action invocation outcome.
func (c *Collector) Action(action, status string) {
	ActionInvocations.WithLabelValues(c.grid, action, status).Inc()
}

// CellRenderFailed records a contained cell renderer failure.
func (c *Collector) CellRenderFailed(field string) {
	CellRenderFailures.WithLabelValues(c.grid, field).Inc()
}

// Timer provides a simple timing mechanism for measuring operation
// durations. It captures the start time on creation and calculates
// elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
//
// Example:
//
//	timer := metrics.NewTimer("load_page")
//	rows, err := loader.Load(ctx, query)
//	duration := timer.Stop()
//	logger.Info("page loaded", zap.Duration("duration", duration))
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times, each returning the total elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows delivered per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	grid      string
}

// NewThroughputTracker creates a throughput tracker for the named grid.
//
// Example:
//
//	tracker := metrics.NewThroughputTracker("orders")
//	tracker.Increment(int64(len(rows)))
//	rps := tracker.GetAndReset()
func NewThroughputTracker(grid string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		grid:      grid,
	}
}

// Increment adds n to the row count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current throughput (rows/second), updates
// the Prometheus gauge, resets the counter, and returns the value.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	RowThroughput.WithLabelValues(t.grid).Set(throughput)

	return throughput
}

// LatencyTracker keeps a bounded window of durations and answers
// percentile queries. Used for frame pacing diagnostics.
type LatencyTracker struct {
	mu      sync.Mutex
	values  []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker holding at most maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	return &LatencyTracker{
		values:  make([]time.Duration, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record records a duration, evicting the oldest sample when full.
func (l *LatencyTracker) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) >= l.maxSize {
		l.values = l.values[1:]
	}
	l.values = append(l.values, d)
}

// Len returns the number of recorded samples.
func (l *LatencyTracker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

// GetPercentile returns the p-th percentile (0-100) of the window.
func (l *LatencyTracker) GetPercentile(p float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(l.values))
	copy(sorted, l.values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(float64(len(sorted)) * p / 100)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
