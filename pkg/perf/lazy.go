package perf

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/internal/sched"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/metrics"
)

// Lazy paging defaults.
const (
	DefaultLazyPageSize    = 100
	DefaultRetryBase       = time.Second
	DefaultRetryFactor     = 2.0
	DefaultRetryMaxAttempt = 3
)

// PageFetch loads one page of rows for the lazy pager.
type PageFetch func(ctx context.Context, page int) ([]loader.Row, error)

// LazyConfig configures a pager. Zero fields take package defaults.
type LazyConfig struct {
	GridName string
	PageSize int
	Overscan int

	MaxAttempts int
	RetryBase   time.Duration
	RetryFactor float64

	// Fetch loads a page. Required.
	Fetch PageFetch

	// OnPage commits a fetched page. Called outside the pager lock.
	OnPage func(page int, rows []loader.Row)
}

func (c LazyConfig) withDefaults() LazyConfig {
	if c.PageSize <= 0 {
		c.PageSize = DefaultLazyPageSize
	}
	if c.Overscan <= 0 {
		c.Overscan = DefaultOverscan
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultRetryMaxAttempt
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryFactor <= 1 {
		c.RetryFactor = DefaultRetryFactor
	}
	return c
}

// LazyPager fills the virtualization window page by page. Fetches are
// deduplicated by page index with a single request in flight; a page
// whose result arrives after it left the window neighborhood is
// discarded, and failed pages retry with exponential backoff the next
// time they become visible.
type LazyPager struct {
	mu       sync.Mutex
	cfg      LazyConfig
	window   Window
	loaded   map[int]bool
	inflight int
	attempts map[int]int
	nextTry  map[int]time.Time

	gen *sched.Generation
	now func() time.Time

	collector *metrics.Collector
	log       *zap.Logger
}

// NewLazyPager creates a pager. Close releases its pending work.
func NewLazyPager(cfg LazyConfig) *LazyPager {
	cfg = cfg.withDefaults()
	return &LazyPager{
		cfg:       cfg,
		loaded:    make(map[int]bool),
		inflight:  -1,
		attempts:  make(map[int]int),
		nextTry:   make(map[int]time.Time),
		gen:       sched.NewGeneration(),
		now:       time.Now,
		collector: metrics.NewCollector(cfg.GridName),
		log:       logger.WithGrid(cfg.GridName).Named("lazy"),
	}
}

// SetWindow records the new materialized window and starts fetching
// the first missing page inside it.
func (p *LazyPager) SetWindow(w Window) {
	p.mu.Lock()
	p.window = w
	p.ensureLocked()
	p.mu.Unlock()
}

// Loaded reports whether a page has been committed.
func (p *LazyPager) Loaded(page int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded[page]
}

// InFlight returns the page currently being fetched, or -1.
func (p *LazyPager) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// MarkLoaded records pages the caller filled through other means,
// e.g. the initial load.
func (p *LazyPager) MarkLoaded(pages ...int) {
	p.mu.Lock()
	for _, page := range pages {
		p.loaded[page] = true
		delete(p.attempts, page)
		delete(p.nextTry, page)
	}
	p.mu.Unlock()
}

// Cancel aborts pending fetches. Loaded pages stay committed.
func (p *LazyPager) Cancel() {
	p.gen.Advance()
}

// Reset forgets all pages and aborts pending fetches, e.g. after the
// cache was cleared or the dataset changed.
func (p *LazyPager) Reset() {
	p.mu.Lock()
	p.loaded = make(map[int]bool)
	p.attempts = make(map[int]int)
	p.nextTry = make(map[int]time.Time)
	p.mu.Unlock()
	p.gen.Advance()
}

// Close aborts pending fetches for good.
func (p *LazyPager) Close() {
	p.gen.Cancel()
}

func (p *LazyPager) ensureLocked() {
	if p.cfg.Fetch == nil || p.inflight >= 0 || p.window.Len() == 0 {
		return
	}

	first := p.window.Start / p.cfg.PageSize
	last := (p.window.End - 1) / p.cfg.PageSize
	now := p.now()

	for page := first; page <= last; page++ {
		if p.loaded[page] {
			continue
		}
		if n := p.attempts[page]; n > 0 {
			if n >= p.cfg.MaxAttempts {
				continue
			}
			if now.Before(p.nextTry[page]) {
				continue
			}
		}

		p.inflight = page
		ctx, seq := p.gen.Current()
		go p.fetch(ctx, seq, page)
		return
	}
}

func (p *LazyPager) fetch(ctx context.Context, seq uint64, page int) {
	start := time.Now()
	rows, err := p.cfg.Fetch(ctx, page)

	p.mu.Lock()
	if p.inflight == page {
		p.inflight = -1
	}

	if !p.gen.Live(seq) || ctx.Err() != nil {
		p.mu.Unlock()
		p.collector.LoadCanceled("lazy")
		p.log.Debug("dropped lazy page from canceled generation", zap.Int("page", page))
		return
	}

	if err != nil {
		n := p.attempts[page] + 1
		p.attempts[page] = n
		p.nextTry[page] = p.now().Add(p.retryDelay(n))
		p.ensureLocked()
		p.mu.Unlock()

		p.collector.LoadError("lazy")
		p.log.Warn("lazy page load failed",
			zap.Int("page", page),
			zap.Int("attempt", n),
			zap.Error(err))
		return
	}

	// A page that left the visible neighborhood while in flight is
	// discarded; scrolling back refetches it.
	lo := p.window.Start - p.cfg.Overscan
	if lo < 0 {
		lo = 0
	}
	hi := p.window.End + p.cfg.Overscan
	pageStart := page * p.cfg.PageSize
	if pageStart+p.cfg.PageSize <= lo || pageStart >= hi {
		p.ensureLocked()
		p.mu.Unlock()

		p.collector.LoadCanceled("lazy")
		p.log.Debug("discarded lazy page outside window", zap.Int("page", page))
		return
	}

	p.loaded[page] = true
	delete(p.attempts, page)
	delete(p.nextTry, page)
	onPage := p.cfg.OnPage
	p.mu.Unlock()

	if onPage != nil {
		onPage(page, rows)
	}
	p.collector.LoadOK("lazy", time.Since(start))

	p.mu.Lock()
	p.ensureLocked()
	p.mu.Unlock()
}

func (p *LazyPager) retryDelay(attempt int) time.Duration {
	d := p.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.cfg.RetryFactor)
	}
	return d
}
