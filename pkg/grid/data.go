package grid

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/cache"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/json"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/perf"
	"github.com/mounirtms/gridcore/pkg/state"
)

// query assembles the loader query from the committed state.
func (g *Grid) query() loader.Query {
	return loader.Query{
		Pagination: g.state.Pagination(),
		Sort:       g.state.Sort(),
		Filter:     g.state.Filter(),
		Search:     g.state.View().SearchValue,
	}
}

// onStateEvent reacts to committed transitions: client mode recomputes
// the visible page, both modes emit deduplicated model callbacks.
// Selection and view transitions only emit.
func (g *Grid) onStateEvent(ev state.Event) {
	switch ev.Kind {
	case state.EventPagination, state.EventSort, state.EventFilter,
		state.EventSearch, state.EventImport, state.EventReset:
		if g.mode == PaginationClient {
			g.recompute()
		}
	}
	g.emit(ev.Kind)
}

// recompute re-evaluates the client-mode query over the full dataset:
// filter, search, sort, paginate. Selection is pruned against the
// dataset, not the page, so it survives paging.
func (g *Grid) recompute() {
	q := g.query()
	g.mu.Lock()
	rows, total := loader.ApplyQuery(g.allRows, q, g.engineOpts)
	g.rows = rows
	g.totalCount = total
	index := make(map[state.RowID]loader.Row, len(g.allRows))
	for _, row := range g.allRows {
		if id := g.rowID(row); id != "" {
			index[id] = row
		}
	}
	g.rowIndex = index
	g.perfCtl.SetRowCount(len(rows))
	g.mu.Unlock()

	if g.features.Selection {
		g.state.PruneSelection(func(id state.RowID) bool {
			_, ok := index[id]
			return ok
		})
	}
}

// commit installs a server page. Selection is pruned to the committed
// rows unless the caller opted to preserve it across reloads.
func (g *Grid) commit(rows []loader.Row, total int) {
	g.mu.Lock()
	g.rows = rows
	g.totalCount = total
	index := make(map[state.RowID]loader.Row, len(rows))
	for _, row := range rows {
		if id := g.rowID(row); id != "" {
			index[id] = row
		}
	}
	g.rowIndex = index
	g.perfCtl.SetRowCount(g.windowRowCountLocked())
	g.mu.Unlock()

	if g.features.Selection && !g.opts.PreserveSelectionOnReload {
		g.state.PruneSelection(func(id state.RowID) bool {
			_, ok := index[id]
			return ok
		})
	}
}

// windowRowCountLocked is the row space the window ranges over: the
// full result set under scroll-driven paging, the committed page
// otherwise.
func (g *Grid) windowRowCountLocked() int {
	if g.pager != nil {
		return g.totalCount
	}
	return len(g.rows)
}

// load pulls the current query through the loader, serving from and
// filling the cache. Concurrent identical queries collapse into one
// fetch; results from a canceled generation are discarded.
func (g *Grid) load(ctx context.Context) error {
	q := g.query()
	key := cache.Key(q)
	if g.cache != nil {
		if e, ok := g.cache.Get(key); ok {
			g.commit(e.Rows, e.TotalCount)
			return nil
		}
	}
	if !g.loadGate.TryAcquire(key) {
		g.log.Debug("dropped duplicate in-flight load", zap.Int("page", q.Pagination.Page))
		return nil
	}
	defer g.loadGate.Release(key)

	_, seq := g.gen.Current()
	start := time.Now()
	var res loader.Result
	err := g.tracer.TraceLoad(ctx, string(g.mode), q.Pagination.Page, func(ctx context.Context) error {
		r, lerr := loader.LoadWithRetry(ctx, g.opts.Loader, q, g.retry)
		res = r
		return lerr
	})
	if err != nil {
		g.collector.LoadError(string(g.mode))
		werr := errors.Wrap(err, errors.ErrorTypeLoader, "page load failed").
			WithDetail("grid", g.opts.GridName).
			WithDetail("page", q.Pagination.Page)
		g.log.Warn("page load failed", zap.Int("page", q.Pagination.Page), zap.Error(err))
		g.emitError(werr)
		return werr
	}
	if !g.gen.Live(seq) {
		g.collector.LoadCanceled(string(g.mode))
		g.log.Debug("dropped load result from canceled generation")
		return nil
	}
	if g.cache != nil {
		g.cache.Put(key, res.Rows, res.TotalCount)
	}
	g.commit(res.Rows, res.TotalCount)
	g.collector.LoadOK(string(g.mode), time.Since(start))
	return nil
}

func (g *Grid) serverLoad(ctx context.Context) error {
	if g.mode != PaginationServer || g.opts.Loader == nil {
		return nil
	}
	return g.load(ctx)
}

// reload rebuilds the visible page: server grids refetch through the
// loader, client grids recompute from the dataset.
func (g *Grid) reload(ctx context.Context) error {
	if g.mode == PaginationServer {
		return g.serverLoad(ctx)
	}
	g.recompute()
	return nil
}

// SetData replaces the client-mode dataset and recomputes the page.
// Server grids treat it as a page commit.
func (g *Grid) SetData(rows []loader.Row, totalCount int) {
	if g.mode == PaginationClient {
		g.mu.Lock()
		g.allRows = rows
		g.mu.Unlock()
		g.recompute()
		return
	}
	g.CommitRows(rows, totalCount)
}

// CommitRows installs a page pushed by the caller, caching it under
// the current query. Callback-style server grids call this after
// fetching the page a pagination callback announced.
func (g *Grid) CommitRows(rows []loader.Row, totalCount int) {
	if g.mode == PaginationServer && g.cache != nil {
		g.cache.Put(cache.Key(g.query()), rows, totalCount)
	}
	g.commit(rows, totalCount)
}

// SetPage moves to a 0-based page. Server grids with a loader pull the
// page synchronously; repeats are served from the cache.
func (g *Grid) SetPage(ctx context.Context, page int) error {
	if page < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "page must not be negative: %d", page).
			WithDetail("grid", g.opts.GridName)
	}
	p := g.state.Pagination()
	if p.Page == page {
		return nil
	}
	p.Page = page
	g.state.SetPagination(p)
	return g.serverLoad(ctx)
}

// SetPageSize switches to an offered page size and snaps back to the
// first page.
func (g *Grid) SetPageSize(ctx context.Context, size int) error {
	if !containsInt(g.opts.pageSizes(g.cfg), size) {
		return errors.Newf(errors.ErrorTypeValidation, "page size %d is not offered", size).
			WithDetail("grid", g.opts.GridName)
	}
	p := g.state.Pagination()
	if p.PageSize == size {
		return nil
	}
	p.Page = 0
	p.PageSize = size
	g.state.SetPagination(p)
	g.resetPager(size)
	return g.serverLoad(ctx)
}

// SetSort replaces the sort model. The page is kept; sorting reorders,
// it never resizes the result set.
func (g *Grid) SetSort(ctx context.Context, m state.SortModel) error {
	if !g.features.Sorting {
		return errors.New(errors.ErrorTypeValidation, "sorting is disabled").
			WithDetail("grid", g.opts.GridName)
	}
	g.state.SetSort(m)
	g.invalidatePager()
	return g.serverLoad(ctx)
}

// SetFilter replaces the filter model and snaps back to the first
// page.
func (g *Grid) SetFilter(ctx context.Context, f state.FilterModel) error {
	if !g.features.Filtering {
		return errors.New(errors.ErrorTypeValidation, "filtering is disabled").
			WithDetail("grid", g.opts.GridName)
	}
	g.resetToFirstPage()
	g.state.SetFilter(f)
	g.invalidatePager()
	return g.serverLoad(ctx)
}

// SetSearch updates the quick search once the debounce window closes;
// rapid keystrokes collapse into a single filter change.
func (g *Grid) SetSearch(text string) error {
	if !g.features.Filtering {
		return errors.New(errors.ErrorTypeValidation, "filtering is disabled").
			WithDetail("grid", g.opts.GridName)
	}
	g.mu.Lock()
	g.pendingSearch = text
	g.mu.Unlock()
	g.searchDeb.Call(g.flushSearch)
	return nil
}

func (g *Grid) flushSearch() {
	g.mu.Lock()
	text := g.pendingSearch
	g.mu.Unlock()
	if g.state.View().SearchValue == text {
		return
	}
	g.resetToFirstPage()
	g.state.SetSearch(text)
	g.invalidatePager()
	ctx, _ := g.gen.Current()
	_ = g.serverLoad(ctx)
}

func (g *Grid) resetToFirstPage() {
	p := g.state.Pagination()
	if p.Page != 0 {
		p.Page = 0
		g.state.SetPagination(p)
	}
}

// SetSelection replaces the selection. Commits prune it to rows the
// grid knows.
func (g *Grid) SetSelection(sel state.SelectionModel) error {
	if !g.features.Selection {
		return errors.New(errors.ErrorTypeValidation, "selection is disabled").
			WithDetail("grid", g.opts.GridName)
	}
	g.state.SetSelection(sel)
	return nil
}

// ClearSelection empties the selection.
func (g *Grid) ClearSelection() {
	if g.features.Selection {
		g.state.SetSelection(nil)
	}
}

// Window returns the renderable row range: the perf window when
// virtualized, the full committed set otherwise. Card view always
// renders its full list.
func (g *Grid) Window() perf.Window {
	if !g.virtualizable() {
		g.mu.Lock()
		defer g.mu.Unlock()
		return perf.Window{End: g.windowRowCountLocked()}
	}
	return g.perfCtl.Window()
}

func (g *Grid) virtualizable() bool {
	return g.features.Virtualization && g.viewCtl.Virtualizable()
}

// SetViewport records the viewport geometry; non-positive item height
// falls back to the configured default.
func (g *Grid) SetViewport(heightPx, itemHeightPx int) perf.Window {
	if itemHeightPx <= 0 {
		itemHeightPx = g.cfg.Performance.ItemHeight
	}
	w := g.perfCtl.SetViewport(heightPx, itemHeightPx)
	g.syncPager(w)
	return g.Window()
}

// HandleScroll recomputes the window for a scroll offset. Input is
// throttled; dropped samples return the current window.
func (g *Grid) HandleScroll(scrollTop int) perf.Window {
	if !g.virtualizable() {
		return g.Window()
	}
	w, ok := g.perfCtl.HandleScroll(scrollTop)
	if !ok {
		return g.Window()
	}
	g.syncPager(w)
	return w
}

func (g *Grid) syncPager(w perf.Window) {
	if !g.virtualizable() {
		return
	}
	g.mu.Lock()
	pager := g.pager
	g.mu.Unlock()
	if pager != nil {
		pager.SetWindow(w)
	}
}

func (g *Grid) newPager(pageSize int) *perf.LazyPager {
	return perf.NewLazyPager(perf.LazyConfig{
		GridName:    g.opts.GridName,
		PageSize:    pageSize,
		Overscan:    g.cfg.Performance.Overscan,
		MaxAttempts: g.cfg.Retry.MaxAttempts,
		RetryBase:   g.cfg.Retry.BaseDelay,
		RetryFactor: g.cfg.Retry.Multiplier,
		Fetch:       g.fetchPage,
		OnPage:      g.commitScrolledPage,
	})
}

// fetchPage loads one scroll-driven page and feeds the cache. The
// pager applies its own backoff, so the loader call is not retried
// here.
func (g *Grid) fetchPage(ctx context.Context, page int) ([]loader.Row, error) {
	q := g.query()
	q.Pagination.Page = page
	var res loader.Result
	err := g.tracer.TraceLoad(ctx, "lazy", page, func(ctx context.Context) error {
		r, lerr := g.opts.Loader.Load(ctx, q)
		res = r
		return lerr
	})
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Put(cache.Key(q), res.Rows, res.TotalCount)
	}
	g.mu.Lock()
	if res.TotalCount != g.totalCount {
		g.totalCount = res.TotalCount
		g.perfCtl.SetRowCount(g.windowRowCountLocked())
	}
	g.mu.Unlock()
	return res.Rows, nil
}

// commitScrolledPage installs a lazily fetched page when the user is
// still on it; other pages stay cache-only until visited.
func (g *Grid) commitScrolledPage(page int, rows []loader.Row) {
	if g.state.Pagination().Page != page {
		return
	}
	g.mu.Lock()
	total := g.totalCount
	g.mu.Unlock()
	g.commit(rows, total)
}

// invalidatePager forgets loaded pages after the query changed shape.
func (g *Grid) invalidatePager() {
	g.mu.Lock()
	pager := g.pager
	g.mu.Unlock()
	if pager != nil {
		pager.Reset()
	}
}

// resetPager rebuilds the pager for a new page size; loaded-page
// bookkeeping does not translate between sizes.
func (g *Grid) resetPager(pageSize int) {
	g.mu.Lock()
	old := g.pager
	if old != nil {
		g.pager = g.newPager(pageSize)
	}
	g.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// emit fires the model callbacks a transition maps to. Every callback
// is deduplicated by canonical encoding, so committing an unchanged
// model emits nothing.
func (g *Grid) emit(kind state.EventKind) {
	cb := g.opts.Callbacks
	switch kind {
	case state.EventPagination:
		g.emitPagination()
	case state.EventSort:
		if m := g.state.Sort(); g.emitChanged("sort", m) && cb.OnSortChange != nil {
			cb.OnSortChange(m)
		}
	case state.EventFilter, state.EventSearch:
		g.emitFilter()
	case state.EventSelection:
		if sel := g.state.Selection(); g.emitChanged("selection", sel) && cb.OnSelectionChange != nil {
			cb.OnSelectionChange(sel)
		}
	case state.EventImport, state.EventReset:
		g.emitPagination()
		if m := g.state.Sort(); g.emitChanged("sort", m) && cb.OnSortChange != nil {
			cb.OnSortChange(m)
		}
		g.emitFilter()
		if sel := g.state.Selection(); g.emitChanged("selection", sel) && cb.OnSelectionChange != nil {
			cb.OnSelectionChange(sel)
		}
	}
}

func (g *Grid) emitPagination() {
	cb := g.opts.Callbacks
	p := g.state.Pagination()
	if g.emitChanged("pagination", p) && cb.OnPaginationModelChange != nil {
		cb.OnPaginationModelChange(p)
	}
	if g.emitChanged("page", p.Page) && cb.OnPageChange != nil {
		cb.OnPageChange(p.Page)
	}
	if g.emitChanged("pageSize", p.PageSize) && cb.OnPageSizeChange != nil {
		cb.OnPageSizeChange(p.PageSize)
	}
}

// emitFilter treats quick search as part of the filter: either change
// fires OnFilterChange, identical combinations fire nothing.
func (g *Grid) emitFilter() {
	if g.emitChanged("filter", g.filterPayload()) && g.opts.Callbacks.OnFilterChange != nil {
		g.opts.Callbacks.OnFilterChange(g.state.Filter())
	}
}

func (g *Grid) filterPayload() interface{} {
	return struct {
		Filter state.FilterModel `json:"filter"`
		Search string            `json:"search"`
	}{g.state.Filter(), g.state.View().SearchValue}
}

// emitChanged records the canonical encoding of v under name and
// reports whether it differs from the last emission.
func (g *Grid) emitChanged(name string, v interface{}) bool {
	sig, err := json.MarshalCanonical(v)
	if err != nil {
		return true
	}
	g.emitMu.Lock()
	defer g.emitMu.Unlock()
	if bytes.Equal(g.emitSig[name], sig) {
		return false
	}
	g.emitSig[name] = sig
	return true
}

// seedEmissions primes the dedup signatures with the initial state so
// construction never fires change callbacks.
func (g *Grid) seedEmissions() {
	p := g.state.Pagination()
	g.emitChanged("pagination", p)
	g.emitChanged("page", p.Page)
	g.emitChanged("pageSize", p.PageSize)
	g.emitChanged("sort", g.state.Sort())
	g.emitChanged("filter", g.filterPayload())
	g.emitChanged("selection", g.state.Selection())
}
