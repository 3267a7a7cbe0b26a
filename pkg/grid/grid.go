// Package grid assembles the column pipeline, state store, query
// cache, performance controller, action registry and view controller
// behind one facade. A Grid owns its components and exposes the
// imperative handle the caller drives.
package grid

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/internal/sched"
	"github.com/mounirtms/gridcore/pkg/actions"
	"github.com/mounirtms/gridcore/pkg/cache"
	"github.com/mounirtms/gridcore/pkg/column"
	"github.com/mounirtms/gridcore/pkg/config"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/metrics"
	"github.com/mounirtms/gridcore/pkg/observability"
	"github.com/mounirtms/gridcore/pkg/perf"
	"github.com/mounirtms/gridcore/pkg/state"
	"github.com/mounirtms/gridcore/pkg/view"
)

// Grid is one configured grid instance. All methods are safe for
// concurrent use. State writes never happen while mu is held; the
// store notifies synchronously and its subscribers re-enter the grid.
type Grid struct {
	opts     Options
	cfg      *config.Config
	features Features
	mode     PaginationMode

	state    *state.Store
	cache    *cache.Cache
	registry *actions.Registry
	perfCtl  *perf.Controller
	viewCtl  *view.Controller
	pipeline *column.Pipeline
	renderer *column.Renderer

	retry      *loader.RetryPolicy
	engineOpts loader.EngineOptions

	mu            sync.Mutex
	columns       []column.Descriptor
	settings      column.Settings
	rows          []loader.Row
	totalCount    int
	allRows       []loader.Row
	rowIndex      map[state.RowID]loader.Row
	hiddenByWidth map[string]bool
	pendingSearch string
	pendingWidth  int
	pager         *perf.LazyPager
	closed        bool

	emitMu  sync.Mutex
	emitSig map[string][]byte

	searchDeb *sched.Debouncer
	resizeDeb *sched.Debouncer

	gen      *sched.Generation
	loadGate *sched.Serial

	stopSampling func()
	unsubscribe  func()

	collector *metrics.Collector
	tracer    *observability.GridTracer
	log       *zap.Logger
}

// New builds a grid from options. Construction fails only on
// configuration errors; data problems such as duplicate column fields
// degrade to a usable fallback and surface through OnError.
func New(opts Options) (*Grid, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid grid config").
			WithDetail("grid", opts.GridName)
	}
	if err := opts.validate(cfg); err != nil {
		return nil, err
	}

	features := DefaultFeatures()
	if opts.Features != nil {
		features = *opts.Features
	}

	retry := loader.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay > 0 {
		retry.InitialDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.Multiplier > 0 {
		retry.Multiplier = cfg.Retry.Multiplier
	}

	g := &Grid{
		opts:          opts,
		cfg:           cfg,
		features:      features,
		mode:          opts.mode(),
		pipeline:      column.NewPipeline(),
		retry:         retry,
		rowIndex:      map[state.RowID]loader.Row{},
		hiddenByWidth: map[string]bool{},
		emitSig:       map[string][]byte{},
		searchDeb:     sched.NewDebouncer(cfg.Debounce.Search),
		resizeDeb:     sched.NewDebouncer(cfg.Debounce.Resize),
		gen:           sched.NewGeneration(),
		loadGate:      sched.NewSerial(),
		collector:     metrics.NewCollector(opts.GridName),
		tracer:        observability.NewGridTracer(opts.GridName),
		log:           logger.WithGrid(opts.GridName).Named("grid"),
	}
	g.renderer = column.NewRenderer(g.emitError)
	g.engineOpts = loader.EngineOptions{
		FieldOrder:   dataFields(opts.Columns),
		RowID:        g.rowID,
		SearchFields: dataFields(opts.Columns),
	}

	g.state = state.NewStore(state.Config{
		GridName: opts.GridName,
		Storage:  opts.Storage,
		Defaults: state.Defaults{
			PageSize: opts.pageSize(cfg),
			Density:  state.Density(cfg.Defaults.Density),
			ViewMode: state.ViewMode(cfg.Defaults.ViewMode),
		},
		SaveDelay: cfg.Debounce.Save,
	})

	if opts.Storage != nil {
		settings, err := column.LoadSettings(opts.Storage, opts.GridName)
		if err != nil {
			g.log.Warn("failed to load column settings, using defaults", zap.Error(err))
			g.emitError(err)
		}
		g.settings = settings
	}

	cols, err := g.pipeline.Build(g.buildInput())
	if err != nil {
		g.emitError(err)
	}
	g.columns = cols

	if features.Cache {
		g.cache = cache.New(opts.GridName, cache.Config{
			MaxEntries: cfg.Cache.MaxEntries,
			MaxBytes:   cfg.Cache.MaxBytes,
			TTL:        cfg.Cache.TTL,
		})
	}

	virtThreshold := cfg.Performance.VirtualizationThreshold
	if !features.Virtualization {
		virtThreshold = math.MaxInt
	}
	g.perfCtl = perf.NewController(perf.Config{
		GridName:                opts.GridName,
		VirtualizationThreshold: virtThreshold,
		Overscan:                cfg.Performance.Overscan,
		MemoryWarnMB:            cfg.Performance.MemoryWarnMB,
		MemoryCriticalMB:        cfg.Performance.MemoryCriticalMB,
		FPSFloor:                cfg.Performance.FPSWarn,
		RenderBudget:            cfg.Performance.RenderBudget,
		ScrollInterval:          cfg.Debounce.ScrollThrottle,
		OnWarning:               opts.Callbacks.OnPerformanceWarning,
	})

	g.viewCtl = view.NewController(view.Config{
		GridName:         opts.GridName,
		State:            g.state,
		Columns:          g.VisibleColumns,
		RowID:            g.rowID,
		Sink:             g.emitError,
		OnRowClick:       opts.Callbacks.OnRowClick,
		OnRowDoubleClick: opts.Callbacks.OnRowDoubleClick,
	})

	g.registry = actions.NewRegistry(actions.Config{
		GridName:    opts.GridName,
		ContextFunc: g.actionContext,
	})
	if err := g.registry.RegisterAll(g.builtinActions()...); err != nil {
		return nil, err
	}
	if err := g.registry.RegisterAll(opts.CustomActions...); err != nil {
		return nil, err
	}

	if g.mode == PaginationServer && features.Virtualization && opts.Loader != nil {
		g.pager = g.newPager(g.state.Pagination().PageSize)
	}

	switch g.mode {
	case PaginationClient:
		g.allRows = opts.Data
		g.recompute()
	case PaginationServer:
		if opts.Data != nil {
			total := opts.TotalCount
			if total <= 0 {
				total = len(opts.Data)
			}
			g.CommitRows(opts.Data, total)
		} else if opts.Loader != nil {
			ctx, _ := g.gen.Current()
			_ = g.load(ctx)
		}
	}

	g.seedEmissions()
	g.unsubscribe = g.state.Subscribe(g.onStateEvent)

	if interval := cfg.Performance.MemorySampleInterval; interval > 0 {
		g.stopSampling = g.perfCtl.StartMemorySampling(interval)
	}

	g.log.Info("grid ready",
		zap.String("mode", string(g.mode)),
		zap.Int("columns", len(g.columns)),
		zap.Int("rows", len(g.Rows())))
	return g, nil
}

// Close unsubscribes from the store, stops background work and flushes
// the pending state save. Safe to call repeatedly.
func (g *Grid) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	pager := g.pager
	g.mu.Unlock()

	if g.unsubscribe != nil {
		g.unsubscribe()
	}
	g.searchDeb.Stop()
	g.resizeDeb.Stop()
	if pager != nil {
		pager.Close()
	}
	g.gen.Cancel()
	if g.stopSampling != nil {
		g.stopSampling()
	}
	g.state.Close()
	g.log.Info("grid closed")
	return nil
}

// Name returns the grid name.
func (g *Grid) Name() string { return g.opts.GridName }

// Rows returns the committed page. Shared with the grid; treat as
// read-only.
func (g *Grid) Rows() []loader.Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rows
}

// TotalCount returns the row count after filtering, across all pages.
func (g *Grid) TotalCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalCount
}

// Columns returns the effective column set: structural order, persisted
// settings and capabilities applied.
func (g *Grid) Columns() []column.Descriptor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.columns
}

// VisibleColumns filters the effective set by persisted visibility and
// the active responsive band.
func (g *Grid) VisibleColumns() []column.Descriptor {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]column.Descriptor, 0, len(g.columns))
	for _, c := range g.columns {
		if c.Hidden || g.hiddenByWidth[c.Field] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Pagination returns the current pagination model.
func (g *Grid) Pagination() state.PaginationModel { return g.state.Pagination() }

// Sort returns the current sort model.
func (g *Grid) Sort() state.SortModel { return g.state.Sort() }

// Filter returns the current filter model.
func (g *Grid) Filter() state.FilterModel { return g.state.Filter() }

// Selection returns the current selection.
func (g *Grid) Selection() state.SelectionModel { return g.state.Selection() }

// View returns the presentation state: density, view mode, filter
// panel visibility and the committed search value.
func (g *Grid) View() state.ViewState { return g.state.View() }

// PageSizeOptions returns the offered page sizes.
func (g *Grid) PageSizeOptions() []int { return g.opts.pageSizes(g.cfg) }

// SelectedRows resolves the selection to rows the grid has seen; IDs
// without a loaded row are skipped.
func (g *Grid) SelectedRows() []loader.Row {
	sel := g.state.Selection()
	g.mu.Lock()
	defer g.mu.Unlock()
	rows := make([]loader.Row, 0, len(sel))
	for _, id := range sel {
		if row, ok := g.rowIndex[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// ExportState snapshots the full grid state for host-side persistence.
func (g *Grid) ExportState() (state.Snapshot, error) {
	return g.state.Export()
}

// ImportState applies a snapshot as one transition and rebuilds the
// visible page.
func (g *Grid) ImportState(snap state.Snapshot) error {
	if err := g.state.Import(snap); err != nil {
		return err
	}
	g.invalidatePager()
	ctx, _ := g.gen.Current()
	return g.serverLoad(ctx)
}

// ResetState restores factory defaults in one transition.
func (g *Grid) ResetState() error {
	g.state.Reset()
	g.invalidatePager()
	ctx, _ := g.gen.Current()
	return g.serverLoad(ctx)
}

// ClearCache drops every cached page and cancels in-flight loads.
// Idempotent.
func (g *Grid) ClearCache() {
	if g.cache != nil {
		g.cache.Clear()
	}
	g.gen.Advance()
	g.invalidatePager()
}

// InvalidateCache drops cached entries matching pred and returns how
// many were removed.
func (g *Grid) InvalidateCache(pred func(key string, e *cache.Entry) bool) int {
	if g.cache == nil {
		return 0
	}
	return g.cache.Invalidate(pred)
}

// CacheStats reports cache counters; zero value when caching is off.
func (g *Grid) CacheStats() cache.Stats {
	if g.cache == nil {
		return cache.Stats{}
	}
	return g.cache.Stats()
}

// Refresh clears the cache and rebuilds the visible page through the
// registered refresh action. Concurrent calls collapse into one.
func (g *Grid) Refresh(ctx context.Context) error {
	return g.registry.Invoke(ctx, actions.ActionRefresh)
}

// Actions exposes the registry for direct invocation and listing.
func (g *Grid) Actions() *actions.Registry { return g.registry }

// InvokeAction runs a registered action, serialized per action ID.
func (g *Grid) InvokeAction(ctx context.Context, id string) error {
	return g.registry.Invoke(ctx, id)
}

// InvokeRowAction runs a registered action against one visible row.
func (g *Grid) InvokeRowAction(ctx context.Context, id string, rowIndex int) error {
	row, err := g.rowAt(rowIndex)
	if err != nil {
		return err
	}
	return g.registry.InvokeRow(ctx, id, row)
}

// ToolbarActions lists the actions the toolbar surfaces, in
// registration order or the configured subset order.
func (g *Grid) ToolbarActions() []actions.Action {
	if !g.opts.Toolbar.Enabled {
		return nil
	}
	return g.pickActions(g.opts.Toolbar.Actions)
}

// ContextMenuActions lists the actions the row context menu surfaces.
func (g *Grid) ContextMenuActions() []actions.Action {
	if !g.opts.ContextMenu.Enabled {
		return nil
	}
	return g.pickActions(g.opts.ContextMenu.Actions)
}

// FloatingAction returns the action bound to the floating button.
func (g *Grid) FloatingAction() (actions.Action, bool) {
	fa := g.opts.FloatingAction
	if !fa.Enabled || fa.ActionID == "" {
		return actions.Action{}, false
	}
	return g.registry.Get(fa.ActionID)
}

func (g *Grid) pickActions(ids []string) []actions.Action {
	if len(ids) == 0 {
		return g.registry.Registered()
	}
	out := make([]actions.Action, 0, len(ids))
	for _, id := range ids {
		if a, ok := g.registry.Get(id); ok {
			out = append(out, a)
		}
	}
	return out
}

// ViewMode returns the active presentation mode.
func (g *Grid) ViewMode() state.ViewMode { return g.viewCtl.Mode() }

// SetViewMode switches between table and card presentation in one
// state write.
func (g *Grid) SetViewMode(mode state.ViewMode) error {
	return g.viewCtl.SetMode(mode)
}

// ToggleFilters flips the filter panel visibility.
func (g *Grid) ToggleFilters() { g.state.ToggleFilters() }

// SetDensity switches the row-height preset.
func (g *Grid) SetDensity(d state.Density) { g.state.SetDensity(d) }

// OpenDetails builds the details overlay for a visible row, formatted
// with the effective column metadata.
func (g *Grid) OpenDetails(rowIndex int) (view.Details, error) {
	row, err := g.rowAt(rowIndex)
	if err != nil {
		return view.Details{}, err
	}
	return g.viewCtl.OpenDetails(row, rowIndex), nil
}

// Details returns the open overlay, or nil.
func (g *Grid) Details() *view.Details { return g.viewCtl.Details() }

// CloseDetails dismisses the overlay. Idempotent.
func (g *Grid) CloseDetails() { g.viewCtl.CloseDetails() }

// HandleRowClick forwards a row click to the caller's callback.
func (g *Grid) HandleRowClick(rowIndex int) error {
	row, err := g.rowAt(rowIndex)
	if err != nil {
		return err
	}
	g.viewCtl.HandleRowClick(row, rowIndex)
	return nil
}

// HandleRowDoubleClick forwards a row double click.
func (g *Grid) HandleRowDoubleClick(rowIndex int) error {
	row, err := g.rowAt(rowIndex)
	if err != nil {
		return err
	}
	g.viewCtl.HandleRowDoubleClick(row, rowIndex)
	return nil
}

// StartRender marks the start of a render pass.
func (g *Grid) StartRender() { g.perfCtl.StartRender() }

// EndRender closes the render pass; budget breaches are reported, not
// fatal.
func (g *Grid) EndRender() time.Duration { return g.perfCtl.EndRender() }

// RecordFrame feeds the frame-rate tracker.
func (g *Grid) RecordFrame(at time.Time) { g.perfCtl.RecordFrame(at) }

// FPS returns the rolling mean frame rate.
func (g *Grid) FPS() float64 { return g.perfCtl.FPS() }

func (g *Grid) rowAt(index int) (loader.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.rows) {
		return nil, errors.Newf(errors.ErrorTypeValidation, "row index %d out of range", index).
			WithDetail("grid", g.opts.GridName).
			WithDetail("rows", len(g.rows))
	}
	return g.rows[index], nil
}

func (g *Grid) rowID(row loader.Row) state.RowID {
	if g.opts.GetRowID != nil {
		return g.opts.GetRowID(row)
	}
	return loader.DefaultRowID(row)
}

func (g *Grid) buildInput() column.BuildInput {
	return column.BuildInput{
		GridName:     g.opts.GridName,
		Columns:      g.opts.Columns,
		Pre:          g.opts.PreColumns,
		End:          g.opts.EndColumns,
		RowNumber:    g.opts.RowNumber,
		Settings:     g.settings,
		Capabilities: g.features.capabilities(),
		Translate:    g.opts.Translate,
	}
}

// builtinActions assembles the toolbar built-ins. Refresh always
// rebuilds the page; the caller's OnRefresh runs first when set.
func (g *Grid) builtinActions() []actions.Action {
	cb := g.opts.Callbacks
	h := actions.Hooks{
		OnAdd:    cb.OnAdd,
		OnEdit:   cb.OnEdit,
		OnDelete: cb.OnDelete,
		OnSync:   cb.OnSync,
		OnImport: cb.OnImport,
	}
	if g.features.Cache {
		h.ClearCache = g.ClearCache
	}
	refresh := cb.OnRefresh
	h.OnRefresh = func(ctx context.Context, actx actions.Context) error {
		if refresh != nil {
			if err := refresh(ctx, actx); err != nil {
				return err
			}
		}
		return g.reload(ctx)
	}
	switch {
	case cb.OnExport != nil:
		h.OnExport = cb.OnExport
	case g.opts.ExportSink != nil:
		sink, format := g.opts.ExportSink, g.opts.exportFormat()
		h.OnExport = func(context.Context, actions.Context) error {
			return g.Export(sink, format)
		}
	}
	return actions.Builtins(h)
}

// actionContext snapshots what an invocation sees.
func (g *Grid) actionContext() actions.Context {
	g.mu.Lock()
	total := g.totalCount
	g.mu.Unlock()
	p := g.state.Pagination()
	return actions.Context{
		GridName:     g.opts.GridName,
		SelectedRows: g.SelectedRows(),
		Sort:         g.state.Sort(),
		Filter:       g.state.Filter(),
		Data: map[string]interface{}{
			"page":       p.Page,
			"pageSize":   p.PageSize,
			"totalCount": total,
			"search":     g.state.View().SearchValue,
		},
	}
}

// emitError surfaces a recoverable error to the caller. Never called
// while mu is held.
func (g *Grid) emitError(err error) {
	if err == nil {
		return
	}
	if cb := g.opts.Callbacks.OnError; cb != nil {
		cb(err)
	}
}

func dataFields(cols []column.Descriptor) []string {
	fields := make([]string, 0, len(cols))
	for _, c := range cols {
		fields = append(fields, c.Field)
	}
	return fields
}
