package grid

import (
	"context"
	"io"

	"github.com/mounirtms/gridcore/pkg/actions"
	"github.com/mounirtms/gridcore/pkg/column"
	"github.com/mounirtms/gridcore/pkg/config"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/perf"
	"github.com/mounirtms/gridcore/pkg/state"
	"github.com/mounirtms/gridcore/pkg/storage"
)

// PaginationMode selects where pages are computed.
type PaginationMode string

const (
	// PaginationClient computes sort, filter, search and pagination
	// in-process over the full dataset.
	PaginationClient PaginationMode = "client"

	// PaginationServer delegates page computation to a Loader or to
	// caller callbacks that push pages back via CommitRows.
	PaginationServer PaginationMode = "server"
)

// ExportFormat selects the Export encoding.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// Features gates grid capabilities. A disabled feature rejects the
// matching mutators and zeroes the per-column flags.
type Features struct {
	Cache            bool
	I18n             bool
	RTL              bool
	Selection        bool
	Sorting          bool
	Filtering        bool
	ColumnReordering bool
	ColumnResizing   bool
	Virtualization   bool
}

// DefaultFeatures enables everything except internationalisation and
// right-to-left layout.
func DefaultFeatures() Features {
	return Features{
		Cache:            true,
		Selection:        true,
		Sorting:          true,
		Filtering:        true,
		ColumnReordering: true,
		ColumnResizing:   true,
		Virtualization:   true,
	}
}

func (f Features) capabilities() column.Capabilities {
	return column.Capabilities{
		Sorting:    f.Sorting,
		Filtering:  f.Filtering,
		Resizing:   f.ColumnResizing,
		Reordering: f.ColumnReordering,
		I18n:       f.I18n,
	}
}

// ToolbarConfig selects which registered actions surface on the
// toolbar. An empty Actions list surfaces all of them in registration
// order.
type ToolbarConfig struct {
	Enabled bool
	Actions []string
}

// ContextMenuConfig selects which registered actions surface on the
// row context menu.
type ContextMenuConfig struct {
	Enabled bool
	Actions []string
}

// FloatingActionConfig binds the floating button to one action.
type FloatingActionConfig struct {
	Enabled  bool
	ActionID string
}

// Callbacks notify the caller of grid transitions. All are optional.
// Model callbacks fire once per distinct value; committing the same
// model twice emits nothing the second time.
type Callbacks struct {
	OnRefresh func(ctx context.Context, actx actions.Context) error
	OnAdd     func(ctx context.Context, actx actions.Context) error
	OnEdit    func(ctx context.Context, actx actions.Context) error
	OnDelete  func(ctx context.Context, actx actions.Context) error
	OnSync    func(ctx context.Context, actx actions.Context) error
	OnExport  func(ctx context.Context, actx actions.Context) error
	OnImport  func(ctx context.Context, actx actions.Context) error

	OnRowClick       func(row loader.Row, index int)
	OnRowDoubleClick func(row loader.Row, index int)

	OnSelectionChange       func(sel state.SelectionModel)
	OnSortChange            func(m state.SortModel)
	OnFilterChange          func(f state.FilterModel)
	OnPageChange            func(page int)
	OnPageSizeChange        func(size int)
	OnPaginationModelChange func(p state.PaginationModel)

	// OnError receives recoverable errors: persistence failures,
	// loader failures after retries, contained render panics.
	OnError func(err error)

	// OnPerformanceWarning receives memory, frame-rate and render
	// budget warnings.
	OnPerformanceWarning func(w perf.Warning)
}

// Options configures one grid.
type Options struct {
	// GridName namespaces persistence, metrics and logs. Required.
	GridName string

	// Columns are the caller's data columns. PreColumns and EndColumns
	// are framework columns placed around them; RowNumber prepends the
	// synthetic row-number column.
	Columns    []column.Descriptor
	PreColumns []column.Descriptor
	EndColumns []column.Descriptor
	RowNumber  bool

	// Data seeds client mode with the full dataset, or server mode
	// with a preloaded first page.
	Data       []loader.Row
	TotalCount int

	// GetRowID derives row identity; nil uses the "id" field.
	GetRowID func(row loader.Row) state.RowID

	// PaginationMode defaults to client.
	PaginationMode PaginationMode

	// DefaultPageSize and PageSizeOptions override the configured
	// defaults. DefaultPageSize must be one of the offered sizes.
	DefaultPageSize int
	PageSizeOptions []int

	// Features gates capabilities; nil means DefaultFeatures.
	Features *Features

	Toolbar        ToolbarConfig
	ContextMenu    ContextMenuConfig
	FloatingAction FloatingActionConfig

	// CustomActions register after the built-ins. IDs colliding with a
	// built-in fail construction.
	CustomActions []actions.Action

	// Translate resolves header keys; nil means identity.
	Translate column.TranslateFunc

	Callbacks Callbacks

	// Loader pulls pages in server mode. Server grids without a Loader
	// must wire OnPaginationModelChange or OnPageChange and push pages
	// back via CommitRows.
	Loader loader.Loader

	// Storage persists state and column settings across sessions. Nil
	// keeps everything in memory.
	Storage storage.Store

	// Config overrides the runtime tuning; nil means config.Default.
	Config *config.Config

	// PreserveSelectionOnReload keeps the selection across server
	// reloads instead of pruning it to the committed page.
	PreserveSelectionOnReload bool

	// ExportSink receives the built-in export action's output when no
	// OnExport callback is set.
	ExportSink   io.Writer
	ExportFormat ExportFormat
}

func (o *Options) validate(cfg *config.Config) error {
	if o.GridName == "" {
		return errors.New(errors.ErrorTypeConfig, "grid name is required")
	}
	switch o.PaginationMode {
	case "", PaginationClient:
	case PaginationServer:
		if o.Loader == nil &&
			o.Callbacks.OnPaginationModelChange == nil &&
			o.Callbacks.OnPageChange == nil {
			return errors.New(errors.ErrorTypeConfig,
				"server pagination needs a loader or pagination callbacks").
				WithDetail("grid", o.GridName)
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown pagination mode %q", o.PaginationMode).
			WithDetail("grid", o.GridName)
	}
	if o.DefaultPageSize > 0 {
		offered := o.PageSizeOptions
		if len(offered) == 0 {
			offered = cfg.Defaults.PageSizeOptions
		}
		if !containsInt(offered, o.DefaultPageSize) {
			return errors.Newf(errors.ErrorTypeConfig,
				"default page size %d is not an offered page size", o.DefaultPageSize).
				WithDetail("grid", o.GridName)
		}
	}
	switch o.ExportFormat {
	case "", FormatCSV, FormatJSON:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown export format %q", o.ExportFormat).
			WithDetail("grid", o.GridName)
	}
	return nil
}

func (o *Options) mode() PaginationMode {
	if o.PaginationMode == "" {
		return PaginationClient
	}
	return o.PaginationMode
}

func (o *Options) pageSize(cfg *config.Config) int {
	if o.DefaultPageSize > 0 {
		return o.DefaultPageSize
	}
	return cfg.Defaults.PageSize
}

func (o *Options) pageSizes(cfg *config.Config) []int {
	if len(o.PageSizeOptions) > 0 {
		return o.PageSizeOptions
	}
	return cfg.Defaults.PageSizeOptions
}

func (o *Options) exportFormat() ExportFormat {
	if o.ExportFormat == "" {
		return FormatCSV
	}
	return o.ExportFormat
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
