// Package gridcore provides a headless data-grid engine: one core that
// owns grid state, data loading, caching, virtualization and actions,
// so every surface of an application drives identical grid behaviour
// through one facade.
//
// The engine is UI-agnostic. It computes what a grid should show and
// tells the host when that changed; rendering the result is the host's
// concern. The same grid definition works over an in-memory dataset
// (client mode) or a paging backend (server mode) without the caller
// changing how it reads the grid.
//
// # Architecture
//
// A Grid composes six cooperating parts:
//
// 1. State store: pagination, sort, filter, selection and view state
// move through serialized transitions with debounced persistence and
// schema-versioned snapshots.
//
// 2. Column pipeline: framework and caller columns are composed,
// overlaid with persisted user settings, reordered and capability
// gated into the effective column set.
//
// 3. Loaders: pluggable page sources. Static (in-memory), SQL
// (database/sql), MongoDB and REST adapters push sort, filter and
// pagination down to the backend, with retry and backoff.
//
// 4. Query cache: an LRU over query results keyed by the canonical
// query encoding, bounded by entries, bytes and TTL.
//
// 5. Performance controller: virtualization windows, scroll
// throttling, frame-rate and render-budget tracking, and memory
// pressure responses that shrink the window before the host degrades.
//
// 6. Action registry: built-in and custom grid actions with enablement
// rules, conflict gating and invocation tracing.
//
// # Quick Start
//
// Build a client-mode grid over rows you already have:
//
//	import (
//	    "context"
//
//	    "github.com/mounirtms/gridcore/pkg/column"
//	    "github.com/mounirtms/gridcore/pkg/grid"
//	    "github.com/mounirtms/gridcore/pkg/loader"
//	    "github.com/mounirtms/gridcore/pkg/state"
//	)
//
//	g, err := grid.New(grid.Options{
//	    GridName: "orders",
//	    Columns: []column.Descriptor{
//	        {Field: "sku", HeaderName: "SKU"},
//	        {Field: "price", HeaderName: "Price", Type: column.TypeNumber},
//	    },
//	    Data: rows, // []loader.Row
//	})
//	if err != nil {
//	    return err
//	}
//	defer g.Close()
//
//	err = g.SetSort(context.Background(), state.SortModel{
//	    {Field: "price", Direction: state.SortDesc},
//	})
//	page := g.Rows() // current page under the committed state
//
// Server mode swaps Data for a Loader and leaves the rest unchanged:
//
//	g, err := grid.New(grid.Options{
//	    GridName:       "orders",
//	    PaginationMode: grid.PaginationServer,
//	    Loader:         sqlLoader, // loader.NewSQL(db, ...)
//	    Columns:        cols,
//	})
//
// # Key Packages
//
//	pkg/grid        - Facade assembling the engine behind one handle
//	pkg/state       - Versioned grid state with debounced persistence
//	pkg/column      - Column pipeline, rendering and persisted settings
//	pkg/loader      - Static, SQL, Mongo and REST page sources
//	pkg/cache       - Bounded LRU over query results
//	pkg/perf        - Virtualization windows and performance guardrails
//	pkg/actions     - Action registry with conflict gating
//	pkg/view        - Table/card view modes and row detail panes
//	pkg/storage     - Key-value persistence (memory, compressed files)
//	pkg/config      - Unified tuning shared by every grid instance
//	pkg/errors      - Typed error handling
//	pkg/logger      - Structured logging
//	pkg/metrics     - Prometheus collectors
//
// # Persistence
//
// Grid state survives restarts when Options.Storage is set. Snapshots
// carry a schema version; unknown versions are discarded rather than
// misread. State also round-trips through compressed streams via
// Grid.ExportStateTo and Grid.ImportStateFrom for transfer between
// hosts.
//
// # Tooling
//
// The gridctl binary exercises the engine from the command line:
//
//	gridctl demo --rows 100 --sort price:desc --cache-stats
//	gridctl state dump --grid orders
//	gridctl bench --rows 10000
package gridcore
