// Package loader defines the data-source contract of the grid and the
// adapters that implement it: an in-memory static source, database/sql,
// MongoDB and REST. Server-mode grids call Load with the current query
// (pagination, sort, filter, search) and commit the returned page.
//
// Adapters honour context cancellation. Transient failures are retried
// by LoadWithRetry using exponential backoff.
package loader

import (
	"context"
	"fmt"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/state"
)

// Row is one opaque grid row. Field access goes through untyped keys;
// identity comes from the configured row-ID function.
type Row = map[string]interface{}

// Query describes one data request. Its canonical JSON encoding is the
// grid's cache key.
type Query struct {
	Pagination state.PaginationModel `json:"pagination"`
	Sort       state.SortModel       `json:"sort"`
	Filter     state.FilterModel     `json:"filter"`
	Search     string                `json:"search,omitempty"`
}

// Result is one committed page.
type Result struct {
	Rows       []Row `json:"rows"`
	TotalCount int   `json:"totalCount"`
}

// Loader fetches rows for a query. Implementations must be safe for
// concurrent use and should honour ctx cancellation; results arriving
// after cancellation are discarded by the caller.
type Loader interface {
	Load(ctx context.Context, q Query) (Result, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, q Query) (Result, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, q Query) (Result, error) {
	return f(ctx, q)
}

// DefaultRowID derives a row's identity from its "id" field. Rows
// without one get an empty ID and are treated as unselectable.
func DefaultRowID(row Row) state.RowID {
	v, ok := row["id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	default:
		return fmt.Sprintf("%v", id)
	}
}

// Validate rejects queries no adapter can serve.
func (q Query) Validate() error {
	if q.Pagination.Page < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "page must be >= 0, got %d", q.Pagination.Page)
	}
	if q.Pagination.PageSize <= 0 {
		return errors.Newf(errors.ErrorTypeValidation, "pageSize must be > 0, got %d", q.Pagination.PageSize)
	}
	return nil
}
