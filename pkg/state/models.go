// Package state holds the view model of one grid: pagination, sort,
// filter, selection and view settings. A Store commits writes
// atomically, notifies subscribers once per commit, and persists a
// versioned snapshot through pkg/storage with debounced writes.
package state

// RowID identifies one row across loads. Callers derive it from their
// data via the grid's GetRowID option.
type RowID = string

// PaginationModel is the current page window. Page is 0-based.
type PaginationModel struct {
	Page     int `json:"page" yaml:"page"`
	PageSize int `json:"pageSize" yaml:"pageSize"`
}

// SortDirection orders a sorted column.
type SortDirection string

const (
	// SortAsc sorts ascending
	SortAsc SortDirection = "asc"
	// SortDesc sorts descending
	SortDesc SortDirection = "desc"
)

// SortItem is one entry of an ordered multi-column sort.
type SortItem struct {
	Field     string        `json:"field" yaml:"field"`
	Direction SortDirection `json:"direction" yaml:"direction"`
}

// SortModel is the ordered list of sort items. Earlier items win;
// remaining ties are broken by caller column order, then row ID.
type SortModel []SortItem

// Clone returns a copy of the sort model.
func (s SortModel) Clone() SortModel {
	if s == nil {
		return nil
	}
	out := make(SortModel, len(s))
	copy(out, s)
	return out
}

// FilterLogic combines filter items.
type FilterLogic string

const (
	// FilterAnd requires all items to match
	FilterAnd FilterLogic = "and"
	// FilterOr requires at least one item to match
	FilterOr FilterLogic = "or"
)

// Filter operators understood by the client-mode engine. Column type
// drives which operators a caller offers; the engine accepts any of
// these against any field.
const (
	OpContains   = "contains"
	OpEquals     = "equals"
	OpNotEquals  = "notEquals"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
	OpIsEmpty    = "isEmpty"
	OpIsNotEmpty = "isNotEmpty"
	OpIsAnyOf    = "isAnyOf"
	OpGt         = "gt"
	OpGte        = "gte"
	OpLt         = "lt"
	OpLte        = "lte"
)

// FilterItem is one field predicate.
type FilterItem struct {
	Field    string      `json:"field" yaml:"field"`
	Operator string      `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// FilterModel is the set of filter items plus the root logic.
type FilterModel struct {
	Items []FilterItem `json:"items" yaml:"items"`
	Logic FilterLogic  `json:"logic" yaml:"logic"`
}

// Clone returns a copy of the filter model.
func (f FilterModel) Clone() FilterModel {
	out := FilterModel{Logic: f.Logic}
	if f.Items != nil {
		out.Items = make([]FilterItem, len(f.Items))
		copy(out.Items, f.Items)
	}
	return out
}

// IsZero reports whether the model filters nothing.
func (f FilterModel) IsZero() bool {
	return len(f.Items) == 0
}

// SelectionModel is the ordered set of selected row IDs. Commits prune
// it to IDs present in the committed rows.
type SelectionModel []RowID

// Clone returns a copy of the selection.
func (s SelectionModel) Clone() SelectionModel {
	if s == nil {
		return nil
	}
	out := make(SelectionModel, len(s))
	copy(out, s)
	return out
}

// Contains reports whether id is selected.
func (s SelectionModel) Contains(id RowID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Density is the row density of the rendered grid.
type Density string

const (
	// DensityCompact renders the tightest rows
	DensityCompact Density = "compact"
	// DensityStandard is the default density
	DensityStandard Density = "standard"
	// DensityComfortable renders the loosest rows
	DensityComfortable Density = "comfortable"
)

// ViewMode selects the presentation of committed rows.
type ViewMode string

const (
	// ViewTable renders rows as a table
	ViewTable ViewMode = "table"
	// ViewCard renders rows as cards
	ViewCard ViewMode = "card"
)

// ViewState groups the presentation toggles.
type ViewState struct {
	Density        Density  `json:"density" yaml:"density"`
	ViewMode       ViewMode `json:"viewMode" yaml:"viewMode"`
	FiltersVisible bool     `json:"filtersVisible" yaml:"filtersVisible"`
	SearchValue    string   `json:"searchValue" yaml:"searchValue"`
}

// SchemaVersion is the persisted snapshot schema. Snapshots carrying a
// different version are ignored and the store starts fresh.
const SchemaVersion = 1

// Snapshot is the serialisable form of a store. Export/Import
// round-trip through it; the persisted blob is its JSON encoding.
type Snapshot struct {
	Version    int             `json:"v"`
	GridName   string          `json:"gridName"`
	Pagination PaginationModel `json:"pagination"`
	Sort       SortModel       `json:"sort"`
	Filter     FilterModel     `json:"filter"`
	Selection  SelectionModel  `json:"selection"`
	View       ViewState       `json:"view"`
}
