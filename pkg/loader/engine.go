package loader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mounirtms/gridcore/pkg/state"
)

// EngineOptions parameterize in-memory query evaluation.
type EngineOptions struct {
	// FieldOrder is the caller's column order, used to break sort ties
	// before the final row-ID tie-break.
	FieldOrder []string

	// RowID derives row identity. Nil means DefaultRowID.
	RowID func(Row) state.RowID

	// SearchFields limits quick search to these fields. Empty means
	// every field.
	SearchFields []string
}

func (o EngineOptions) rowID(row Row) state.RowID {
	if o.RowID != nil {
		return o.RowID(row)
	}
	return DefaultRowID(row)
}

// ApplyQuery evaluates a query against in-memory rows: filter, search,
// sort, then paginate. It returns the requested page and the total
// count after filtering. The input slice is never mutated and the
// result is deterministic for identical inputs.
func ApplyQuery(rows []Row, q Query, opts EngineOptions) ([]Row, int) {
	out := FilterRows(rows, q.Filter)
	out = SearchRows(out, q.Search, opts.SearchFields)
	out = SortRows(out, q.Sort, opts)
	total := len(out)
	return PaginateRows(out, q.Pagination), total
}

// FilterRows returns the rows matching the filter model.
func FilterRows(rows []Row, f state.FilterModel) []Row {
	if f.IsZero() {
		return rows
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if matchFilter(row, f) {
			out = append(out, row)
		}
	}
	return out
}

func matchFilter(row Row, f state.FilterModel) bool {
	if f.Logic == state.FilterOr {
		for _, item := range f.Items {
			if matchItem(row, item) {
				return true
			}
		}
		return false
	}

	for _, item := range f.Items {
		if !matchItem(row, item) {
			return false
		}
	}
	return true
}

func matchItem(row Row, item state.FilterItem) bool {
	value := row[item.Field]

	switch item.Operator {
	case state.OpIsEmpty:
		return value == nil || formatValue(value) == ""
	case state.OpIsNotEmpty:
		return value != nil && formatValue(value) != ""
	case state.OpContains:
		return strings.Contains(foldValue(value), foldValue(item.Value))
	case state.OpStartsWith:
		return strings.HasPrefix(foldValue(value), foldValue(item.Value))
	case state.OpEndsWith:
		return strings.HasSuffix(foldValue(value), foldValue(item.Value))
	case state.OpEquals:
		return equalValues(value, item.Value)
	case state.OpNotEquals:
		return !equalValues(value, item.Value)
	case state.OpIsAnyOf:
		for _, candidate := range anySlice(item.Value) {
			if equalValues(value, candidate) {
				return true
			}
		}
		return false
	case state.OpGt:
		return compareValues(value, item.Value) > 0
	case state.OpGte:
		return compareValues(value, item.Value) >= 0
	case state.OpLt:
		return compareValues(value, item.Value) < 0
	case state.OpLte:
		return compareValues(value, item.Value) <= 0
	default:
		// Unknown operators match nothing rather than everything.
		return false
	}
}

// SearchRows returns the rows whose fields contain the search term,
// case-insensitive. Empty search returns rows unchanged.
func SearchRows(rows []Row, search string, fields []string) []Row {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return rows
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if rowMatchesSearch(row, term, fields) {
			out = append(out, row)
		}
	}
	return out
}

func rowMatchesSearch(row Row, term string, fields []string) bool {
	if len(fields) > 0 {
		for _, f := range fields {
			if strings.Contains(foldValue(row[f]), term) {
				return true
			}
		}
		return false
	}
	for _, v := range row {
		if strings.Contains(foldValue(v), term) {
			return true
		}
	}
	return false
}

// SortRows returns a sorted copy of rows. Sort items apply in order;
// remaining ties break by the caller's column order, then by row ID
// ascending, so equal inputs always produce the same output order.
func SortRows(rows []Row, model state.SortModel, opts EngineOptions) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		for _, item := range model {
			c := compareValues(a[item.Field], b[item.Field])
			if c == 0 {
				continue
			}
			if item.Direction == state.SortDesc {
				return c > 0
			}
			return c < 0
		}

		for _, f := range opts.FieldOrder {
			if c := compareValues(a[f], b[f]); c != 0 {
				return c < 0
			}
		}

		return opts.rowID(a) < opts.rowID(b)
	})

	return out
}

// PaginateRows slices the requested page out of rows. Pages past the
// end return an empty slice.
func PaginateRows(rows []Row, p state.PaginationModel) []Row {
	if p.PageSize <= 0 {
		return rows
	}
	start := p.Page * p.PageSize
	if start < 0 || start >= len(rows) {
		return []Row{}
	}
	end := start + p.PageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// compareValues orders two cell values: nil first, numbers numerically,
// times chronologically, bools false-first, everything else as folded
// strings with a byte-order tie-break.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if fa, ok := numericValue(a); ok {
		if fb, ok := numericValue(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}

	if ta, ok := timeValue(a); ok {
		if tb, ok := timeValue(b); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case !ba && bb:
				return -1
			case ba && !bb:
				return 1
			default:
				return 0
			}
		}
	}

	sa, sb := formatValue(a), formatValue(b)
	la, lb := strings.ToLower(sa), strings.ToLower(sb)
	if la != lb {
		return strings.Compare(la, lb)
	}
	return strings.Compare(sa, sb)
}

func equalValues(a, b interface{}) bool {
	if fa, ok := numericValue(a); ok {
		if fb, ok := numericValue(b); ok {
			return fa == fb
		}
	}
	return foldValue(a) == foldValue(b)
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func timeValue(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func formatValue(v interface{}) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func foldValue(v interface{}) string {
	return strings.ToLower(formatValue(v))
}

func anySlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case []string:
		out := make([]interface{}, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case nil:
		return nil
	default:
		return []interface{}{v}
	}
}
