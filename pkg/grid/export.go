package grid

import (
	"encoding/csv"
	"io"

	"github.com/mounirtms/gridcore/pkg/column"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/json"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/state"
)

// Export writes the grid's rows under the current sort and filter.
// Client grids export the full filtered set across pages; server grids
// export the committed page. Hidden, synthetic and action columns are
// skipped. CSV carries the formatted cell text, JSON the raw values.
func (g *Grid) Export(w io.Writer, format ExportFormat) error {
	cols := g.exportColumns()
	rows := g.exportRows()
	switch format {
	case FormatCSV, "":
		return g.exportCSV(w, cols, rows)
	case FormatJSON:
		return g.exportJSON(w, cols, rows)
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown export format %q", format).
			WithDetail("grid", g.opts.GridName)
	}
}

func (g *Grid) exportColumns() []column.Descriptor {
	visible := g.VisibleColumns()
	out := make([]column.Descriptor, 0, len(visible))
	for _, c := range visible {
		if c.Field == column.RowNumberField || c.Type == column.TypeActions {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (g *Grid) exportRows() []loader.Row {
	if g.mode == PaginationClient {
		q := g.query()
		q.Pagination = state.PaginationModel{}
		g.mu.Lock()
		rows, _ := loader.ApplyQuery(g.allRows, q, g.engineOpts)
		g.mu.Unlock()
		return rows
	}
	return g.Rows()
}

func (g *Grid) exportCSV(w io.Writer, cols []column.Descriptor, rows []loader.Row) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.HeaderName
		if header[i] == "" {
			header[i] = c.Field
		}
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "csv export failed").
			WithDetail("grid", g.opts.GridName)
	}

	record := make([]string, len(cols))
	for i, row := range rows {
		for j, c := range cols {
			cell := g.renderer.SafeRender(g.opts.GridName, c, column.CellParams{
				GridName: g.opts.GridName,
				Field:    c.Field,
				Row:      row,
				RowID:    g.rowID(row),
				RowIndex: i,
				Value:    row[c.Field],
			})
			record[j] = cell.Text
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "csv export failed").
				WithDetail("grid", g.opts.GridName)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "csv export failed").
			WithDetail("grid", g.opts.GridName)
	}
	return nil
}

func (g *Grid) exportJSON(w io.Writer, cols []column.Descriptor, rows []loader.Row) error {
	enc := json.NewStreamingEncoder(w, true)
	for _, row := range rows {
		rec := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			rec[c.Field] = exportValue(c, row)
		}
		if err := enc.Encode(rec); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "json export failed").
				WithDetail("grid", g.opts.GridName)
		}
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "json export failed").
			WithDetail("grid", g.opts.GridName)
	}
	return nil
}

func exportValue(c column.Descriptor, row loader.Row) interface{} {
	if c.ValueGetter != nil {
		return c.ValueGetter(row)
	}
	return row[c.Field]
}
