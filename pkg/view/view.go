// Package view drives grid presentation: the table/card mode switch,
// the row details overlay and row event forwarding.
package view

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/column"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/state"
)

// Field is one row value rendered under its column's rules.
type Field struct {
	Field      string      `json:"field"`
	HeaderName string      `json:"headerName"`
	Value      interface{} `json:"value"`
	Text       string      `json:"text"`
}

// Details is the overlay model for a single row. Fields are formatted
// through the grid's effective columns, so the overlay always matches
// what the grid shows.
type Details struct {
	GridName string
	RowID    state.RowID
	RowIndex int
	Row      loader.Row
	Fields   []Field
}

// Config wires a controller to its grid.
type Config struct {
	GridName string

	// State owns the view mode. Required.
	State *state.Store

	// Columns supplies the grid's effective column set for the overlay.
	Columns func() []column.Descriptor

	// RowID derives row identity; nil uses loader.DefaultRowID.
	RowID func(loader.Row) state.RowID

	// Sink receives contained render errors from the overlay.
	Sink column.ErrorSink

	OnRowClick       func(row loader.Row, index int)
	OnRowDoubleClick func(row loader.Row, index int)
}

// Controller switches presentation modes and builds the details
// overlay. Card mode keeps sort and filter and renders its full list,
// never a virtualized window.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	renderer *column.Renderer
	details  *Details
	log      *zap.Logger
}

// NewController creates a view controller.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:      cfg,
		renderer: column.NewRenderer(cfg.Sink),
		log:      logger.WithGrid(cfg.GridName).Named("view"),
	}
}

// Mode returns the active presentation mode.
func (c *Controller) Mode() state.ViewMode {
	return c.cfg.State.View().ViewMode
}

// SetMode switches between table and card presentation in a single
// state write. Sort and filter carry over untouched.
func (c *Controller) SetMode(mode state.ViewMode) error {
	switch mode {
	case state.ViewTable, state.ViewCard:
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown view mode %q", mode)
	}

	if c.cfg.State.View().ViewMode == mode {
		return nil
	}
	c.cfg.State.SetViewMode(mode)
	c.log.Debug("view mode changed", zap.String("mode", string(mode)))
	return nil
}

// Virtualizable reports whether the active mode may window its rows.
func (c *Controller) Virtualizable() bool {
	return c.Mode() != state.ViewCard
}

// OpenDetails builds and retains the overlay model for a row. Value
// carries the raw row value; Text carries the grid's formatting.
func (c *Controller) OpenDetails(row loader.Row, rowIndex int) Details {
	id := c.rowID(row)

	var fields []Field
	if c.cfg.Columns != nil {
		cols := c.cfg.Columns()
		fields = make([]Field, 0, len(cols))
		for _, col := range cols {
			if col.Hidden || col.Type == column.TypeActions {
				continue
			}
			cell := c.renderer.SafeRender(c.cfg.GridName, col, column.CellParams{
				GridName: c.cfg.GridName,
				Field:    col.Field,
				Row:      row,
				RowID:    id,
				RowIndex: rowIndex,
				Value:    row[col.Field],
			})
			fields = append(fields, Field{
				Field:      col.Field,
				HeaderName: col.HeaderName,
				Value:      row[col.Field],
				Text:       cell.Text,
			})
		}
	}

	d := Details{
		GridName: c.cfg.GridName,
		RowID:    id,
		RowIndex: rowIndex,
		Row:      row,
		Fields:   fields,
	}

	c.mu.Lock()
	c.details = &d
	c.mu.Unlock()

	c.log.Debug("details opened", zap.String("row_id", string(id)))
	return d
}

// Details returns the open overlay model, or nil when closed.
func (c *Controller) Details() *Details {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.details == nil {
		return nil
	}
	d := *c.details
	return &d
}

// CloseDetails dismisses the overlay.
func (c *Controller) CloseDetails() {
	c.mu.Lock()
	open := c.details != nil
	c.details = nil
	c.mu.Unlock()

	if open {
		c.log.Debug("details closed")
	}
}

// HandleRowClick forwards a row click to the caller.
func (c *Controller) HandleRowClick(row loader.Row, index int) {
	if c.cfg.OnRowClick != nil {
		c.cfg.OnRowClick(row, index)
	}
}

// HandleRowDoubleClick forwards a row double click to the caller.
func (c *Controller) HandleRowDoubleClick(row loader.Row, index int) {
	if c.cfg.OnRowDoubleClick != nil {
		c.cfg.OnRowDoubleClick(row, index)
	}
}

func (c *Controller) rowID(row loader.Row) state.RowID {
	if c.cfg.RowID != nil {
		return c.cfg.RowID(row)
	}
	return loader.DefaultRowID(row)
}
