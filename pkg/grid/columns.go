package grid

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/column"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/storage"
)

// SetColumnVisibility persists a visibility override and rebuilds the
// effective column set.
func (g *Grid) SetColumnVisibility(field string, hidden bool) error {
	if err := g.knownColumn(field); err != nil {
		return err
	}
	return g.updateSettings(field, func(fs *column.FieldSettings) {
		h := hidden
		fs.Hidden = &h
	})
}

// SetColumnWidth persists a width override.
func (g *Grid) SetColumnWidth(field string, width int) error {
	if !g.features.ColumnResizing {
		return errors.New(errors.ErrorTypeValidation, "column resizing is disabled").
			WithDetail("grid", g.opts.GridName)
	}
	if width <= 0 {
		return errors.Newf(errors.ErrorTypeValidation, "column width must be positive: %d", width).
			WithDetail("grid", g.opts.GridName).
			WithDetail("field", field)
	}
	if err := g.knownColumn(field); err != nil {
		return err
	}
	return g.updateSettings(field, func(fs *column.FieldSettings) {
		w := width
		fs.Width = &w
	})
}

// SetColumnPinned anchors a column to a grid edge, or releases it with
// PinNone.
func (g *Grid) SetColumnPinned(field string, pin column.Pin) error {
	switch pin {
	case column.PinNone, column.PinLeft, column.PinRight:
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown pin %q", pin).
			WithDetail("grid", g.opts.GridName).
			WithDetail("field", field)
	}
	if err := g.knownColumn(field); err != nil {
		return err
	}
	return g.updateSettings(field, func(fs *column.FieldSettings) {
		p := pin
		fs.Pinned = &p
	})
}

// SetColumnOrder persists a full column order. Fields not listed keep
// their structural position.
func (g *Grid) SetColumnOrder(fields []string) error {
	if !g.features.ColumnReordering {
		return errors.New(errors.ErrorTypeValidation, "column reordering is disabled").
			WithDetail("grid", g.opts.GridName)
	}
	for _, f := range fields {
		if err := g.knownColumn(f); err != nil {
			return err
		}
	}

	g.mu.Lock()
	if g.settings == nil {
		g.settings = column.Settings{}
	}
	for i, f := range fields {
		idx := i
		fs := g.settings[f]
		fs.OrderIndex = &idx
		g.settings[f] = fs
	}
	rebuildErr := g.rebuildColumnsLocked()
	snapshot := g.settings.Clone()
	g.mu.Unlock()

	if rebuildErr != nil {
		g.emitError(rebuildErr)
	}
	g.persistSettings(snapshot)
	return nil
}

// ResetColumnSettings drops every persisted override and deletes the
// stored blob.
func (g *Grid) ResetColumnSettings() error {
	g.mu.Lock()
	g.settings = nil
	rebuildErr := g.rebuildColumnsLocked()
	g.mu.Unlock()

	if rebuildErr != nil {
		g.emitError(rebuildErr)
	}
	if g.opts.Storage != nil {
		err := g.opts.Storage.Delete(column.SettingsKey(g.opts.GridName))
		if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
			werr := errors.Wrap(err, errors.ErrorTypePersistence, "failed to delete column settings").
				WithDetail("grid", g.opts.GridName)
			g.log.Warn("failed to delete column settings", zap.Error(err))
			g.emitError(werr)
		}
	}
	return nil
}

// ColumnSettings returns a copy of the persisted overrides.
func (g *Grid) ColumnSettings() column.Settings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings.Clone()
}

// SetViewportWidth recalculates responsive column hiding once the
// resize debounce closes. Bands only touch effective visibility;
// persisted settings stay as the user left them.
func (g *Grid) SetViewportWidth(px int) {
	g.mu.Lock()
	g.pendingWidth = px
	g.mu.Unlock()
	g.resizeDeb.Call(g.flushResize)
}

func (g *Grid) flushResize() {
	g.mu.Lock()
	width := g.pendingWidth
	hidden := map[string]bool{}
	for _, f := range g.cfg.Responsive.Band(width) {
		hidden[f] = true
	}
	g.hiddenByWidth = hidden
	g.mu.Unlock()

	g.log.Debug("responsive band applied",
		zap.Int("width", width),
		zap.String("band", g.cfg.Responsive.BandName(width)),
		zap.Int("hidden", len(hidden)))
}

func (g *Grid) knownColumn(field string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.columns {
		if c.Field == field {
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeValidation, "unknown column %q", field).
		WithDetail("grid", g.opts.GridName)
}

func (g *Grid) updateSettings(field string, mutate func(*column.FieldSettings)) error {
	g.mu.Lock()
	if g.settings == nil {
		g.settings = column.Settings{}
	}
	fs := g.settings[field]
	mutate(&fs)
	g.settings[field] = fs
	rebuildErr := g.rebuildColumnsLocked()
	snapshot := g.settings.Clone()
	g.mu.Unlock()

	if rebuildErr != nil {
		g.emitError(rebuildErr)
	}
	g.persistSettings(snapshot)
	return nil
}

// rebuildColumnsLocked reruns the pipeline. Inputs were deduplicated at
// construction, so rebuilds keep the previous set only on the error
// path.
func (g *Grid) rebuildColumnsLocked() error {
	cols, err := g.pipeline.Build(g.buildInput())
	g.columns = cols
	return err
}

// persistSettings saves the overrides. Persistence failures stay
// non-fatal: the in-memory settings remain authoritative.
func (g *Grid) persistSettings(s column.Settings) {
	if g.opts.Storage == nil {
		return
	}
	if err := column.SaveSettings(g.opts.Storage, g.opts.GridName, s); err != nil {
		g.collector.StateSave(false)
		g.log.Warn("failed to persist column settings", zap.Error(err))
		g.emitError(err)
		return
	}
	g.collector.StateSave(true)
}
