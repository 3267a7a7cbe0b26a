package column

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/logger"
)

// Pipeline assembles the effective column set of a grid. Build is pure
// given its input; the pipeline itself only carries a logger.
type Pipeline struct {
	log *zap.Logger
}

// NewPipeline creates a column pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{log: logger.Get().Named("column")}
}

// Build composes, persists-applies, reorders and capability-gates the
// column set. On duplicate fields it returns an InvalidColumnSet error
// together with a usable fallback: the first occurrence of each field
// with capabilities applied but no settings or reordering.
func (p *Pipeline) Build(in BuildInput) ([]Descriptor, error) {
	base := compose(in)

	if dup, ok := firstDuplicate(base); ok {
		err := errors.Newf(errors.ErrorTypeColumnSet, "duplicate column field %q", dup).
			WithDetail("grid", in.GridName).
			WithDetail("field", dup)
		p.log.Warn("duplicate column field, serving deduplicated fallback",
			zap.String("grid", in.GridName),
			zap.String("field", dup))
		return applyCapabilities(dedupeFirst(base), in), err
	}

	cols := applySettings(base, in.Settings)
	if in.Capabilities.Reordering {
		cols = reorder(cols, in.Settings)
	}
	return applyCapabilities(cols, in), nil
}

// compose lays out the structural order: row number, pre, caller
// columns, end.
func compose(in BuildInput) []Descriptor {
	out := make([]Descriptor, 0, len(in.Pre)+len(in.Columns)+len(in.End)+1)
	if in.RowNumber {
		out = append(out, rowNumberDescriptor())
	}
	out = append(out, in.Pre...)
	out = append(out, in.Columns...)
	out = append(out, in.End...)
	return out
}

func rowNumberDescriptor() Descriptor {
	width := 64
	off := false
	return Descriptor{
		Field:      RowNumberField,
		HeaderName: "#",
		Width:      &width,
		Type:       TypeNumber,
		Sortable:   &off,
		Filterable: &off,
		Resizable:  &off,
		Pinned:     PinLeft,
		RenderCell: func(params CellParams) (Cell, error) {
			return Cell{Text: strconv.Itoa(params.RowIndex + 1)}, nil
		},
	}
}

func firstDuplicate(cols []Descriptor) (string, bool) {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.Field] {
			return c.Field, true
		}
		seen[c.Field] = true
	}
	return "", false
}

func dedupeFirst(cols []Descriptor) []Descriptor {
	seen := make(map[string]bool, len(cols))
	out := make([]Descriptor, 0, len(cols))
	for _, c := range cols {
		if seen[c.Field] {
			continue
		}
		seen[c.Field] = true
		out = append(out, c)
	}
	return out
}

// applySettings overlays persisted width, visibility and pinning.
// Fields the user never touched keep their caller values.
func applySettings(cols []Descriptor, settings Settings) []Descriptor {
	if len(settings) == 0 {
		return cols
	}
	for i := range cols {
		fs, ok := settings[cols[i].Field]
		if !ok {
			continue
		}
		if fs.Width != nil {
			w := *fs.Width
			cols[i].Width = &w
		}
		if fs.Hidden != nil {
			cols[i].Hidden = *fs.Hidden
		}
		if fs.Pinned != nil {
			cols[i].Pinned = *fs.Pinned
		}
	}
	return cols
}

// reorder sorts columns with a persisted OrderIndex ascending and
// appends the rest in their structural order. New columns added after
// the user last reordered therefore land at the end.
func reorder(cols []Descriptor, settings Settings) []Descriptor {
	if len(settings) == 0 {
		return cols
	}

	type indexed struct {
		col   Descriptor
		order int
	}
	var ordered []indexed
	var rest []Descriptor

	for _, c := range cols {
		if fs, ok := settings[c.Field]; ok && fs.OrderIndex != nil {
			ordered = append(ordered, indexed{col: c, order: *fs.OrderIndex})
		} else {
			rest = append(rest, c)
		}
	}
	if len(ordered) == 0 {
		return cols
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].order < ordered[j].order
	})

	out := make([]Descriptor, 0, len(cols))
	for _, e := range ordered {
		out = append(out, e.col)
	}
	return append(out, rest...)
}

// applyCapabilities zeroes per-column flags the grid does not allow
// and translates headers when i18n is on.
func applyCapabilities(cols []Descriptor, in BuildInput) []Descriptor {
	off := false
	for i := range cols {
		if !in.Capabilities.Sorting {
			cols[i].Sortable = &off
		}
		if !in.Capabilities.Filtering {
			cols[i].Filterable = &off
		}
		if !in.Capabilities.Resizing {
			cols[i].Resizable = &off
		}
		if in.Capabilities.I18n && in.Translate != nil {
			cols[i].HeaderName = in.Translate(cols[i].HeaderName, cols[i].HeaderName)
		}
	}
	return cols
}
