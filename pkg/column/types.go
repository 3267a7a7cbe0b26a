// Package column builds the effective column set of a grid: structural
// composition, persisted settings, ordering, capability gating and
// header translation, plus panic-safe cell rendering.
package column

import (
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/state"
)

// Pin anchors a column to a grid edge.
type Pin string

const (
	PinNone  Pin = ""
	PinLeft  Pin = "left"
	PinRight Pin = "right"
)

// Type drives default formatting and filter affordances.
type Type string

const (
	TypeText         Type = "text"
	TypeNumber       Type = "number"
	TypeDate         Type = "date"
	TypeBoolean      Type = "boolean"
	TypeSingleSelect Type = "singleSelect"
	TypeActions      Type = "actions"
)

// Option is one admissible value of a singleSelect column.
type Option struct {
	Value interface{} `json:"value"`
	Label string      `json:"label"`
}

// CellParams carries everything a cell renderer may need.
type CellParams struct {
	GridName string
	Field    string
	Row      loader.Row
	RowID    state.RowID
	RowIndex int
	Value    interface{}
}

// Cell is a rendered cell.
type Cell struct {
	Text      string
	Title     string
	ClassName string
}

// Descriptor describes one column. Sortable, Filterable and Resizable
// are tri-state: nil means allowed, subject to grid capabilities.
type Descriptor struct {
	Field      string
	HeaderName string

	Width *int
	Flex  *float64

	Type       Type
	Sortable   *bool
	Filterable *bool
	Resizable  *bool

	Pinned Pin
	Hidden bool

	// ValueGetter derives the cell value from the row; nil reads the
	// field directly. ValueFormatter turns the value into display text;
	// nil falls back to the Type default.
	ValueGetter    func(row loader.Row) interface{}
	ValueFormatter func(value interface{}) string

	// RenderCell overrides formatting entirely. Panics and errors are
	// contained by SafeRender.
	RenderCell func(params CellParams) (Cell, error)

	// ValueOptions enumerates singleSelect values.
	ValueOptions []Option
}

// IsSortable resolves the tri-state flag.
func (d Descriptor) IsSortable() bool { return d.Sortable == nil || *d.Sortable }

// IsFilterable resolves the tri-state flag.
func (d Descriptor) IsFilterable() bool { return d.Filterable == nil || *d.Filterable }

// IsResizable resolves the tri-state flag.
func (d Descriptor) IsResizable() bool { return d.Resizable == nil || *d.Resizable }

// EffectiveWidth returns the width or a default.
func (d Descriptor) EffectiveWidth() int {
	if d.Width != nil {
		return *d.Width
	}
	return DefaultWidth
}

// DefaultWidth applies when neither the descriptor nor persisted
// settings carry one.
const DefaultWidth = 150

// FieldSettings is the persisted per-column state. Nil fields were
// never touched by the user and leave the descriptor untouched.
type FieldSettings struct {
	Width      *int  `json:"width,omitempty"`
	Hidden     *bool `json:"hidden,omitempty"`
	OrderIndex *int  `json:"orderIndex,omitempty"`
	Pinned     *Pin  `json:"pinned,omitempty"`
}

// Settings maps field name to its persisted state.
type Settings map[string]FieldSettings

// Clone deep-copies the settings map.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		fs := FieldSettings{}
		if v.Width != nil {
			w := *v.Width
			fs.Width = &w
		}
		if v.Hidden != nil {
			h := *v.Hidden
			fs.Hidden = &h
		}
		if v.OrderIndex != nil {
			o := *v.OrderIndex
			fs.OrderIndex = &o
		}
		if v.Pinned != nil {
			p := *v.Pinned
			fs.Pinned = &p
		}
		out[k] = fs
	}
	return out
}

// TranslateFunc resolves a header key to display text, falling back to
// the given default. Nil means identity.
type TranslateFunc func(key, fallback string) string

// Capabilities gate what the grid allows. A disabled capability zeroes
// the matching per-column flags no matter what descriptors say.
type Capabilities struct {
	Sorting    bool
	Filtering  bool
	Resizing   bool
	Reordering bool
	I18n       bool
}

// AllCapabilities returns a fully enabled set.
func AllCapabilities() Capabilities {
	return Capabilities{Sorting: true, Filtering: true, Resizing: true, Reordering: true, I18n: true}
}

// BuildInput is the input of one column pipeline run.
type BuildInput struct {
	GridName string

	// Columns are the caller's data columns. Pre and End are framework
	// columns placed before and after them, e.g. selection checkboxes
	// or action menus.
	Columns []Descriptor
	Pre     []Descriptor
	End     []Descriptor

	// RowNumber prepends the synthetic row-number column.
	RowNumber bool

	Settings     Settings
	Capabilities Capabilities
	Translate    TranslateFunc
}

// RowNumberField is the synthetic row-number column's field name.
const RowNumberField = "__rowNumber"
