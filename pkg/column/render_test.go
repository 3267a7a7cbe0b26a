package column

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/loader"
)

type recordingSink struct {
	errs []error
}

func (s *recordingSink) sink(err error) { s.errs = append(s.errs, err) }

func TestSafeRenderPanicYieldsSentinel(t *testing.T) {
	sink := &recordingSink{}
	r := NewRenderer(sink.sink)

	col := Descriptor{
		Field: "price",
		RenderCell: func(params CellParams) (Cell, error) {
			panic("boom")
		},
	}

	cell := r.SafeRender("products", col, CellParams{Field: "price"})

	assert.Equal(t, ErrorCellClass, cell.ClassName)
	assert.Empty(t, cell.Text)
	require.Len(t, sink.errs, 1)
	assert.True(t, errors.IsType(sink.errs[0], errors.ErrorTypeCellRender))
}

func TestSafeRenderErrorYieldsSentinel(t *testing.T) {
	sink := &recordingSink{}
	r := NewRenderer(sink.sink)

	col := Descriptor{
		Field: "price",
		RenderCell: func(params CellParams) (Cell, error) {
			return Cell{}, fmt.Errorf("bad value")
		},
	}

	cell := r.SafeRender("products", col, CellParams{Field: "price"})

	assert.Equal(t, ErrorCellClass, cell.ClassName)
	require.Len(t, sink.errs, 1)
	assert.True(t, errors.IsType(sink.errs[0], errors.ErrorTypeCellRender))
}

func TestSafeRenderReportsOncePerWindow(t *testing.T) {
	sink := &recordingSink{}
	r := NewRenderer(sink.sink)

	now := time.Now()
	r.limiter.now = func() time.Time { return now }

	col := Descriptor{
		Field:      "price",
		RenderCell: func(params CellParams) (Cell, error) { panic("boom") },
	}

	for i := 0; i < 100; i++ {
		r.SafeRender("products", col, CellParams{})
	}
	assert.Len(t, sink.errs, 1)

	// A different field reports independently.
	other := col
	other.Field = "qty"
	r.SafeRender("products", other, CellParams{})
	assert.Len(t, sink.errs, 2)

	// Past the window the same field reports again.
	now = now.Add(reportWindow + time.Millisecond)
	r.SafeRender("products", col, CellParams{})
	assert.Len(t, sink.errs, 3)
}

func TestSafeRenderValueGetterAndFormatter(t *testing.T) {
	r := NewRenderer(nil)

	col := Descriptor{
		Field: "price",
		ValueGetter: func(row loader.Row) interface{} {
			return row["price"].(float64) * 2
		},
		ValueFormatter: func(value interface{}) string {
			return fmt.Sprintf("$%.2f", value)
		},
	}

	cell := r.SafeRender("products", col, CellParams{
		Row:   loader.Row{"price": 10.5},
		Value: 10.5,
	})
	assert.Equal(t, "$21.00", cell.Text)
}

func TestSafeRenderDefaultFormatting(t *testing.T) {
	r := NewRenderer(nil)

	cell := r.SafeRender("products", Descriptor{Field: "price", Type: TypeNumber}, CellParams{Value: 42.5})
	assert.Equal(t, "42.5", cell.Text)
}

func TestRowNumberCell(t *testing.T) {
	r := NewRenderer(nil)
	col := rowNumberDescriptor()

	cell := r.SafeRender("products", col, CellParams{RowIndex: 4})
	assert.Equal(t, "5", cell.Text)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		col   Descriptor
		value interface{}
		want  string
	}{
		{"nil", Descriptor{Type: TypeText}, nil, ""},
		{"text", Descriptor{Type: TypeText}, "hello", "hello"},
		{"float", Descriptor{Type: TypeNumber}, 99.99, "99.99"},
		{"int", Descriptor{Type: TypeNumber}, 42, "42"},
		{"whole float", Descriptor{Type: TypeNumber}, float64(1000), "1000"},
		{"date", Descriptor{Type: TypeDate}, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), "2025-03-01 09:30:00"},
		{"bool", Descriptor{Type: TypeBoolean}, true, "true"},
		{
			"single select",
			Descriptor{Type: TypeSingleSelect, ValueOptions: []Option{
				{Value: "a", Label: "Alpha"},
				{Value: "b", Label: "Beta"},
			}},
			"b",
			"Beta",
		},
		{
			"single select unknown value",
			Descriptor{Type: TypeSingleSelect, ValueOptions: []Option{{Value: "a", Label: "Alpha"}}},
			"z",
			"z",
		},
		{"untyped", Descriptor{}, 7, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.col, tt.value))
		})
	}
}
