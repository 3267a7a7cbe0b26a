package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeWindow(t *testing.T) {
	tests := []struct {
		name      string
		scrollTop int
		want      Window
	}{
		{"top", 0, Window{Start: 0, End: 25}},
		{"mid", 1600, Window{Start: 50, End: 75}},
		{"partial row", 1615, Window{Start: 50, End: 75}},
		{"near bottom", 159000, Window{Start: 4968, End: 4993}},
		{"beyond content", 1 << 20, Window{Start: 5000, End: 5000}},
		{"negative clamps", -100, Window{Start: 0, End: 25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWindow(tt.scrollTop, 640, 32, 5000, 5)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeWindowStaysSmall(t *testing.T) {
	// A 640px viewport over 32px rows shows 20 rows; with overscan the
	// window must never exceed 30 regardless of scroll position.
	for scrollTop := 0; scrollTop < 160000; scrollTop += 977 {
		w := ComputeWindow(scrollTop, 640, 32, 5000, 5)
		assert.LessOrEqual(t, w.Len(), 30, "scrollTop=%d", scrollTop)
	}
}

func TestComputeWindowClampsToRows(t *testing.T) {
	w := ComputeWindow(0, 640, 32, 10, 5)
	assert.Equal(t, Window{Start: 0, End: 10}, w)
}

func TestComputeWindowDegenerate(t *testing.T) {
	assert.Equal(t, Window{}, ComputeWindow(0, 640, 32, 0, 5))
	assert.Equal(t, Window{}, ComputeWindow(0, 640, 0, 5000, 5))
}

func TestWindowLen(t *testing.T) {
	assert.Equal(t, 25, Window{Start: 50, End: 75}.Len())
	assert.Equal(t, 0, Window{Start: 75, End: 50}.Len())
	assert.Equal(t, 0, Window{}.Len())
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: 50, End: 75}
	assert.True(t, w.Contains(50))
	assert.True(t, w.Contains(74))
	assert.False(t, w.Contains(75))
	assert.False(t, w.Contains(49))
}

func TestWindowExpand(t *testing.T) {
	w := Window{Start: 50, End: 75}
	assert.Equal(t, Window{Start: 45, End: 80}, w.Expand(5, 5000))
	assert.Equal(t, Window{Start: 0, End: 30}, Window{Start: 2, End: 25}.Expand(5, 5000))
	assert.Equal(t, Window{Start: 4990, End: 5000}, Window{Start: 4995, End: 5000}.Expand(5, 5000))
}
