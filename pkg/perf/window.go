// Package perf implements the performance controller: row
// virtualization windows, lazy page orchestration, frame rate and
// memory tracking, and render budget accounting.
package perf

// Virtualization and pressure defaults.
const (
	DefaultVirtualizationThreshold = 1000
	DefaultOverscan                = 5
	DefaultMemoryWarnMB            = 100
	DefaultMemoryCriticalMB        = 200
	DefaultFPSFloor                = 30.0
)

// Window is a half-open row range [Start, End) the grid materializes.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of rows in the window.
func (w Window) Len() int {
	if w.End <= w.Start {
		return 0
	}
	return w.End - w.Start
}

// Contains reports whether row index i falls inside the window.
func (w Window) Contains(i int) bool {
	return i >= w.Start && i < w.End
}

// Expand grows the window by n rows on each side, clamped to rowCount.
func (w Window) Expand(n, rowCount int) Window {
	out := Window{Start: w.Start - n, End: w.End + n}
	if out.Start < 0 {
		out.Start = 0
	}
	if out.End > rowCount {
		out.End = rowCount
	}
	if out.End < out.Start {
		out.End = out.Start
	}
	return out
}

// ComputeWindow derives the materialized row range for a scroll
// position. Start is the first row at or above the viewport top; the
// window covers the visible rows plus overscan, clamped to rowCount.
func ComputeWindow(scrollTop, viewportHeight, itemHeight, rowCount, overscan int) Window {
	if rowCount <= 0 || itemHeight <= 0 {
		return Window{}
	}
	if scrollTop < 0 {
		scrollTop = 0
	}
	if overscan < 0 {
		overscan = 0
	}

	start := scrollTop / itemHeight
	if start > rowCount {
		start = rowCount
	}

	visible := (viewportHeight + itemHeight - 1) / itemHeight
	end := start + visible + overscan
	if end > rowCount {
		end = rowCount
	}
	if start > end {
		start = end
	}
	return Window{Start: start, End: end}
}
