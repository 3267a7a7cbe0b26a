// Package config provides the unified configuration system for gridcore.
// It defines a single Config structure that every grid instance consumes,
// so all grids across an application share one set of tunables.
//
// The configuration is organized into logical sections:
//   - Defaults: Initial pagination, density and view mode
//   - Cache: Entry, byte and age bounds of the query cache
//   - Performance: Virtualization, memory pressure and frame budgets
//   - Debounce: Write coalescing windows for state, search, resize, scroll
//   - Retry: Loader retry policy
//   - Responsive: Viewport bands and per-band hidden columns
//   - Observability: Metrics, tracing, logging
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Cache.MaxEntries = 32
//	cfg.Performance.VirtualizationThreshold = 500
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Config is the single unified configuration structure for grid instances.
// Callers usually start from Default() and override individual fields.
type Config struct {
	// Defaults seed a fresh grid state before anything is persisted
	Defaults DefaultsConfig `yaml:"defaults" json:"defaults"`

	// Cache bounds the per-grid query cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Performance controls virtualization and pressure responses
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Debounce sets the write coalescing windows
	Debounce DebounceConfig `yaml:"debounce" json:"debounce"`

	// Retry defines the loader retry policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Responsive configures viewport-driven column hiding
	Responsive ResponsiveConfig `yaml:"responsive" json:"responsive"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// DefaultsConfig seeds the initial view model of a grid.
type DefaultsConfig struct {
	// PageSize is the initial page size
	PageSize int `yaml:"page_size" json:"page_size"`
	// PageSizeOptions lists the page sizes offered to the user
	PageSizeOptions []int `yaml:"page_size_options" json:"page_size_options"`
	// Density is the initial row-height preset (compact, standard, comfortable)
	Density string `yaml:"density" json:"density"`
	// ViewMode is the initial rendering mode (table, card)
	ViewMode string `yaml:"view_mode" json:"view_mode"`
}

// CacheConfig bounds the query cache.
type CacheConfig struct {
	// MaxEntries caps the number of cached query results
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	// MaxBytes caps the estimated total size of cached rows
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
	// TTL expires entries by age
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// PerformanceConfig controls virtualization and pressure responses.
type PerformanceConfig struct {
	// VirtualizationThreshold is the row count at which windowing turns on
	VirtualizationThreshold int `yaml:"virtualization_threshold" json:"virtualization_threshold"`
	// Overscan is the number of extra rows materialised on each window edge
	Overscan int `yaml:"overscan" json:"overscan"`
	// ItemHeight is the assumed row height in pixels
	ItemHeight int `yaml:"item_height" json:"item_height"`
	// MemoryWarnMB triggers a warning-level pressure response
	MemoryWarnMB int `yaml:"memory_warn_mb" json:"memory_warn_mb"`
	// MemoryCriticalMB triggers a critical-level pressure response
	MemoryCriticalMB int `yaml:"memory_critical_mb" json:"memory_critical_mb"`
	// FPSWarn is the frame rate under which an fps warning is emitted
	FPSWarn float64 `yaml:"fps_warn" json:"fps_warn"`
	// FPSWindow is the rolling frame-delta window length
	FPSWindow int `yaml:"fps_window" json:"fps_window"`
	// RenderBudget is the per-commit render time budget
	RenderBudget time.Duration `yaml:"render_budget" json:"render_budget"`
	// MemorySampleInterval sets how often memory usage is sampled
	MemorySampleInterval time.Duration `yaml:"memory_sample_interval" json:"memory_sample_interval"`
}

// DebounceConfig sets the write coalescing windows.
type DebounceConfig struct {
	// Save delays state persistence after a write
	Save time.Duration `yaml:"save" json:"save"`
	// Search delays filter emission while the user types
	Search time.Duration `yaml:"search" json:"search"`
	// Resize delays responsive recalculation during window resizing
	Resize time.Duration `yaml:"resize" json:"resize"`
	// ScrollThrottle is the minimum interval between scroll samples
	ScrollThrottle time.Duration `yaml:"scroll_throttle" json:"scroll_throttle"`
}

// RetryConfig defines the loader retry policy.
type RetryConfig struct {
	// MaxAttempts caps loader retries for a failed page
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// BaseDelay is the initial delay between retries
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`
	// Multiplier increases the delay exponentially
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// ResponsiveBand describes one viewport band and the columns it hides.
type ResponsiveBand struct {
	// MaxWidth is the inclusive upper bound of the band in pixels
	MaxWidth int `yaml:"max_width" json:"max_width"`
	// HideColumns lists fields hidden while the viewport is inside the band
	HideColumns []string `yaml:"hide_columns" json:"hide_columns"`
}

// ResponsiveConfig configures viewport-driven column hiding.
type ResponsiveConfig struct {
	Mobile ResponsiveBand `yaml:"mobile" json:"mobile"`
	Tablet ResponsiveBand `yaml:"tablet" json:"tablet"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// EnableMetrics activates metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates tracing of loads and actions
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// Default creates a Config with production defaults. Grids are expected
// to work with these values unmodified; constrained hosts can lower the
// memory and cache bounds.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			PageSize:        25,
			PageSizeOptions: []int{10, 25, 50, 100},
			Density:         "standard",
			ViewMode:        "table",
		},
		Cache: CacheConfig{
			MaxEntries: 16,
			MaxBytes:   8 * 1024 * 1024,
			TTL:        5 * time.Minute,
		},
		Performance: PerformanceConfig{
			VirtualizationThreshold: 1000,
			Overscan:                5,
			ItemHeight:              32,
			MemoryWarnMB:            100,
			MemoryCriticalMB:        200,
			FPSWarn:                 30,
			FPSWindow:               60,
			RenderBudget:            16 * time.Millisecond,
			MemorySampleInterval:    5 * time.Second,
		},
		Debounce: DebounceConfig{
			Save:           250 * time.Millisecond,
			Search:         300 * time.Millisecond,
			Resize:         150 * time.Millisecond,
			ScrollThrottle: 16 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Multiplier:  2.0,
		},
		Responsive: ResponsiveConfig{
			Mobile: ResponsiveBand{MaxWidth: 600},
			Tablet: ResponsiveBand{MaxWidth: 960},
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			EnableTracing:     false,
			LogLevel:          "info",
			TracingSampleRate: 0.1,
		},
	}
}

// Validate validates the configuration for correctness.
// Grids call this on construction to catch errors early.
func (c *Config) Validate() error {
	if c.Defaults.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if len(c.Defaults.PageSizeOptions) == 0 {
		return fmt.Errorf("page_size_options must not be empty")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive")
	}
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("cache max_bytes must be positive")
	}
	if c.Performance.VirtualizationThreshold <= 0 {
		return fmt.Errorf("virtualization_threshold must be positive")
	}
	if c.Performance.Overscan < 0 {
		return fmt.Errorf("overscan cannot be negative")
	}
	if c.Performance.ItemHeight <= 0 {
		return fmt.Errorf("item_height must be positive")
	}
	if c.Performance.MemoryWarnMB > c.Performance.MemoryCriticalMB {
		return fmt.Errorf("memory_warn_mb cannot exceed memory_critical_mb")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts cannot be negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}
	if c.Responsive.Mobile.MaxWidth > c.Responsive.Tablet.MaxWidth {
		return fmt.Errorf("mobile max_width cannot exceed tablet max_width")
	}
	return nil
}

// HasPageSize reports whether size is one of the offered page sizes.
func (d *DefaultsConfig) HasPageSize(size int) bool {
	for _, s := range d.PageSizeOptions {
		if s == size {
			return true
		}
	}
	return false
}

// Band returns the hidden-column set for a viewport width.
func (r *ResponsiveConfig) Band(width int) []string {
	switch {
	case width <= r.Mobile.MaxWidth:
		return r.Mobile.HideColumns
	case width <= r.Tablet.MaxWidth:
		return r.Tablet.HideColumns
	default:
		return nil
	}
}

// BandName returns the band label for a viewport width.
func (r *ResponsiveConfig) BandName(width int) string {
	switch {
	case width <= r.Mobile.MaxWidth:
		return "mobile"
	case width <= r.Tablet.MaxWidth:
		return "tablet"
	default:
		return "desktop"
	}
}
