package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25, cfg.Defaults.PageSize)
	assert.Equal(t, []int{10, 25, 50, 100}, cfg.Defaults.PageSizeOptions)
	assert.Equal(t, 16, cfg.Cache.MaxEntries)
	assert.Equal(t, int64(8*1024*1024), cfg.Cache.MaxBytes)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Performance.VirtualizationThreshold)
	assert.Equal(t, 5, cfg.Performance.Overscan)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce.Save)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce.Search)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero page size",
			mutate:  func(c *Config) { c.Defaults.PageSize = 0 },
			wantErr: "page_size",
		},
		{
			name:    "no page size options",
			mutate:  func(c *Config) { c.Defaults.PageSizeOptions = nil },
			wantErr: "page_size_options",
		},
		{
			name:    "zero cache entries",
			mutate:  func(c *Config) { c.Cache.MaxEntries = 0 },
			wantErr: "max_entries",
		},
		{
			name:    "negative overscan",
			mutate:  func(c *Config) { c.Performance.Overscan = -1 },
			wantErr: "overscan",
		},
		{
			name: "warn above critical",
			mutate: func(c *Config) {
				c.Performance.MemoryWarnMB = 300
				c.Performance.MemoryCriticalMB = 200
			},
			wantErr: "memory_warn_mb",
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.Retry.Multiplier = 0.5 },
			wantErr: "multiplier",
		},
		{
			name: "mobile wider than tablet",
			mutate: func(c *Config) {
				c.Responsive.Mobile.MaxWidth = 1200
				c.Responsive.Tablet.MaxWidth = 960
			},
			wantErr: "mobile max_width",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridcore.yaml")

	cfg := Default()
	cfg.Cache.MaxEntries = 32
	cfg.Performance.VirtualizationThreshold = 500
	require.NoError(t, Save(path, cfg))

	loaded := Default()
	require.NoError(t, Load(path, loaded))

	assert.Equal(t, 32, loaded.Cache.MaxEntries)
	assert.Equal(t, 500, loaded.Performance.VirtualizationThreshold)
	assert.Equal(t, cfg.Debounce.Save, loaded.Debounce.Save)
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridcore.yaml")

	content := "observability:\n  log_level: ${GRIDCORE_TEST_LOG_LEVEL}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("GRIDCORE_TEST_LOG_LEVEL", "debug")

	cfg := Default()
	require.NoError(t, Load(path, cfg))
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.MaxEntries, cfg.Cache.MaxEntries)

	cfg, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default().Defaults.PageSize, cfg.Defaults.PageSize)
}

func TestResponsiveBand(t *testing.T) {
	cfg := Default()
	cfg.Responsive.Mobile.HideColumns = []string{"createdAt", "updatedAt"}
	cfg.Responsive.Tablet.HideColumns = []string{"updatedAt"}

	assert.Equal(t, []string{"createdAt", "updatedAt"}, cfg.Responsive.Band(480))
	assert.Equal(t, []string{"updatedAt"}, cfg.Responsive.Band(768))
	assert.Nil(t, cfg.Responsive.Band(1280))

	assert.Equal(t, "mobile", cfg.Responsive.BandName(600))
	assert.Equal(t, "tablet", cfg.Responsive.BandName(960))
	assert.Equal(t, "desktop", cfg.Responsive.BandName(961))
}

func TestHasPageSize(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Defaults.HasPageSize(25))
	assert.False(t, cfg.Defaults.HasPageSize(33))
}
