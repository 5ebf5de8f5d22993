package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "US", cfg.Region)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 10, cfg.MaxConcurrency)
	assert.Equal(t, time.Duration(0), cfg.CacheTTL)
	assert.Equal(t, 60*time.Second, cfg.AuthMinRefresh)
	assert.False(t, cfg.DisableSSL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FQ_MAX_CONCURRENCY", "4")
	t.Setenv("FQ_CACHE_TTL", "30s")
	t.Setenv("FQ_REGION", "GB")
	t.Setenv("FQ_DISABLE_SSL", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.DisableSSL)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "GB", cfg.Region)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "finance-query.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 3s\nlog_level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FQ_MAX_CONCURRENCY", "0")

	_, err := Load("")
	assert.Error(t, err)
}

func TestParseSymbols(t *testing.T) {
	cfg := &Config{WatchSymbols: " aapl, MSFT,,aapl ,nvda"}
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, cfg.ParseSymbols())
}
