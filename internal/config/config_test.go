package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7370, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, float64(50), cfg.Persistence.WritesPerSecond)
	assert.Equal(t, "m", cfg.Interaction.MeasurementUnit)
	assert.Equal(t, float64(5), cfg.Interaction.ClickThresholdPx)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SCANLOOM_PORT", "9090")
	t.Setenv("SCANLOOM_STORAGE_ENGINE", "postgres")
	t.Setenv("SCANLOOM_POSTGRES_DSN", "postgres://localhost/scanloom")
	t.Setenv("SCANLOOM_CLICK_THRESHOLD_PX", "8.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/scanloom", cfg.Storage.PostgresDSN)
	assert.Equal(t, 8.5, cfg.Interaction.ClickThresholdPx)
}

func TestLoadConfigInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("SCANLOOM_PORT", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7370, cfg.Server.Port)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 8080
storage:
  engine: postgres
interaction:
  measurement_unit: ft
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("SCANLOOM_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "ft", cfg.Interaction.MeasurementUnit)
	// Untouched values keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))
	t.Setenv("SCANLOOM_CONFIG_FILE", path)
	t.Setenv("SCANLOOM_PORT", "9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("SCANLOOM_CONFIG_FILE", "/nonexistent/config.yaml")

	_, err := LoadConfig()
	assert.Error(t, err)
}
