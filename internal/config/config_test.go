package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Nominatim.Endpoint)
	assert.Equal(t, "first", cfg.Nominatim.Policy)
	assert.InDelta(t, 1.0, cfg.Nominatim.RateLimit, 0.001)
	assert.Equal(t, "https://overpass-api.de/api/interpreter", cfg.Overpass.Endpoint)
	assert.Equal(t, 25, cfg.Overpass.TimeoutSecs)
	assert.True(t, cfg.Taginfo.Validate)
	assert.Equal(t, 0, cfg.Taginfo.SnapshotKeys)
	assert.Equal(t, "poimap-cache.db", cfg.Cache.Path)
	assert.Equal(t, 720, cfg.Cache.TTLHours)
	assert.Equal(t, "https://tile.openstreetmap.org", cfg.Render.TileURL)
	assert.Equal(t, "png", cfg.Render.TileFormat)
	assert.Equal(t, 1024, cfg.Render.Width)
	assert.Equal(t, 64, cfg.Render.MaxTiles)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "1s", cfg.Retry.InitialBackoff)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
nominatim:
  policy: strict
overpass:
  endpoint: http://localhost:12345/api/interpreter
  timeout_secs: 90
render:
  width: 2048
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "strict", cfg.Nominatim.Policy)
	assert.Equal(t, "http://localhost:12345/api/interpreter", cfg.Overpass.Endpoint)
	assert.Equal(t, 90, cfg.Overpass.TimeoutSecs)
	assert.Equal(t, 2048, cfg.Render.Width)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Nominatim.Endpoint)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromEnv(t *testing.T) {
	chtemp(t)
	t.Setenv("POIMAP_OVERPASS_ENDPOINT", "http://mirror.example/api/interpreter")
	t.Setenv("POIMAP_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://mirror.example/api/interpreter", cfg.Overpass.Endpoint)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chtemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("nominatim: ["), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
