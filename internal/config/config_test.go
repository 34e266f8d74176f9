package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 30*time.Second, cfg.Sync.CycleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Sync.ReconcileInterval)
	assert.Equal(t, KnownProviders, cfg.Source.Providers)
	assert.Equal(t, "UTC", cfg.Source.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Empty(t, cfg.Store.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SYNC_CYCLE_TIMEOUT", "45s")
	t.Setenv("SOURCE_PROVIDERS", "weatherapi, OpenMeteo")
	t.Setenv("STORE_DSN", "postgres://localhost/weather")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Sync.CycleTimeout)
	assert.Equal(t, []string{"weatherapi", "openmeteo"}, cfg.Source.Providers)
	assert.Equal(t, "postgres://localhost/weather", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("FETCH_INTERVAL", "1m")
	t.Setenv("PORT", "9090")
	t.Setenv("OPENWEATHER_API_KEY", "ow-key")
	t.Setenv("WEATHERAPI_API_KEY", "wa-key")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "ow-key", cfg.Source.OpenWeatherAPIKey)
	assert.Equal(t, "wa-key", cfg.Source.WeatherAPIKey)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  interval: 2m
source:
  timezone: Europe/Berlin
redis:
  addr: localhost:6379
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	loc, err := cfg.Source.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"SYNC_INTERVAL":      "0s",
		"SOURCE_PROVIDERS":   "openmeteo,darksky",
		"SOURCE_TIMEZONE":    "Mars/Olympus",
		"LOG_FORMAT":         "xml",
		"SOURCE_MAX_RETRIES": "-1",
	}
	for env, value := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			_, err := LoadFile("")
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
