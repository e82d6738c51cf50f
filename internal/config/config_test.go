package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "DATABASE_URL", "REDIS_URL", "AUTO_MIGRATE", "CACHE_BACKEND",
	"CACHE_TTL", "SNAPSHOT_TIMEZONE", "DISPLAY_CURRENCY", "LOG_LEVEL",
}

// clearEnv unsets every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, CacheNone, cfg.CacheBackend)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, time.Local, cfg.SnapshotLocation)
	assert.Equal(t, "USD", cfg.DisplayCurrency)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("SNAPSHOT_TIMEZONE", "UTC")
	t.Setenv("DISPLAY_CURRENCY", "eur")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, CacheRedis, cfg.CacheBackend, "redis is the default when REDIS_URL is set")
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "UTC", cfg.SnapshotLocation.String())
	assert.Equal(t, "EUR", cfg.DisplayCurrency)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=6000\nCACHE_BACKEND=local\nDISPLAY_CURRENCY=GBP\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, CacheLocal, cfg.CacheBackend)
	assert.Equal(t, "GBP", cfg.DisplayCurrency)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"redis without url": {"CACHE_BACKEND": "redis"},
		"unknown backend":   {"CACHE_BACKEND": "memcached"},
		"bad ttl":           {"CACHE_TTL": "soon"},
		"zero ttl":          {"CACHE_TTL": "0s"},
		"bad timezone":      {"SNAPSHOT_TIMEZONE": "Mars/Olympus"},
		"bad currency":      {"DISPLAY_CURRENCY": "XYZ"},
		"bad level":         {"LOG_LEVEL": "loud"},
		"bad bool":          {"AUTO_MIGRATE": "maybe"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}
