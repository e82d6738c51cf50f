// Package config loads service configuration from the environment. An
// optional .env file is read first; variables already present in the
// environment win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/folio/portfolio-engine/internal/money"
)

// CacheBackend selects the read-through cache in front of the store.
type CacheBackend string

const (
	CacheRedis CacheBackend = "redis"
	CacheLocal CacheBackend = "local"
	CacheNone  CacheBackend = "none"
)

// Config is the resolved service configuration.
type Config struct {
	Port        string
	DatabaseURL string // empty: in-memory store
	RedisURL    string
	AutoMigrate bool

	CacheBackend CacheBackend
	CacheTTL     time.Duration

	SnapshotLocation *time.Location
	DisplayCurrency  string
	LogLevel         slog.Level
}

// Load reads envFiles (default ".env") and then the environment. Missing
// files are ignored; malformed values are errors.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	var err error
	if cfg.AutoMigrate, err = strconv.ParseBool(getEnv("AUTO_MIGRATE", "false")); err != nil {
		return nil, fmt.Errorf("AUTO_MIGRATE: %w", err)
	}

	if cfg.CacheTTL, err = time.ParseDuration(getEnv("CACHE_TTL", "30s")); err != nil {
		return nil, fmt.Errorf("CACHE_TTL: %w", err)
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL: must be positive, got %s", cfg.CacheTTL)
	}

	defaultBackend := CacheNone
	if cfg.RedisURL != "" {
		defaultBackend = CacheRedis
	}
	switch b := CacheBackend(strings.ToLower(getEnv("CACHE_BACKEND", string(defaultBackend)))); b {
	case CacheRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("CACHE_BACKEND=redis requires REDIS_URL")
		}
		cfg.CacheBackend = b
	case CacheLocal, CacheNone:
		cfg.CacheBackend = b
	default:
		return nil, fmt.Errorf("CACHE_BACKEND: unknown backend %q", b)
	}

	if cfg.SnapshotLocation, err = time.LoadLocation(getEnv("SNAPSHOT_TIMEZONE", "Local")); err != nil {
		return nil, fmt.Errorf("SNAPSHOT_TIMEZONE: %w", err)
	}

	if cfg.DisplayCurrency, err = money.DisplayCurrency(getEnv("DISPLAY_CURRENCY", "USD")); err != nil {
		return nil, fmt.Errorf("DISPLAY_CURRENCY: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
