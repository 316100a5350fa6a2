package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sain-invites/sibc-dashboard/internal/api"
	"github.com/sain-invites/sibc-dashboard/internal/db"
	"github.com/sain-invites/sibc-dashboard/internal/ratelimit"
	"github.com/sain-invites/sibc-dashboard/internal/storage"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// Config is the server process configuration.
type Config struct {
	Port         int
	DatabaseURL  string
	Pool         db.PoolConfig
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	EnablePprof  bool
	API          api.Config
}

// WorkerConfig holds configuration for the snapshot archive worker.
type WorkerConfig struct {
	Interval time.Duration
	Days     int // Length of the archived range, ending today
	Retain   time.Duration
	DryRun   bool // If true, log what would be archived without writing
	S3       storage.S3Config
}

// loadConfig reads the server configuration. getenv is os.Getenv outside tests.
func loadConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         3001,
		DatabaseURL:  db.DSNFromEnv(getenv),
		Pool:         db.DefaultPoolConfig(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		EnablePprof:  getenv("ENABLE_PPROF") == "true",
		API: api.Config{
			Timezone:          timeutil.DefaultZone,
			QueryTimeout:      15 * time.Second,
			RateLimitRequests: ratelimit.DefaultRequests,
			RateLimitWindow:   ratelimit.DefaultWindow,
			StaticDir:         getenv("STATIC_DIR"),
			AppEnv:            getenv("APP_ENV"),
		},
	}

	var err error
	if cfg.Port, err = envInt(getenv, "PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.Pool.MaxOpenConns, err = envInt(getenv, "DB_MAX_OPEN_CONNS", cfg.Pool.MaxOpenConns); err != nil {
		return Config{}, err
	}
	cfg.Pool.MaxIdleConns = min(cfg.Pool.MaxIdleConns, cfg.Pool.MaxOpenConns)

	if cfg.API.QueryTimeout, err = envDuration(getenv, "QUERY_TIMEOUT", cfg.API.QueryTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReadTimeout, err = envDuration(getenv, "HTTP_READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = envDuration(getenv, "HTTP_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.API.RateLimitRequests, err = envInt(getenv, "RATE_LIMIT_REQUESTS", cfg.API.RateLimitRequests); err != nil {
		return Config{}, err
	}
	if cfg.API.RateLimitWindow, err = envDuration(getenv, "RATE_LIMIT_WINDOW", cfg.API.RateLimitWindow); err != nil {
		return Config{}, err
	}

	if tz := getenv("DASHBOARD_TIMEZONE"); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return Config{}, fmt.Errorf("invalid DASHBOARD_TIMEZONE %q: %w", tz, err)
		}
		cfg.API.Timezone = tz
	}

	cfg.API.AllowedOrigins = splitList(getenv("CORS_ALLOWED_ORIGINS"))

	return cfg, nil
}

// loadWorkerConfig reads the snapshot worker configuration. Storage settings
// are required; the schedule has defaults.
func loadWorkerConfig(getenv func(string) string) (WorkerConfig, error) {
	cfg := WorkerConfig{
		Interval: time.Hour,
		Days:     timeutil.DefaultRangeDays,
		Retain:   90 * 24 * time.Hour,
	}

	var err error
	if cfg.Interval, err = envDuration(getenv, "SNAPSHOT_INTERVAL", cfg.Interval); err != nil {
		return WorkerConfig{}, err
	}
	if cfg.Days, err = envInt(getenv, "SNAPSHOT_DAYS", cfg.Days); err != nil {
		return WorkerConfig{}, err
	}
	if cfg.Days > timeutil.MaxRangeDays {
		return WorkerConfig{}, fmt.Errorf("invalid SNAPSHOT_DAYS %d: at most %d", cfg.Days, timeutil.MaxRangeDays)
	}
	if cfg.Retain, err = envDuration(getenv, "SNAPSHOT_RETENTION", cfg.Retain); err != nil {
		return WorkerConfig{}, err
	}
	if dryRun := getenv("SNAPSHOT_DRY_RUN"); dryRun == "true" || dryRun == "1" {
		cfg.DryRun = true
	}

	if cfg.S3, err = storage.S3ConfigFromEnv(getenv); err != nil {
		return WorkerConfig{}, err
	}

	return cfg, nil
}

// envInt parses a positive integer, returning def when the variable is unset.
func envInt(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}

// envDuration parses a positive Go duration such as "15s" or "15m".
func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
