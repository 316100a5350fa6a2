package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func envMap(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(envMap(nil))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Port != 3001 {
		t.Errorf("Port = %d, want 3001", cfg.Port)
	}
	if cfg.API.Timezone != "Asia/Seoul" {
		t.Errorf("Timezone = %q", cfg.API.Timezone)
	}
	if cfg.API.RateLimitRequests != 100 || cfg.API.RateLimitWindow != 15*time.Minute {
		t.Errorf("rate limit = %d/%s", cfg.API.RateLimitRequests, cfg.API.RateLimitWindow)
	}
	if cfg.API.QueryTimeout != 15*time.Second {
		t.Errorf("QueryTimeout = %s", cfg.API.QueryTimeout)
	}
	if cfg.Pool.MaxOpenConns != 10 {
		t.Errorf("MaxOpenConns = %d", cfg.Pool.MaxOpenConns)
	}
	if !strings.Contains(cfg.DatabaseURL, "/invites_loop") {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.API.AllowedOrigins != nil || cfg.EnablePprof {
		t.Errorf("unexpected optional settings: %+v", cfg)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(envMap(map[string]string{
		"PORT":                 "8080",
		"DATABASE_URL":         "postgres://app@db/analytics",
		"DB_MAX_OPEN_CONNS":    "3",
		"QUERY_TIMEOUT":        "5s",
		"HTTP_READ_TIMEOUT":    "10s",
		"HTTP_WRITE_TIMEOUT":   "45s",
		"RATE_LIMIT_REQUESTS":  "20",
		"RATE_LIMIT_WINDOW":    "1m",
		"CORS_ALLOWED_ORIGINS": "https://a.example.com, ,https://b.example.com",
		"STATIC_DIR":           "/srv/public",
		"APP_ENV":              "development",
		"DASHBOARD_TIMEZONE":   "UTC",
		"ENABLE_PPROF":         "true",
	}))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Port != 8080 || cfg.ReadTimeout != 10*time.Second || cfg.WriteTimeout != 45*time.Second {
		t.Errorf("http settings = %d %s %s", cfg.Port, cfg.ReadTimeout, cfg.WriteTimeout)
	}
	if cfg.Pool.MaxOpenConns != 3 || cfg.Pool.MaxIdleConns != 3 {
		t.Errorf("pool = %+v", cfg.Pool)
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "postgres://app@db/analytics?") {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if diff := cmp.Diff([]string{"https://a.example.com", "https://b.example.com"}, cfg.API.AllowedOrigins); diff != "" {
		t.Errorf("origins (-want +got):\n%s", diff)
	}
	if cfg.API.QueryTimeout != 5*time.Second || cfg.API.RateLimitRequests != 20 || cfg.API.RateLimitWindow != time.Minute {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.API.Timezone != "UTC" || cfg.API.AppEnv != "development" || cfg.API.StaticDir != "/srv/public" {
		t.Errorf("api = %+v", cfg.API)
	}
	if !cfg.EnablePprof {
		t.Error("EnablePprof = false")
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "http"},
		{"PORT", "70000"},
		{"DB_MAX_OPEN_CONNS", "0"},
		{"QUERY_TIMEOUT", "15"},
		{"RATE_LIMIT_WINDOW", "-1m"},
		{"RATE_LIMIT_REQUESTS", "many"},
		{"DASHBOARD_TIMEZONE", "Mars/Olympus"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			_, err := loadConfig(envMap(map[string]string{tc.key: tc.value}))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Errorf("error %q does not name %s", err, tc.key)
			}
		})
	}
}

func TestLoadWorkerConfig(t *testing.T) {
	storageEnv := map[string]string{
		"S3_ENDPOINT":   "minio:9000",
		"S3_ACCESS_KEY": "key",
		"S3_SECRET_KEY": "secret",
		"S3_BUCKET":     "snapshots",
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadWorkerConfig(envMap(storageEnv))
		if err != nil {
			t.Fatalf("loadWorkerConfig: %v", err)
		}
		if cfg.Interval != time.Hour || cfg.Days != 30 || cfg.DryRun {
			t.Errorf("cfg = %+v", cfg)
		}
		if !cfg.S3.UseSSL || cfg.S3.CreateBucket {
			t.Errorf("s3 = %+v", cfg.S3)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		vars := map[string]string{
			"SNAPSHOT_INTERVAL":  "10m",
			"SNAPSHOT_DAYS":      "7",
			"SNAPSHOT_RETENTION": "168h",
			"SNAPSHOT_DRY_RUN":   "1",
			"S3_USE_SSL":         "false",
		}
		for k, v := range storageEnv {
			vars[k] = v
		}
		cfg, err := loadWorkerConfig(envMap(vars))
		if err != nil {
			t.Fatalf("loadWorkerConfig: %v", err)
		}
		if cfg.Interval != 10*time.Minute || cfg.Days != 7 || cfg.Retain != 7*24*time.Hour || !cfg.DryRun || cfg.S3.UseSSL {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("missing storage", func(t *testing.T) {
		_, err := loadWorkerConfig(envMap(map[string]string{"S3_ENDPOINT": "minio:9000"}))
		if err == nil || !strings.Contains(err.Error(), "S3_ACCESS_KEY") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("window too long", func(t *testing.T) {
		vars := map[string]string{"SNAPSHOT_DAYS": "400"}
		for k, v := range storageEnv {
			vars[k] = v
		}
		if _, err := loadWorkerConfig(envMap(vars)); err == nil {
			t.Error("expected an error")
		}
	})
}
