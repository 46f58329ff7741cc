package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"), false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.SessionTTL != 30*time.Minute {
		t.Errorf("session ttl = %s", cfg.Server.SessionTTL)
	}
	if cfg.Generation.Provider != "noop" {
		t.Errorf("provider = %s", cfg.Generation.Provider)
	}
	if cfg.Scheduler.MaxConcurrentJobs != 3 {
		t.Errorf("max concurrent = %d", cfg.Scheduler.MaxConcurrentJobs)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
log:
  level: debug
  format: console
server:
  port: 9090
  jwt_secret: s3cret
  dashboard_key: key
  session_ttl: 1h
redis:
  url: redis://localhost:6379
  submit_per_minute: 10
generation:
  provider: http
  backend_url: http://gen.internal:9000
  request_timeout: 30s
scheduler:
  max_concurrent_jobs: 5
`), true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.SessionTTL != time.Hour {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Generation.RequestTimeout != 30*time.Second {
		t.Errorf("timeout = %s", cfg.Generation.RequestTimeout)
	}
	if cfg.Scheduler.MaxConcurrentJobs != 5 {
		t.Errorf("max concurrent = %d", cfg.Scheduler.MaxConcurrentJobs)
	}
	if !cfg.Runtime.Dev {
		t.Error("dev flag not carried into runtime config")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"openai without key", "generation:\n  provider: openai\n"},
		{"gemini without key", "generation:\n  provider: gemini\n"},
		{"http without backend", "generation:\n  provider: http\n"},
		{"unknown provider", "generation:\n  provider: dalle\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml), false); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false); err == nil {
		t.Fatal("expected error for missing file")
	}
}
