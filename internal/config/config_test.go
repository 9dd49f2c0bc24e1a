package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOUNGE_STORAGE_PATH", filepath.Join(dir, "data", "lounge.bolt"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Type != "bolt" {
		t.Fatalf("expected bolt storage, got %s", cfg.Storage.Type)
	}
	if cfg.Billing.SweepInterval != "5m" {
		t.Fatalf("expected 5m sweep interval, got %s", cfg.Billing.SweepInterval)
	}
	if cfg.Server.MetricsPort != 9090 {
		t.Fatalf("expected metrics port 9090, got %d", cfg.Server.MetricsPort)
	}
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Fatalf("expected storage directory to be created: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  type: redis
  redis:
    host: redis.internal
    port: 6380
billing:
  sweep_interval: 1m
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Type != "redis" || cfg.Storage.Redis.Host != "redis.internal" || cfg.Storage.Redis.Port != 6380 {
		t.Fatalf("unexpected redis config: %+v", cfg.Storage.Redis)
	}
	if cfg.Billing.SweepInterval != "1m" {
		t.Fatalf("expected 1m sweep interval, got %s", cfg.Billing.SweepInterval)
	}
	if cfg.Storage.Redis.LockTTL != "30s" {
		t.Fatalf("expected default lock ttl, got %s", cfg.Storage.Redis.LockTTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown storage type",
			content: "storage:\n  type: sqlite\n",
			wantErr: "unsupported storage type",
		},
		{
			name:    "bad sweep interval",
			content: "storage:\n  type: redis\nbilling:\n  sweep_interval: soon\n",
			wantErr: "billing.sweep_interval",
		},
		{
			name:    "bad log level",
			content: "storage:\n  type: redis\nlogging:\n  level: loud\n",
			wantErr: "invalid logging level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
