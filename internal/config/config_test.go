package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

const validConfig = `
debug: true
server:
  address: ":9090"
  read_timeout: 15s
database:
  host: localhost
  port: "5433"
  user: pipeline
  password: secret
  dbname: pipeline
  sslmode: require
redis:
  addr: localhost:6379
  db: 2
scheduler:
  extraction_tick: 30s
  generation_tick: 45s
  publishing_tick: 2m
worker:
  consumer_prefix: test-worker
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Debug {
		t.Error("debug not parsed")
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Port != "5433" || cfg.Database.SSLMode != "require" {
		t.Errorf("database config = %+v", cfg.Database)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("redis db = %d", cfg.Redis.DB)
	}
	if cfg.Scheduler.PublishingTick != 2*time.Minute {
		t.Errorf("publishing tick = %v", cfg.Scheduler.PublishingTick)
	}
	if cfg.Worker.ConsumerPrefix != "test-worker" {
		t.Errorf("consumer prefix = %q", cfg.Worker.ConsumerPrefix)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database:
  host: localhost
  user: pipeline
  dbname: pipeline
redis:
  addr: localhost:6379
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("default address = %q", cfg.Server.Address)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeoutSeconds*time.Second {
		t.Errorf("default write timeout = %v", cfg.Server.WriteTimeout)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Scheduler.ExtractionTick != time.Minute {
		t.Errorf("default extraction tick = %v", cfg.Scheduler.ExtractionTick)
	}
	if cfg.Scheduler.CycleTimeout != 5*time.Minute {
		t.Errorf("default cycle timeout = %v", cfg.Scheduler.CycleTimeout)
	}
	if cfg.Worker.ConsumerPrefix == "" {
		t.Error("consumer prefix default missing")
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing database host",
			content: `
database:
  user: pipeline
  dbname: pipeline
redis:
  addr: localhost:6379
`,
			wantErr: "database.host",
		},
		{
			name: "missing redis addr",
			content: `
database:
  host: localhost
  user: pipeline
  dbname: pipeline
`,
			wantErr: "redis.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() succeeded for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("REDIS_ADDR", "cache.internal:6380")
	t.Setenv("APP_DEBUG", "yes")
	t.Setenv("PIPELINE_PORT", "9999")

	path := writeConfigFile(t, `
database:
  host: localhost
  user: pipeline
  dbname: pipeline
redis:
  addr: localhost:6379
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("database host = %q", cfg.Database.Host)
	}
	if cfg.Redis.Addr != "cache.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if !cfg.Debug {
		t.Error("APP_DEBUG=yes not applied")
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
}

func TestParseBool(t *testing.T) {
	for _, truthy := range []string{"true", "1", "yes", "TRUE", " Yes "} {
		if !parseBool(truthy) {
			t.Errorf("parseBool(%q) = false", truthy)
		}
	}
	for _, falsy := range []string{"false", "0", "no", "", "banana"} {
		if parseBool(falsy) {
			t.Errorf("parseBool(%q) = true", falsy)
		}
	}
}
