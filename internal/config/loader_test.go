package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8642" {
		t.Errorf("expected port 8642, got %s", cfg.Server.Port)
	}
	if cfg.Registry.CoalesceWindow != 100*time.Millisecond {
		t.Errorf("expected coalesce window 100ms, got %v", cfg.Registry.CoalesceWindow)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Endpoint.MaxConcurrentStart != 4 {
		t.Errorf("expected max concurrent start 4, got %d", cfg.Endpoint.MaxConcurrentStart)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
sqlite:
  path: "/tmp/agents.db"
registry:
  read_timeout: 750ms
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.SQLite.Path != "/tmp/agents.db" {
		t.Errorf("expected sqlite path override, got %s", cfg.SQLite.Path)
	}
	if cfg.Registry.ReadTimeout != 750*time.Millisecond {
		t.Errorf("expected read timeout 750ms, got %v", cfg.Registry.ReadTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("AGENTDOCK_PORT", "7070")
	t.Setenv("AGENTDOCK_DB_PATH", "/var/lib/agentdock/agents.db")
	t.Setenv("AGENTDOCK_BREAKER_TIMEOUT", "1m")
	t.Setenv("AGENTDOCK_LOG_LEVEL", "warn")
	t.Setenv("AGENTDOCK_OTEL_ENABLED", "true")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.SQLite.Path != "/var/lib/agentdock/agents.db" {
		t.Errorf("expected db path override, got %s", cfg.SQLite.Path)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if !cfg.OTel.Enabled {
		t.Error("expected otel enabled")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.CoalesceWindow = 0
	if err := validate(&cfg); err == nil {
		t.Error("expected error for zero coalesce window")
	}

	cfg = Defaults()
	cfg.Breaker.MaxFailures = 0
	if err := validate(&cfg); err == nil {
		t.Error("expected error for zero breaker max failures")
	}

	cfg = Defaults()
	cfg.SQLite.Path = ""
	if err := validate(&cfg); err == nil {
		t.Error("expected error for empty sqlite path")
	}
}
