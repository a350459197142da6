package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("expected postgres backend, got %s", cfg.Store.Backend)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("expected 1s base delay, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.Factor != 2 {
		t.Errorf("expected factor 2, got %v", cfg.Retry.Factor)
	}
	if cfg.Retry.AttemptTimeout != 30*time.Second {
		t.Errorf("expected 30s attempt timeout, got %v", cfg.Retry.AttemptTimeout)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Workflow.ConfirmationTTL != 24*time.Hour {
		t.Errorf("expected 24h confirmation TTL, got %v", cfg.Workflow.ConfirmationTTL)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
store:
  backend: "memory"
retry:
  max_attempts: 5
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
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected max_attempts 5, got %d", cfg.Retry.MaxAttempts)
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

	t.Setenv("ZMEAD_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("ZMEAD_RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("ZMEAD_RETRY_BASE_DELAY", "500ms")
	t.Setenv("ZMEAD_LOG_LEVEL", "warn")
	t.Setenv("ZMEAD_AUTH_KEYS", "hash1, hash2")
	t.Setenv("ZMEAD_TURN_TIMEOUT", "2m")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("expected max_attempts 4, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms base delay, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if len(cfg.Auth.Keys) != 2 || cfg.Auth.Keys[1] != "hash2" {
		t.Errorf("expected two trimmed auth keys, got %v", cfg.Auth.Keys)
	}
	if cfg.Workflow.TurnTimeout != 2*time.Minute {
		t.Errorf("expected 2m turn timeout, got %v", cfg.Workflow.TurnTimeout)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "unknown backend",
			modify: func(c *Config) { c.Store.Backend = "sqlite" },
			errMsg: `store.backend must be postgres, redis or memory, got "sqlite"`,
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.Postgres.DSN = "" },
			errMsg: "postgres.dsn is required",
		},
		{
			name: "empty redis addr",
			modify: func(c *Config) {
				c.Store.Backend = "redis"
				c.Redis.Addr = ""
			},
			errMsg: "redis.addr is required",
		},
		{
			name:   "empty NATS URL",
			modify: func(c *Config) { c.NATS.URL = "" },
			errMsg: "nats.url is required",
		},
		{
			name:   "zero retry attempts",
			modify: func(c *Config) { c.Retry.MaxAttempts = 0 },
			errMsg: "retry.max_attempts must be >= 1",
		},
		{
			name:   "factor below one",
			modify: func(c *Config) { c.Retry.Factor = 0.5 },
			errMsg: "retry.factor must be >= 1",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "zero outbound limit",
			modify: func(c *Config) { c.Outbound.MaxConcurrent = 0 },
			errMsg: "outbound.max_concurrent must be >= 1",
		},
		{
			name:   "auth enabled without keys",
			modify: func(c *Config) { c.Auth.Enabled = true },
			errMsg: "auth.keys is required when auth is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFromFullHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
logging:
  level: "debug"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ZMEAD_PORT", "7070")
	t.Setenv("ZMEAD_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env should override YAML: got level %q, want warn", cfg.Logging.Level)
	}
}
