package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhuermu/zmead-sub004/internal/secrets"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "zmead.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path comes from ZMEAD_CONFIG when set; a missing file is not
// an error.
func Load() (*Config, error) {
	path := os.Getenv("ZMEAD_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("config secrets: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// resolveSecrets expands env:/file: indirections on secret-bearing
// fields so YAML files never need to hold credentials inline.
func resolveSecrets(cfg *Config) error {
	return secrets.ResolveAll(
		&cfg.Postgres.DSN,
		&cfg.Redis.Password,
		&cfg.Ledger.APIKey,
		&cfg.Recognizer.APIKey,
		&cfg.Capability.APIKey,
		&cfg.Notify.Slack.WebhookURL,
		&cfg.Notify.Email.Password,
		&cfg.MCP.APIKey,
	)
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ZMEAD_PORT")
	setString(&cfg.Server.CORSOrigin, "ZMEAD_CORS_ORIGIN")

	setString(&cfg.Store.Backend, "ZMEAD_STORE_BACKEND")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ZMEAD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ZMEAD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ZMEAD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ZMEAD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ZMEAD_PG_HEALTH_CHECK")

	setString(&cfg.Redis.Addr, "ZMEAD_REDIS_ADDR")
	setString(&cfg.Redis.Password, "ZMEAD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ZMEAD_REDIS_DB")

	setString(&cfg.NATS.URL, "NATS_URL")

	setBool(&cfg.Cache.Enabled, "ZMEAD_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "ZMEAD_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "ZMEAD_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "ZMEAD_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "ZMEAD_CACHE_L2_TTL")

	setString(&cfg.Ledger.BaseURL, "ZMEAD_LEDGER_URL")
	setString(&cfg.Ledger.APIKey, "ZMEAD_LEDGER_API_KEY")
	setDuration(&cfg.Ledger.Timeout, "ZMEAD_LEDGER_TIMEOUT")

	setString(&cfg.Recognizer.BaseURL, "ZMEAD_RECOGNIZER_URL")
	setString(&cfg.Recognizer.APIKey, "ZMEAD_RECOGNIZER_API_KEY")
	setDuration(&cfg.Recognizer.Timeout, "ZMEAD_RECOGNIZER_TIMEOUT")

	setString(&cfg.Capability.BaseURL, "ZMEAD_CAPABILITY_URL")
	setString(&cfg.Capability.APIKey, "ZMEAD_CAPABILITY_API_KEY")
	setDuration(&cfg.Capability.Timeout, "ZMEAD_CAPABILITY_TIMEOUT")

	setInt(&cfg.Retry.MaxAttempts, "ZMEAD_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "ZMEAD_RETRY_BASE_DELAY")
	setFloat64(&cfg.Retry.Factor, "ZMEAD_RETRY_FACTOR")
	setDuration(&cfg.Retry.MaxDelay, "ZMEAD_RETRY_MAX_DELAY")
	setDuration(&cfg.Retry.AttemptTimeout, "ZMEAD_RETRY_ATTEMPT_TIMEOUT")

	setInt(&cfg.Breaker.MaxFailures, "ZMEAD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ZMEAD_BREAKER_TIMEOUT")

	setDuration(&cfg.Workflow.TurnTimeout, "ZMEAD_TURN_TIMEOUT")
	setInt(&cfg.Workflow.MaxPlanSteps, "ZMEAD_MAX_PLAN_STEPS")
	setDuration(&cfg.Workflow.ConfirmationTTL, "ZMEAD_CONFIRMATION_TTL")
	setDuration(&cfg.Workflow.StateTTL, "ZMEAD_STATE_TTL")

	setInt64(&cfg.Outbound.MaxConcurrent, "ZMEAD_OUTBOUND_MAX_CONCURRENT")

	setBool(&cfg.Auth.Enabled, "ZMEAD_AUTH_ENABLED")
	setStrings(&cfg.Auth.Keys, "ZMEAD_AUTH_KEYS")

	setFloat64(&cfg.Rate.RequestsPerSecond, "ZMEAD_RATE_RPS")
	setInt(&cfg.Rate.Burst, "ZMEAD_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "ZMEAD_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "ZMEAD_RATE_MAX_IDLE_TIME")

	setString(&cfg.Notify.Slack.WebhookURL, "ZMEAD_SLACK_WEBHOOK_URL")
	setString(&cfg.Notify.Email.Host, "ZMEAD_EMAIL_HOST")
	setInt(&cfg.Notify.Email.Port, "ZMEAD_EMAIL_PORT")
	setString(&cfg.Notify.Email.From, "ZMEAD_EMAIL_FROM")
	setString(&cfg.Notify.Email.Password, "ZMEAD_EMAIL_PASSWORD")
	setString(&cfg.Notify.Email.To, "ZMEAD_EMAIL_TO")

	setBool(&cfg.MCP.Enabled, "ZMEAD_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "ZMEAD_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "ZMEAD_MCP_API_KEY")

	setBool(&cfg.Telemetry.Enabled, "ZMEAD_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "ZMEAD_OTEL_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "ZMEAD_OTEL_INSECURE")

	setString(&cfg.Logging.Level, "ZMEAD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ZMEAD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ZMEAD_LOG_ASYNC")
}

// validate checks that required fields are set and limits are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("store.backend must be postgres, redis or memory, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Store.Backend == "redis" && cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if cfg.Retry.Factor < 1 {
		return errors.New("retry.factor must be >= 1")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return errors.New("retry.max_delay must be >= retry.base_delay")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Workflow.MaxPlanSteps < 1 {
		return errors.New("workflow.max_plan_steps must be >= 1")
	}
	if cfg.Outbound.MaxConcurrent < 1 {
		return errors.New("outbound.max_concurrent must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.Keys) == 0 {
		return errors.New("auth.keys is required when auth is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings splits a comma-separated env value into a slice.
func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
