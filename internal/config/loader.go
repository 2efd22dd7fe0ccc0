package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentdock.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
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
	setString(&cfg.Server.Port, "AGENTDOCK_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTDOCK_CORS_ORIGIN")
	setString(&cfg.SQLite.Path, "AGENTDOCK_DB_PATH")
	setDuration(&cfg.SQLite.BusyTimeout, "AGENTDOCK_DB_BUSY_TIMEOUT")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Bucket, "AGENTDOCK_KV_BUCKET")
	setString(&cfg.Registry.Namespace, "AGENTDOCK_REGISTRY_NAMESPACE")
	setDuration(&cfg.Registry.CoalesceWindow, "AGENTDOCK_REGISTRY_COALESCE_WINDOW")
	setDuration(&cfg.Registry.ReadTimeout, "AGENTDOCK_REGISTRY_READ_TIMEOUT")
	setDuration(&cfg.Registry.ProbeInterval, "AGENTDOCK_REGISTRY_PROBE_INTERVAL")
	setInt64(&cfg.Registry.L1MaxBytes, "AGENTDOCK_REGISTRY_L1_MAX_BYTES")
	setDuration(&cfg.Registry.L1TTL, "AGENTDOCK_REGISTRY_L1_TTL")
	setInt(&cfg.Breaker.MaxFailures, "AGENTDOCK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTDOCK_BREAKER_TIMEOUT")
	setString(&cfg.Endpoint.Host, "AGENTDOCK_ENDPOINT_HOST")
	setDuration(&cfg.Endpoint.SettleDelay, "AGENTDOCK_ENDPOINT_SETTLE_DELAY")
	setDuration(&cfg.Endpoint.HealthInterval, "AGENTDOCK_ENDPOINT_HEALTH_INTERVAL")
	setDuration(&cfg.Endpoint.HeartbeatInterval, "AGENTDOCK_ENDPOINT_HEARTBEAT_INTERVAL")
	setInt(&cfg.Endpoint.MaxConcurrentStart, "AGENTDOCK_ENDPOINT_MAX_CONCURRENT_START")
	setDuration(&cfg.Endpoint.StartTimeout, "AGENTDOCK_ENDPOINT_START_TIMEOUT")
	setDuration(&cfg.Endpoint.ShutdownTimeout, "AGENTDOCK_ENDPOINT_SHUTDOWN_TIMEOUT")
	setString(&cfg.Logging.Level, "AGENTDOCK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTDOCK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTDOCK_LOG_ASYNC")
	setBool(&cfg.OTel.Enabled, "AGENTDOCK_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "AGENTDOCK_OTEL_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "AGENTDOCK_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.SQLite.Path == "" {
		return errors.New("sqlite.path is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Registry.CoalesceWindow <= 0 {
		return errors.New("registry.coalesce_window must be positive")
	}
	if cfg.Registry.ReadTimeout <= 0 {
		return errors.New("registry.read_timeout must be positive")
	}
	if cfg.Endpoint.MaxConcurrentStart < 1 {
		return errors.New("endpoint.max_concurrent_start must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
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
