// Package config provides hierarchical configuration loading for agentdock.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the agentdock service.
type Config struct {
	Server   Server   `yaml:"server"`
	SQLite   SQLite   `yaml:"sqlite"`
	NATS     NATS     `yaml:"nats"`
	Registry Registry `yaml:"registry"`
	Breaker  Breaker  `yaml:"breaker"`
	Endpoint Endpoint `yaml:"endpoint"`
	Logging  Logging  `yaml:"logging"`
	OTel     OTel     `yaml:"otel"`
}

// Server holds the facade HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// SQLite holds the local agent store configuration.
type SQLite struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// NATS holds NATS JetStream configuration for the remote registry and the
// task dispatch queue.
type NATS struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

// Registry holds remote registry adapter tuning.
type Registry struct {
	Namespace      string        `yaml:"namespace"`
	CoalesceWindow time.Duration `yaml:"coalesce_window"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	L1MaxBytes     int64         `yaml:"l1_max_bytes"`
	L1TTL          time.Duration `yaml:"l1_ttl"`
}

// Breaker holds circuit breaker configuration for registry writes.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Endpoint holds per-agent endpoint server lifecycle tuning.
type Endpoint struct {
	Host               string        `yaml:"host"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
	HealthInterval     time.Duration `yaml:"health_interval"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	MaxConcurrentStart int           `yaml:"max_concurrent_start"`
	StartTimeout       time.Duration `yaml:"start_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// OTel holds OpenTelemetry exporter configuration.
type OTel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8642",
			CORSOrigin: "http://localhost:3000",
		},
		SQLite: SQLite{
			Path:        "agentdock.db",
			BusyTimeout: 5 * time.Second,
		},
		NATS: NATS{
			URL:    "nats://localhost:4222",
			Bucket: "AGENTDOCK",
		},
		Registry: Registry{
			Namespace:      "agentdock",
			CoalesceWindow: 100 * time.Millisecond,
			ReadTimeout:    2 * time.Second,
			ProbeInterval:  15 * time.Second,
			L1MaxBytes:     8 << 20,
			L1TTL:          5 * time.Second,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Endpoint: Endpoint{
			Host:               "127.0.0.1",
			SettleDelay:        250 * time.Millisecond,
			HealthInterval:     30 * time.Second,
			HeartbeatInterval:  time.Minute,
			MaxConcurrentStart: 4,
			StartTimeout:       10 * time.Second,
			ShutdownTimeout:    5 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentdock",
		},
		OTel: OTel{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Insecure: true,
		},
	}
}
