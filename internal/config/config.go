// Package config implements a layered configuration load: a DefaultConfig
// struct overridden first by an optional JSON or YAML file (LoadFromFile,
// format chosen by extension), then by LOGLINE_* environment variables
// (LoadFromEnv).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HTTPConfig holds the gateway's bind address and routing settings.
type HTTPConfig struct {
	BindAddress string `json:"bind_address" yaml:"bind_address"`
	APIPrefix   string `json:"api_prefix" yaml:"api_prefix"`
	CORSOrigin  string `json:"cors_allowed_origin" yaml:"cors_allowed_origin"`
}

// PluginConfig holds the WASM plugin host's discovery and reload settings.
type PluginConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	Directory       string        `json:"directory" yaml:"directory"`
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
}

// StreamConfig holds the SSE broker's retention and backpressure settings.
type StreamConfig struct {
	BufferSize          int           `json:"buffer_size" yaml:"buffer_size"`
	SubscriberQueueSize int           `json:"subscriber_queue_size" yaml:"subscriber_queue_size"`
	HeartbeatInterval   time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"` // otlp-http, none
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics exposition settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// LoggingConfig holds structured operational logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`  // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// ObservabilityConfig bundles the ambient-stack observability settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// StoreBackend names which persistence backend the serve command connects
// at startup, selected by LOGLINE_STORE_BACKEND. The connection serves the
// database health checks only; the runtime's registry, stores, and
// timeline stay in memory whichever backend is selected.
type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendRedis    StoreBackend = "redis"
)

// PostgresConfig holds Postgres connection settings, used only when
// Store.Backend is StoreBackendPostgres.
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// RedisConfig holds Redis connection settings, used only when
// Store.Backend is StoreBackendRedis.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// StoreConfig selects and configures the collaborator store backend.
type StoreConfig struct {
	Backend  StoreBackend   `json:"backend" yaml:"backend"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

// Config is the full application configuration tree.
type Config struct {
	HTTP          HTTPConfig          `json:"http" yaml:"http"`
	Plugins       PluginConfig        `json:"plugins" yaml:"plugins"`
	Stream        StreamConfig        `json:"stream" yaml:"stream"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Store         StoreConfig         `json:"store" yaml:"store"`

	// MaxOrchestrationConcurrency bounds ORCHESTRATE's "parallel" mode
	// fan-out width.
	MaxOrchestrationConcurrency int `json:"max_orchestration_concurrency" yaml:"max_orchestration_concurrency"`
}

// DefaultConfig returns the configuration tree's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			BindAddress: "127.0.0.1:3000",
			APIPrefix:   "api",
		},
		Plugins: PluginConfig{
			Enabled:         true,
			Directory:       "./plugins",
			RefreshInterval: 30 * time.Second,
		},
		Stream: StreamConfig{
			BufferSize:          1000,
			SubscriberQueueSize: 256,
			HeartbeatInterval:   30 * time.Second,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "logline-motor",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    9090,
				Path:    "/metrics",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
		Store: StoreConfig{
			Backend: StoreBackendMemory,
		},
		MaxOrchestrationConcurrency: 8,
	}
}

// LoadFromFile reads a JSON or YAML configuration file (selected by the
// path's extension, YAML for .yaml/.yml, JSON otherwise) on top of
// DefaultConfig, leaving unset fields at their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	}
	return cfg, nil
}

// LoadFromEnv applies LOGLINE_* environment variable overrides to cfg.
// File and env layers are each optional.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LOGLINE_BIND_ADDRESS"); v != "" {
		cfg.HTTP.BindAddress = v
	}
	if v := os.Getenv("LOGLINE_API_PREFIX"); v != "" {
		cfg.HTTP.APIPrefix = v
	}
	if v := os.Getenv("LOGLINE_CORS_ALLOWED_ORIGIN"); v != "" {
		cfg.HTTP.CORSOrigin = v
	}

	if v := os.Getenv("LOGLINE_ENABLE_PLUGINS"); v != "" {
		cfg.Plugins.Enabled = parseBool(v)
	}
	if v := os.Getenv("LOGLINE_PLUGIN_DIRECTORY"); v != "" {
		cfg.Plugins.Directory = v
	}
	if v := os.Getenv("LOGLINE_PLUGIN_REFRESH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Plugins.RefreshInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("LOGLINE_STREAM_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.BufferSize = n
		}
	}
	if v := os.Getenv("LOGLINE_SUBSCRIBER_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.SubscriberQueueSize = n
		}
	}
	if v := os.Getenv("LOGLINE_HEARTBEAT_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.HeartbeatInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("LOGLINE_ENABLE_METRICS"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("LOGLINE_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observability.Metrics.Port = n
		}
	}

	if v := os.Getenv("LOGLINE_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("LOGLINE_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}

	if v := os.Getenv("LOGLINE_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("LOGLINE_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("LOGLINE_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}

	if v := os.Getenv("LOGLINE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = StoreBackend(v)
	}
	if v := os.Getenv("LOGLINE_POSTGRES_DSN"); v != "" {
		cfg.Store.Postgres.DSN = v
	}
	if v := os.Getenv("LOGLINE_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("LOGLINE_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("LOGLINE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.Redis.DB = n
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
