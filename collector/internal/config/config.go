// Package config loads the collector configuration from file and
// environment, with defaults suitable for local development.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	DLQ       DLQConfig       `mapstructure:"dlq"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PipelineConfig struct {
	// MemoryLimitBytes is the hard ceiling for in-flight batch bytes across
	// all pipelines. SpikeMarginBytes is headroom withheld below the ceiling
	// so one admit cannot push usage through it.
	MemoryLimitBytes int64 `mapstructure:"memory_limit_bytes"`
	SpikeMarginBytes int64 `mapstructure:"spike_margin_bytes"`

	QueueSize     int           `mapstructure:"queue_size"`
	FlushRecords  int           `mapstructure:"flush_records"`
	FlushAge      time.Duration `mapstructure:"flush_age"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// ResourceAttributes are added to every record that does not already
	// carry them.
	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`
}

type SinksConfig struct {
	Traces  SinkConfig `mapstructure:"traces"`
	Logs    SinkConfig `mapstructure:"logs"`
	Metrics SinkConfig `mapstructure:"metrics"`
}

type SinkConfig struct {
	// Endpoint is a host:port for gRPC sinks or a base URL for HTTP sinks.
	Endpoint string `mapstructure:"endpoint"`

	QueueSize     int           `mapstructure:"queue_size"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	RetryInitial  time.Duration `mapstructure:"retry_initial"`
	RetryMax      time.Duration `mapstructure:"retry_max"`
	RetryAttempts uint64        `mapstructure:"retry_attempts"`
}

type DLQConfig struct {
	// Backend selects "file", "jetstream", or "none".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	NATSURL string `mapstructure:"nats_url"`
}

type IngestionConfig struct {
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	RedisURL          string        `mapstructure:"redis_url"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.http_port", 4318)
	v.SetDefault("server.grpc_port", 4317)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("pipeline.memory_limit_bytes", 256*1024*1024)
	v.SetDefault("pipeline.spike_margin_bytes", 16*1024*1024)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.flush_records", 512)
	v.SetDefault("pipeline.flush_age", "5s")
	v.SetDefault("pipeline.flush_interval", "1s")

	// Sink defaults assume a compose-style stack; they deliberately avoid
	// the collector's own listen ports.
	v.SetDefault("sinks.traces.endpoint", "tempo:4317")
	v.SetDefault("sinks.logs.endpoint", "http://loki:3100")
	v.SetDefault("sinks.metrics.endpoint", "http://mimir:4318")
	for _, sink := range []string{"traces", "logs", "metrics"} {
		v.SetDefault("sinks."+sink+".queue_size", 64)
		v.SetDefault("sinks."+sink+".send_timeout", "30s")
		v.SetDefault("sinks."+sink+".retry_initial", "500ms")
		v.SetDefault("sinks."+sink+".retry_max", "30s")
		v.SetDefault("sinks."+sink+".retry_attempts", 5)
	}

	v.SetDefault("dlq.backend", "file")
	v.SetDefault("dlq.path", "/var/lib/traceway/dlq")
	v.SetDefault("dlq.nats_url", "nats://localhost:4222")

	v.SetDefault("ingestion.max_body_bytes", 8*1024*1024)
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 10000)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("ingestion.redis_url", "redis://localhost:6379")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/traceway/collector")
	}

	v.SetEnvPrefix("COLLECTOR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the collector cannot start with.
func (c *Config) Validate() error {
	if c.Pipeline.MemoryLimitBytes <= 0 {
		return fmt.Errorf("pipeline.memory_limit_bytes must be positive")
	}
	if c.Pipeline.SpikeMarginBytes < 0 {
		return fmt.Errorf("pipeline.spike_margin_bytes must not be negative")
	}
	if c.Pipeline.SpikeMarginBytes >= c.Pipeline.MemoryLimitBytes {
		return fmt.Errorf("pipeline.spike_margin_bytes must be below the memory limit")
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		return fmt.Errorf("server.http_port and server.grpc_port must differ")
	}
	switch c.DLQ.Backend {
	case "file", "jetstream", "none":
	default:
		return fmt.Errorf("dlq.backend must be file, jetstream, or none, got %q", c.DLQ.Backend)
	}
	return nil
}
