// Package config loads the gateway configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Static   StaticConfig   `mapstructure:"static"`
	Health   HealthConfig   `mapstructure:"health"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type UpstreamConfig struct {
	// Name is the logical service name resolved via DNS. StaticAddr, when
	// set, bypasses DNS with a fixed host:port.
	Name       string        `mapstructure:"name"`
	Port       int           `mapstructure:"port"`
	StaticAddr string        `mapstructure:"static_addr"`
	TTL        time.Duration `mapstructure:"ttl"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

type StaticConfig struct {
	// Dir is the static-asset root served at /. APIPrefix is forwarded to
	// the upstream byte-for-byte.
	Dir       string `mapstructure:"dir"`
	APIPrefix string `mapstructure:"api_prefix"`
}

type HealthConfig struct {
	// Path is the upstream's functional readiness endpoint.
	Path             string        `mapstructure:"path"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	StartGrace       time.Duration `mapstructure:"start_grace"`

	// WaitReadyTimeout bounds how long startup blocks for hard
	// dependencies before giving up.
	WaitReadyTimeout time.Duration `mapstructure:"wait_ready_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("upstream.name", "backend")
	v.SetDefault("upstream.port", 5000)
	v.SetDefault("upstream.ttl", "30s")
	v.SetDefault("upstream.connect_timeout", "2s")
	v.SetDefault("upstream.read_timeout", "30s")

	v.SetDefault("static.dir", "./static")
	v.SetDefault("static.api_prefix", "/api/")

	v.SetDefault("health.path", "/health")
	v.SetDefault("health.interval", "5s")
	v.SetDefault("health.timeout", "3s")
	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.start_grace", "15s")
	v.SetDefault("health.wait_ready_timeout", "2m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/traceway/gateway")
	}

	v.SetEnvPrefix("GATEWAY")
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

	if cfg.Upstream.Name == "" && cfg.Upstream.StaticAddr == "" {
		return nil, fmt.Errorf("upstream.name or upstream.static_addr is required")
	}
	if cfg.Upstream.TTL <= 0 {
		return nil, fmt.Errorf("upstream.ttl must be positive")
	}

	return &cfg, nil
}
