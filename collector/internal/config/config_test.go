package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4318, cfg.Server.HTTPPort)
	assert.Equal(t, 4317, cfg.Server.GRPCPort)
	assert.Equal(t, int64(256*1024*1024), cfg.Pipeline.MemoryLimitBytes)
	assert.Equal(t, "tempo:4317", cfg.Sinks.Traces.Endpoint)
	assert.Equal(t, "file", cfg.DLQ.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Ingestion.RateLimitEnabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9318
pipeline:
  memory_limit_bytes: 1048576
  spike_margin_bytes: 65536
sinks:
  logs:
    endpoint: http://loki.internal:3100
dlq:
  backend: jetstream
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9318, cfg.Server.HTTPPort)
	assert.Equal(t, int64(1048576), cfg.Pipeline.MemoryLimitBytes)
	assert.Equal(t, "http://loki.internal:3100", cfg.Sinks.Logs.Endpoint)
	assert.Equal(t, "jetstream", cfg.DLQ.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4317, cfg.Server.GRPCPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero memory limit",
			mutate:  func(c *Config) { c.Pipeline.MemoryLimitBytes = 0 },
			wantErr: "memory_limit_bytes",
		},
		{
			name: "spike margin above limit",
			mutate: func(c *Config) {
				c.Pipeline.MemoryLimitBytes = 100
				c.Pipeline.SpikeMarginBytes = 100
			},
			wantErr: "spike_margin_bytes",
		},
		{
			name:    "colliding ports",
			mutate:  func(c *Config) { c.Server.GRPCPort = c.Server.HTTPPort },
			wantErr: "must differ",
		},
		{
			name:    "unknown dlq backend",
			mutate:  func(c *Config) { c.DLQ.Backend = "kafka" },
			wantErr: "dlq.backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
