package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/flowgate/internal/core/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Affinity.Store != StoreMemory {
		t.Errorf("Expected memory affinity store, got %s", cfg.Affinity.Store)
	}
	if cfg.Directory.Store != StoreMemory {
		t.Errorf("Expected memory directory store, got %s", cfg.Directory.Store)
	}
	if cfg.ModelSync.RequireReady {
		t.Error("Model readiness gating should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8088
  rate_limits:
    per_ip_requests_per_minute: 120
    trusted_proxy_cidrs: ["10.0.0.0/8"]
proxy:
  default_timeout: 45s
model_sync:
  schedule: "*/10 * * * *"
  require_ready: true
affinity:
  store: redis
  redis:
    addr: redis:6379
directory:
  seed_file: ./seed.yaml
  watch: true
admin:
  token: s3cret
`)
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Filename)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Server.RateLimits.PerIPRequestsPerMinute)
	assert.Len(t, cfg.Server.RateLimits.TrustedProxyCIDRsParsed, 1)
	assert.Equal(t, 45*time.Second, cfg.Proxy.DefaultTimeout)
	assert.True(t, cfg.ModelSync.RequireReady)
	assert.Equal(t, StoreRedis, cfg.Affinity.Store)
	assert.Equal(t, "redis:6379", cfg.Affinity.Redis.Addr)
	assert.Equal(t, "flowgate:affinity", cfg.Affinity.Redis.Prefix, "unset keys keep their defaults")
	assert.True(t, cfg.Directory.Watch)
	assert.True(t, cfg.Admin.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigFile, writeConfig(t, "server:\n  port: 8088\n"))
	t.Setenv("FLOWGATE_SERVER_PORT", "9999")
	t.Setenv("FLOWGATE_LOGGING_LEVEL", "debug")

	cfg, err := LoadWith(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(c *Config)
	}{
		{"port", "server.port", func(c *Config) { c.Server.Port = 0 }},
		{"cidr", "server.rate_limits.trusted_proxy_cidrs", func(c *Config) { c.Server.RateLimits.TrustedProxyCIDRs = []string{"nope"} }},
		{"cron", "model_sync.schedule", func(c *Config) { c.ModelSync.Schedule = "every so often" }},
		{"affinity store", "affinity.store", func(c *Config) { c.Affinity.Store = "etcd" }},
		{"directory store", "directory.store", func(c *Config) { c.Directory.Store = "postgres" }},
		{"sqlite path", "directory.sqlite_path", func(c *Config) { c.Directory.Store = StoreSQLite; c.Directory.SQLitePath = "" }},
		{"buffer", "proxy.stream_buffer_size", func(c *Config) { c.Proxy.StreamBufferSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(cfg)

			err := cfg.Validate()
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidate_ModelSyncDisabledSkipsSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelSync.Enabled = false
	cfg.ModelSync.Schedule = "garbage"
	assert.NoError(t, cfg.Validate())
}
