package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/util"
	"github.com/thushan/flowgate/pkg/container"
)

const (
	DefaultPort        = 19850
	DefaultHost        = "localhost"
	DefaultContainerIP = "0.0.0.0"

	EnvPrefix     = "FLOWGATE"
	EnvConfigFile = "FLOWGATE_CONFIG_FILE"
)

func DefaultConfig() *Config {
	host := DefaultHost
	if container.IsContainerised() {
		host = DefaultContainerIP
	}
	return &Config{
		Server: ServerConfig{
			Host:            host,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streams can run for minutes
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			ProfilerAddress: "localhost:19841",
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   50 * units.MiB,
				MaxHeaderSize: 512 * units.KiB,
			},
			RateLimits: ServerRateLimits{
				BurstSize:       50,
				CleanupInterval: 5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Proxy: ProxyConfig{
			ConnectionTimeout:   30 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			DefaultTimeout:      constants.DefaultFrontendTimeout,
			StreamBufferSize:    constants.DefaultStreamBufferSize,
			MaxIdleConnsPerHost: 32,
		},
		Health: HealthConfig{
			DefaultInterval: constants.DefaultHealthCheckInterval,
			DefaultTimeout:  constants.DefaultHealthCheckTimeout,
			SyncInterval:    time.Second,
		},
		ModelSync: ModelSyncConfig{
			Enabled:     true,
			Schedule:    "@every 5m",
			PullTimeout: 30 * time.Minute,
			Concurrency: 2,
		},
		Affinity: AffinityConfig{
			Store: StoreMemory,
			Redis: RedisConfig{Addr: "localhost:6379", Prefix: "flowgate:affinity"},
		},
		Directory: DirectoryConfig{
			Store:      StoreMemory,
			SQLitePath: "./flowgate.db",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "flowgate",
			Path:      constants.PathMetrics,
		},
	}
}

// Load reads config.yaml from . or ./config (or FLOWGATE_CONFIG_FILE),
// then applies FLOWGATE_* environment overrides.
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

func LoadWith(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()
	setDefaults(v, config)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.Filename = v.ConfigFileUsed()
	config.v = v

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// OnChange watches the loaded file and hands the callback a freshly
// decoded and validated copy. Invalid edits are reported, not applied.
func (c *Config) OnChange(fn func(fsnotify.Event, *Config, error)) {
	if c.v == nil || c.Filename == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		next := DefaultConfig()
		if err := c.v.Unmarshal(next); err != nil {
			fn(e, nil, fmt.Errorf("unable to decode config: %w", err))
			return
		}
		next.Filename = c.Filename
		next.v = c.v
		if err := next.Validate(); err != nil {
			fn(e, nil, err)
			return
		}
		fn(e, next, nil)
	})
	c.v.WatchConfig()
}

// Validate checks settings that would otherwise fail deep inside a
// component at start up.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &domain.ConfigurationError{Field: "server.port", Reason: fmt.Sprintf("%d is not a valid port", c.Server.Port)}
	}
	if c.Server.RequestLimits.MaxBodySize < 0 {
		return &domain.ConfigurationError{Field: "server.request_limits.max_body_size", Reason: "must not be negative"}
	}

	cidrs, err := util.ParseTrustedCIDRs(c.Server.RateLimits.TrustedProxyCIDRs)
	if err != nil {
		return &domain.ConfigurationError{Field: "server.rate_limits.trusted_proxy_cidrs", Reason: "invalid CIDR", Err: err}
	}
	c.Server.RateLimits.TrustedProxyCIDRsParsed = cidrs

	if c.Proxy.StreamBufferSize <= 0 {
		return &domain.ConfigurationError{Field: "proxy.stream_buffer_size", Reason: "must be positive"}
	}
	if c.Health.DefaultInterval <= 0 || c.Health.DefaultTimeout <= 0 {
		return &domain.ConfigurationError{Field: "health", Reason: "default_interval and default_timeout must be positive"}
	}

	if c.ModelSync.Enabled {
		if _, err := cron.ParseStandard(c.ModelSync.Schedule); err != nil {
			return &domain.ConfigurationError{Field: "model_sync.schedule", Reason: "not a valid cron schedule", Err: err}
		}
		if c.ModelSync.Concurrency < 1 {
			return &domain.ConfigurationError{Field: "model_sync.concurrency", Reason: "must be at least 1"}
		}
	}

	switch c.Affinity.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Affinity.Redis.Addr == "" {
			return &domain.ConfigurationError{Field: "affinity.redis.addr", Reason: "required when affinity.store is redis"}
		}
	default:
		return &domain.ConfigurationError{Field: "affinity.store", Reason: fmt.Sprintf("%q must be memory or redis", c.Affinity.Store)}
	}

	switch c.Directory.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.Directory.SQLitePath == "" {
			return &domain.ConfigurationError{Field: "directory.sqlite_path", Reason: "required when directory.store is sqlite"}
		}
	default:
		return &domain.ConfigurationError{Field: "directory.store", Reason: fmt.Sprintf("%q must be memory or sqlite", c.Directory.Store)}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return &domain.ConfigurationError{Field: "metrics.path", Reason: "must start with /"}
	}
	return nil
}

// setDefaults registers every key with viper so FLOWGATE_* variables can
// override settings that are absent from the file.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.request_logging", c.Server.RequestLogging)
	v.SetDefault("server.profiler", c.Server.Profiler)
	v.SetDefault("server.profiler_address", c.Server.ProfilerAddress)
	v.SetDefault("server.request_limits.max_body_size", c.Server.RequestLimits.MaxBodySize)
	v.SetDefault("server.request_limits.max_header_size", c.Server.RequestLimits.MaxHeaderSize)
	v.SetDefault("server.rate_limits.global_requests_per_minute", c.Server.RateLimits.GlobalRequestsPerMinute)
	v.SetDefault("server.rate_limits.per_ip_requests_per_minute", c.Server.RateLimits.PerIPRequestsPerMinute)
	v.SetDefault("server.rate_limits.health_requests_per_minute", c.Server.RateLimits.HealthRequestsPerMinute)
	v.SetDefault("server.rate_limits.burst_size", c.Server.RateLimits.BurstSize)
	v.SetDefault("server.rate_limits.cleanup_interval", c.Server.RateLimits.CleanupInterval)
	v.SetDefault("server.rate_limits.trust_proxy_headers", c.Server.RateLimits.TrustProxyHeaders)
	v.SetDefault("server.rate_limits.trusted_proxy_cidrs", c.Server.RateLimits.TrustedProxyCIDRs)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.theme", c.Logging.Theme)
	v.SetDefault("logging.log_dir", c.Logging.LogDir)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.file_output", c.Logging.FileOutput)

	v.SetDefault("proxy.connection_timeout", c.Proxy.ConnectionTimeout)
	v.SetDefault("proxy.idle_conn_timeout", c.Proxy.IdleConnTimeout)
	v.SetDefault("proxy.default_timeout", c.Proxy.DefaultTimeout)
	v.SetDefault("proxy.stream_buffer_size", c.Proxy.StreamBufferSize)
	v.SetDefault("proxy.max_idle_conns_per_host", c.Proxy.MaxIdleConnsPerHost)

	v.SetDefault("health.default_interval", c.Health.DefaultInterval)
	v.SetDefault("health.default_timeout", c.Health.DefaultTimeout)
	v.SetDefault("health.sync_interval", c.Health.SyncInterval)

	v.SetDefault("model_sync.enabled", c.ModelSync.Enabled)
	v.SetDefault("model_sync.schedule", c.ModelSync.Schedule)
	v.SetDefault("model_sync.pull_timeout", c.ModelSync.PullTimeout)
	v.SetDefault("model_sync.concurrency", c.ModelSync.Concurrency)
	v.SetDefault("model_sync.require_ready", c.ModelSync.RequireReady)

	v.SetDefault("affinity.store", c.Affinity.Store)
	v.SetDefault("affinity.redis.addr", c.Affinity.Redis.Addr)
	v.SetDefault("affinity.redis.password", c.Affinity.Redis.Password)
	v.SetDefault("affinity.redis.db", c.Affinity.Redis.DB)
	v.SetDefault("affinity.redis.prefix", c.Affinity.Redis.Prefix)

	v.SetDefault("directory.store", c.Directory.Store)
	v.SetDefault("directory.sqlite_path", c.Directory.SQLitePath)
	v.SetDefault("directory.seed_file", c.Directory.SeedFile)
	v.SetDefault("directory.watch", c.Directory.Watch)

	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
	v.SetDefault("metrics.namespace", c.Metrics.Namespace)
	v.SetDefault("metrics.path", c.Metrics.Path)

	v.SetDefault("admin.token", c.Admin.Token)
}
