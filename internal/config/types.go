package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway
type Config struct {
	v         *viper.Viper
	Filename  string          `mapstructure:"-"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Affinity  AffinityConfig  `mapstructure:"affinity"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	ModelSync ModelSyncConfig `mapstructure:"model_sync"`
	Server    ServerConfig    `mapstructure:"server"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Health    HealthConfig    `mapstructure:"health"`
}

type ServerConfig struct {
	Host            string              `mapstructure:"host"`
	ProfilerAddress string              `mapstructure:"profiler_address"`
	RateLimits      ServerRateLimits    `mapstructure:"rate_limits"`
	RequestLimits   ServerRequestLimits `mapstructure:"request_limits"`
	Port            int                 `mapstructure:"port"`
	ReadTimeout     time.Duration       `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration       `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration       `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration       `mapstructure:"shutdown_timeout"`
	RequestLogging  bool                `mapstructure:"request_logging"`
	Profiler        bool                `mapstructure:"profiler"`
}

func (s *ServerConfig) GetAddress() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

type ServerRequestLimits struct {
	MaxBodySize   int64 `mapstructure:"max_body_size"`
	MaxHeaderSize int64 `mapstructure:"max_header_size"`
}

// ServerRateLimits configures the token buckets on the client surfaces.
// Zero disables a limit.
type ServerRateLimits struct {
	TrustedProxyCIDRs       []string      `mapstructure:"trusted_proxy_cidrs"`
	TrustedProxyCIDRsParsed []*net.IPNet  `mapstructure:"-"`
	GlobalRequestsPerMinute int           `mapstructure:"global_requests_per_minute"`
	PerIPRequestsPerMinute  int           `mapstructure:"per_ip_requests_per_minute"`
	BurstSize               int           `mapstructure:"burst_size"`
	HealthRequestsPerMinute int           `mapstructure:"health_requests_per_minute"`
	CleanupInterval         time.Duration `mapstructure:"cleanup_interval"`
	TrustProxyHeaders       bool          `mapstructure:"trust_proxy_headers"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Theme      string `mapstructure:"theme"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	FileOutput bool   `mapstructure:"file_output"`
}

type ProxyConfig struct {
	ConnectionTimeout   time.Duration `mapstructure:"connection_timeout"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	StreamBufferSize    int           `mapstructure:"stream_buffer_size"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
}

type HealthConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
}

type ModelSyncConfig struct {
	Schedule     string        `mapstructure:"schedule"`
	PullTimeout  time.Duration `mapstructure:"pull_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	Enabled      bool          `mapstructure:"enabled"`
	RequireReady bool          `mapstructure:"require_ready"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

type AffinityConfig struct {
	Store string      `mapstructure:"store"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
	DB       int    `mapstructure:"db"`
}

type DirectoryConfig struct {
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
	SeedFile   string `mapstructure:"seed_file"`
	Watch      bool   `mapstructure:"watch"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
	Enabled   bool   `mapstructure:"enabled"`
}

// AdminConfig guards the backend/frontend management API. An empty token
// leaves the admin routes unmounted.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

func (a AdminConfig) Enabled() bool {
	return a.Token != ""
}
