package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/constants"
)

const (
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 50
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultConnectionTimeout   = 30 * time.Second
	DefaultKeepAlive           = 30 * time.Second
	DefaultSetNoDelay          = true

	// upstream error bodies are only kept for the client error message
	maxErrorBodyBytes = 64 << 10
	// complete responses are buffered when they need translating
	maxTranslatedBodyBytes = 64 << 20
)

// Configuration holds the dispatcher's transport settings.
type Configuration struct {
	ConnectionTimeout   time.Duration
	ConnectionKeepAlive time.Duration
	IdleConnTimeout     time.Duration
	DefaultTimeout      time.Duration
	StreamBufferSize    int
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

// ConfigurationFrom maps the proxy config section, filling defaults.
func ConfigurationFrom(cfg config.ProxyConfig) *Configuration {
	c := &Configuration{
		ConnectionTimeout:   cfg.ConnectionTimeout,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DefaultTimeout:      cfg.DefaultTimeout,
		StreamBufferSize:    cfg.StreamBufferSize,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
	}
	c.applyDefaults()
	return c
}

func (c *Configuration) applyDefaults() {
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.ConnectionKeepAlive == 0 {
		c.ConnectionKeepAlive = DefaultKeepAlive
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = constants.DefaultFrontendTimeout
	}
	if c.StreamBufferSize <= 0 {
		c.StreamBufferSize = constants.DefaultStreamBufferSize
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
}

// NewTransport is tuned for long lived inference streams: no compression
// so chunks are relayed as they arrive, and TCP_NODELAY for small frames.
func NewTransport(c *Configuration) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.MaxIdleConns,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   c.ConnectionTimeout,
				KeepAlive: c.ConnectionKeepAlive,
			}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(DefaultSetNoDelay)
				_ = tcpConn.SetKeepAlive(true)
				_ = tcpConn.SetKeepAlivePeriod(c.ConnectionKeepAlive)
			}
			return conn, nil
		},
		MaxResponseHeaderBytes: 32 << 10,
		WriteBufferSize:        64 << 10,
		ReadBufferSize:         64 << 10,
	}
}
