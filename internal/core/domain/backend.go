package domain

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/thushan/flowgate/internal/core/constants"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// HealthCheckRecipe describes how the health monitor probes a backend.
// A HEAD probe is a bare connectivity check: any response counts as healthy.
type HealthCheckRecipe struct {
	Method   string        `json:"method"`
	Path     string        `json:"path"`
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// IsConnectivityCheck reports whether any HTTP response means healthy.
func (r HealthCheckRecipe) IsConnectivityCheck() bool {
	return r.Method == http.MethodHead
}

// Backend is a single upstream inference server.
type Backend struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	TLS          bool              `json:"tls"`
	Dialect      Dialect           `json:"dialect"`
	HealthCheck  HealthCheckRecipe `json:"health_check"`
	Capabilities Capabilities      `json:"capabilities"`
	Pinned       PinnedProperties  `json:"pinned"`
}

// NewBackend applies defaults to b and validates the result. It never
// returns a partially valid backend.
func NewBackend(b Backend) (*Backend, error) {
	nb := b
	nb.Pinned = b.Pinned.Clone()
	if nb.Name == "" {
		nb.Name = nb.ID
	}
	nb.HealthCheck.Method = strings.ToUpper(strings.TrimSpace(nb.HealthCheck.Method))
	if nb.HealthCheck.Method == "" {
		nb.HealthCheck.Method = constants.DefaultHealthCheckMethod
	}
	if nb.HealthCheck.Path == "" {
		nb.HealthCheck.Path = constants.DefaultHealthCheckPath
	}
	if nb.HealthCheck.Interval == 0 {
		nb.HealthCheck.Interval = constants.DefaultHealthCheckInterval
	}
	if nb.HealthCheck.Timeout == 0 {
		nb.HealthCheck.Timeout = constants.DefaultHealthCheckTimeout
	}
	if err := nb.Validate(); err != nil {
		return nil, err
	}
	return &nb, nil
}

func (b *Backend) Validate() error {
	if !identifierPattern.MatchString(b.ID) {
		return &ValidationError{Field: "backend.id", Value: b.ID, Reason: "must be 1-63 characters of letters, digits, '.', '_' or '-'"}
	}
	if strings.TrimSpace(b.Host) == "" || strings.ContainsAny(b.Host, "/ ") {
		return &ValidationError{Field: "backend.host", Value: b.Host, Reason: "must be a bare hostname or address"}
	}
	if b.Port < 1 || b.Port > 65535 {
		return &ValidationError{Field: "backend.port", Value: b.Port, Reason: "must be between 1 and 65535"}
	}
	if !b.Dialect.Valid() {
		return &ValidationError{Field: "backend.dialect", Value: b.Dialect, Reason: "must be ollama or openai"}
	}
	switch b.HealthCheck.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		return &ValidationError{Field: "backend.health_check.method", Value: b.HealthCheck.Method, Reason: "must be GET, HEAD or POST"}
	}
	if !strings.HasPrefix(b.HealthCheck.Path, "/") {
		return &ValidationError{Field: "backend.health_check.path", Value: b.HealthCheck.Path, Reason: "must start with /"}
	}
	if b.HealthCheck.Interval < 100*time.Millisecond {
		return &ValidationError{Field: "backend.health_check.interval", Value: b.HealthCheck.Interval, Reason: "must be at least 100ms"}
	}
	if b.HealthCheck.Timeout <= 0 || b.HealthCheck.Timeout > b.HealthCheck.Interval*10 {
		return &ValidationError{Field: "backend.health_check.timeout", Value: b.HealthCheck.Timeout, Reason: "must be positive and no more than ten intervals"}
	}
	return nil
}

// BaseURL is the scheme://host:port root every upstream path hangs off.
func (b *Backend) BaseURL() *url.URL {
	scheme := "http"
	if b.TLS {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: net.JoinHostPort(b.Host, strconv.Itoa(b.Port))}
}

// URLFor resolves an upstream path against the backend base.
func (b *Backend) URLFor(path string) string {
	u := b.BaseURL()
	u.Path = path
	return u.String()
}

func (b *Backend) HealthCheckURL() string {
	return b.URLFor(b.HealthCheck.Path)
}
