package directory

import (
	"fmt"
	"time"

	"github.com/thushan/flowgate/internal/core/domain"
)

// BackendDocument is the wire and file shape of a backend, shared by the
// seed file and the admin API. Durations are strings ("5s").
type BackendDocument struct {
	Capabilities *CapabilitiesDocument `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Pinned       PinnedDocument        `yaml:"pinned,omitempty" json:"pinned,omitempty"`
	ID           string                `yaml:"id" json:"id"`
	Name         string                `yaml:"name,omitempty" json:"name,omitempty"`
	Host         string                `yaml:"host" json:"host"`
	Dialect      string                `yaml:"dialect" json:"dialect"`
	HealthCheck  HealthCheckDocument   `yaml:"health_check,omitempty" json:"health_check,omitempty"`
	Port         int                   `yaml:"port" json:"port"`
	TLS          bool                  `yaml:"tls,omitempty" json:"tls,omitempty"`
}

type HealthCheckDocument struct {
	Method   string `yaml:"method,omitempty" json:"method,omitempty"`
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout  string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// CapabilitiesDocument leaves unset flags enabled.
type CapabilitiesDocument struct {
	AllowEmbeddings  *bool `yaml:"allow_embeddings,omitempty" json:"allow_embeddings,omitempty"`
	AllowCompletions *bool `yaml:"allow_completions,omitempty" json:"allow_completions,omitempty"`
}

type PinnedDocument struct {
	Embeddings  map[string]any `yaml:"embeddings,omitempty" json:"embeddings,omitempty"`
	Completions map[string]any `yaml:"completions,omitempty" json:"completions,omitempty"`
}

type FrontendDocument struct {
	Capabilities   *CapabilitiesDocument `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Pinned         PinnedDocument        `yaml:"pinned,omitempty" json:"pinned,omitempty"`
	ID             string                `yaml:"id" json:"id"`
	Name           string                `yaml:"name,omitempty" json:"name,omitempty"`
	Hostname       string                `yaml:"hostname" json:"hostname"`
	LoadBalancing  string                `yaml:"load_balancing,omitempty" json:"load_balancing,omitempty"`
	StickyHeader   string                `yaml:"sticky_header,omitempty" json:"sticky_header,omitempty"`
	Timeout        string                `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Backends       []string              `yaml:"backends" json:"backends"`
	RequiredModels []string              `yaml:"required_models,omitempty" json:"required_models,omitempty"`
	StickySessions bool                  `yaml:"sticky_sessions,omitempty" json:"sticky_sessions,omitempty"`
	AllowRetries   bool                  `yaml:"allow_retries,omitempty" json:"allow_retries,omitempty"`
}

// SeedDocument is the layout of the directory seed file.
type SeedDocument struct {
	Backends  []BackendDocument  `yaml:"backends"`
	Frontends []FrontendDocument `yaml:"frontends"`
}

func (d BackendDocument) ToDomain() (*domain.Backend, error) {
	dialect, err := domain.ParseDialect(d.Dialect)
	if err != nil {
		return nil, &domain.ValidationError{Field: "backend.dialect", Value: d.Dialect, Reason: err.Error()}
	}
	interval, err := parseDuration("backend.health_check.interval", d.HealthCheck.Interval)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("backend.health_check.timeout", d.HealthCheck.Timeout)
	if err != nil {
		return nil, err
	}
	return domain.NewBackend(domain.Backend{
		ID:      d.ID,
		Name:    d.Name,
		Host:    d.Host,
		Port:    d.Port,
		TLS:     d.TLS,
		Dialect: dialect,
		HealthCheck: domain.HealthCheckRecipe{
			Method:   d.HealthCheck.Method,
			Path:     d.HealthCheck.Path,
			Interval: interval,
			Timeout:  timeout,
		},
		Capabilities: d.Capabilities.toDomain(),
		Pinned:       domain.PinnedProperties{Embeddings: d.Pinned.Embeddings, Completions: d.Pinned.Completions},
	})
}

func BackendToDocument(b *domain.Backend) BackendDocument {
	return BackendDocument{
		ID:      b.ID,
		Name:    b.Name,
		Host:    b.Host,
		Port:    b.Port,
		TLS:     b.TLS,
		Dialect: b.Dialect.String(),
		HealthCheck: HealthCheckDocument{
			Method:   b.HealthCheck.Method,
			Path:     b.HealthCheck.Path,
			Interval: b.HealthCheck.Interval.String(),
			Timeout:  b.HealthCheck.Timeout.String(),
		},
		Capabilities: capabilitiesToDocument(b.Capabilities),
		Pinned:       PinnedDocument{Embeddings: b.Pinned.Embeddings, Completions: b.Pinned.Completions},
	}
}

func (d FrontendDocument) ToDomain() (*domain.Frontend, error) {
	timeout, err := parseDuration("frontend.timeout", d.Timeout)
	if err != nil {
		return nil, err
	}
	return domain.NewFrontend(domain.Frontend{
		ID:             d.ID,
		Name:           d.Name,
		Hostname:       d.Hostname,
		LoadBalancing:  domain.LoadBalancingMode(d.LoadBalancing),
		Backends:       d.Backends,
		RequiredModels: d.RequiredModels,
		StickySessions: d.StickySessions,
		StickyHeader:   d.StickyHeader,
		Timeout:        timeout,
		AllowRetries:   d.AllowRetries,
		Capabilities:   d.Capabilities.toDomain(),
		Pinned:         domain.PinnedProperties{Embeddings: d.Pinned.Embeddings, Completions: d.Pinned.Completions},
	})
}

func FrontendToDocument(f *domain.Frontend) FrontendDocument {
	return FrontendDocument{
		ID:             f.ID,
		Name:           f.Name,
		Hostname:       f.Hostname,
		LoadBalancing:  string(f.LoadBalancing),
		Backends:       f.Backends,
		RequiredModels: f.RequiredModels,
		StickySessions: f.StickySessions,
		StickyHeader:   f.StickyHeader,
		Timeout:        f.Timeout.String(),
		AllowRetries:   f.AllowRetries,
		Capabilities:   capabilitiesToDocument(f.Capabilities),
		Pinned:         PinnedDocument{Embeddings: f.Pinned.Embeddings, Completions: f.Pinned.Completions},
	}
}

func (c *CapabilitiesDocument) toDomain() domain.Capabilities {
	caps := domain.AllCapabilities()
	if c == nil {
		return caps
	}
	if c.AllowEmbeddings != nil {
		caps.AllowEmbeddings = *c.AllowEmbeddings
	}
	if c.AllowCompletions != nil {
		caps.AllowCompletions = *c.AllowCompletions
	}
	return caps
}

func capabilitiesToDocument(c domain.Capabilities) *CapabilitiesDocument {
	return &CapabilitiesDocument{AllowEmbeddings: &c.AllowEmbeddings, AllowCompletions: &c.AllowCompletions}
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Value: s, Reason: fmt.Sprintf("not a duration: %v", err)}
	}
	return d, nil
}
