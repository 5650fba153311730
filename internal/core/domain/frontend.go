package domain

import (
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/thushan/flowgate/internal/core/constants"
)

type LoadBalancingMode string

const (
	LoadBalancingRoundRobin LoadBalancingMode = "round-robin"

	// CatchAllHostname matches any Host header no other frontend claims.
	CatchAllHostname = "*"
)

// Frontend is a named routing policy exposed to clients.
type Frontend struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Hostname       string            `json:"hostname"`
	LoadBalancing  LoadBalancingMode `json:"load_balancing"`
	Backends       []string          `json:"backends"`
	RequiredModels []string          `json:"required_models"`
	StickySessions bool              `json:"sticky_sessions"`
	StickyHeader   string            `json:"sticky_header"`
	Timeout        time.Duration     `json:"timeout"`
	AllowRetries   bool              `json:"allow_retries"`
	Capabilities   Capabilities      `json:"capabilities"`
	Pinned         PinnedProperties  `json:"pinned"`
}

// NewFrontend applies defaults to f and validates the result. Membership
// against the backend directory is checked by the directory itself.
func NewFrontend(f Frontend) (*Frontend, error) {
	nf := f
	nf.Backends = slices.Clone(f.Backends)
	nf.RequiredModels = slices.Clone(f.RequiredModels)
	nf.Pinned = f.Pinned.Clone()
	if nf.Name == "" {
		nf.Name = nf.ID
	}
	if nf.LoadBalancing == "" {
		nf.LoadBalancing = LoadBalancingRoundRobin
	}
	if nf.StickyHeader == "" {
		nf.StickyHeader = constants.DefaultStickyHeader
	}
	if nf.Timeout == 0 {
		nf.Timeout = constants.DefaultFrontendTimeout
	}
	nf.Hostname = strings.ToLower(strings.TrimSpace(nf.Hostname))
	if err := nf.Validate(); err != nil {
		return nil, err
	}
	return &nf, nil
}

func (f *Frontend) Validate() error {
	if !identifierPattern.MatchString(f.ID) {
		return &ValidationError{Field: "frontend.id", Value: f.ID, Reason: "must be 1-63 characters of letters, digits, '.', '_' or '-'"}
	}
	if f.Hostname == "" {
		return &ValidationError{Field: "frontend.hostname", Value: f.Hostname, Reason: "must be a hostname or *"}
	}
	if f.LoadBalancing != LoadBalancingRoundRobin {
		return &ValidationError{Field: "frontend.load_balancing", Value: f.LoadBalancing, Reason: "only round-robin is supported"}
	}
	if f.Timeout < 0 {
		return &ValidationError{Field: "frontend.timeout", Value: f.Timeout, Reason: "must not be negative"}
	}
	seen := make(map[string]struct{}, len(f.Backends))
	for _, id := range f.Backends {
		if _, dup := seen[id]; dup {
			return &ValidationError{Field: "frontend.backends", Value: id, Reason: "listed more than once"}
		}
		seen[id] = struct{}{}
	}
	if strings.ContainsAny(f.StickyHeader, " :") {
		return &ValidationError{Field: "frontend.sticky_header", Value: f.StickyHeader, Reason: "not a valid header name"}
	}
	return nil
}

func (f *Frontend) HasMember(backendID string) bool {
	return slices.Contains(f.Backends, backendID)
}

// StickyKey returns the session key carried by the request, or "" when
// sticky sessions are off or the header is absent.
func (f *Frontend) StickyKey(h http.Header) string {
	if !f.StickySessions {
		return ""
	}
	return strings.TrimSpace(h.Get(f.StickyHeader))
}

// MatchesHost compares a request Host header (port ignored) with the
// frontend hostname.
func (f *Frontend) MatchesHost(host string) bool {
	if f.Hostname == CatchAllHostname {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.EqualFold(f.Hostname, host)
}

func (f *Frontend) IsCatchAll() bool {
	return f.Hostname == CatchAllHostname
}
