package domain

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_AppliesDefaults(t *testing.T) {
	b, err := NewBackend(Backend{ID: "gpu-1", Host: "10.0.0.5", Port: 11434, Dialect: DialectOllama})
	require.NoError(t, err)

	assert.Equal(t, "gpu-1", b.Name)
	assert.Equal(t, http.MethodGet, b.HealthCheck.Method)
	assert.Equal(t, "/", b.HealthCheck.Path)
	assert.Equal(t, 5*time.Second, b.HealthCheck.Interval)
	assert.Equal(t, "http://10.0.0.5:11434", b.BaseURL().String())
	assert.Equal(t, "http://10.0.0.5:11434/api/tags", b.URLFor("/api/tags"))
}

func TestNewBackend_Validation(t *testing.T) {
	base := Backend{ID: "b1", Host: "localhost", Port: 8080, Dialect: DialectOpenAI}

	tests := []struct {
		name  string
		field string
		edit  func(b *Backend)
	}{
		{"bad id", "backend.id", func(b *Backend) { b.ID = "-nope" }},
		{"empty host", "backend.host", func(b *Backend) { b.Host = "" }},
		{"host with scheme", "backend.host", func(b *Backend) { b.Host = "http://x" }},
		{"port zero", "backend.port", func(b *Backend) { b.Port = 0 }},
		{"port too big", "backend.port", func(b *Backend) { b.Port = 70000 }},
		{"dialect", "backend.dialect", func(b *Backend) { b.Dialect = "anthropic" }},
		{"method", "backend.health_check.method", func(b *Backend) { b.HealthCheck.Method = "PATCH" }},
		{"path", "backend.health_check.path", func(b *Backend) { b.HealthCheck.Path = "health" }},
		{"interval", "backend.health_check.interval", func(b *Backend) { b.HealthCheck.Interval = time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := base
			tt.edit(&b)
			got, err := NewBackend(b)
			require.Error(t, err)
			assert.Nil(t, got)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNewBackend_TLSAndHeadProbe(t *testing.T) {
	b, err := NewBackend(Backend{
		ID: "remote", Host: "api.example.com", Port: 443, TLS: true, Dialect: DialectOpenAI,
		HealthCheck: HealthCheckRecipe{Method: "head", Path: "/v1/models"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com:443/v1/models", b.HealthCheckURL())
	assert.True(t, b.HealthCheck.IsConnectivityCheck())
}

func TestNewBackend_ClonesPinned(t *testing.T) {
	pinned := map[string]any{"model": "llama3"}
	b, err := NewBackend(Backend{ID: "b", Host: "h", Port: 1, Dialect: DialectOllama, Pinned: PinnedProperties{Completions: pinned}})
	require.NoError(t, err)

	pinned["model"] = "changed"
	assert.Equal(t, "llama3", b.Pinned.Completions["model"])
}

func TestCapabilitiesAllows(t *testing.T) {
	c := Capabilities{AllowEmbeddings: false, AllowCompletions: true}
	assert.False(t, c.Allows(KindEmbeddings))
	assert.True(t, c.Allows(KindCompletions))
	assert.True(t, c.Allows(KindChat))
	assert.True(t, c.Allows(KindModels), "management kinds are never gated")

	c = Capabilities{AllowEmbeddings: true}
	assert.False(t, c.Allows(KindChat))
}

func TestPinnedPropertiesFor(t *testing.T) {
	p := PinnedProperties{
		Embeddings:  map[string]any{"model": "nomic"},
		Completions: map[string]any{"model": "llama3"},
	}
	assert.Equal(t, "nomic", p.For(KindEmbeddings)["model"])
	assert.Equal(t, "llama3", p.For(KindChat)["model"])
	assert.Nil(t, p.For(KindPull))
}
