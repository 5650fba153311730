package router

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/thushan/flowgate/internal/logger"
)

type fakeAdapters struct {
	chained, limited int
}

func (f *fakeAdapters) CreateChainMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.chained++
			next.ServeHTTP(w, r)
		})
	}
}

func (f *fakeAdapters) CreateRateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.limited++
			next.ServeHTTP(w, r)
		})
	}
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestRouteRegistry_OrderAndOverride(t *testing.T) {
	r := NewRouteRegistry(logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.Register("/health", ok, "health")
	r.RegisterProxyRoute("/api/chat", ok, "chat", http.MethodPost)
	r.Register("/health", ok, "health again")

	routes := r.GetRoutes()
	assert.Len(t, routes, 2)
	assert.Equal(t, "/health", routes[0].Pattern)
	assert.Equal(t, "health again", routes[0].Description)
	assert.True(t, routes[1].IsProxy)
}

func TestRouteRegistry_WireUpWithSecurityChain(t *testing.T) {
	r := NewRouteRegistry(logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))).Quiet()
	r.Register("/health", ok, "health")
	r.RegisterProxyRoute("/api/chat", ok, "chat", http.MethodPost)

	adapters := &fakeAdapters{}
	mux := chi.NewRouter()
	r.WireUpWithSecurityChain(mux, adapters)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/chat"},
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Equal(t, 1, adapters.chained)
	assert.Equal(t, 1, adapters.limited)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
