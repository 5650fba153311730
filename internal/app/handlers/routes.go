package handlers

import (
	"net/http"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
)

type proxyRoute struct {
	path        string
	method      string
	description string
	dialect     domain.Dialect
	kind        domain.RequestKind
}

// proxyRoutes is the client surface. Both embedding paths of the Ollama
// API map to the same kind; the codec picks the upstream path.
var proxyRoutes = []proxyRoute{
	{constants.PathOllamaGenerate, http.MethodPost, "Ollama generate", domain.DialectOllama, domain.KindCompletions},
	{constants.PathOllamaChat, http.MethodPost, "Ollama chat", domain.DialectOllama, domain.KindChat},
	{constants.PathOllamaEmbeddings, http.MethodPost, "Ollama embeddings", domain.DialectOllama, domain.KindEmbeddings},
	{constants.PathOllamaEmbed, http.MethodPost, "Ollama embed", domain.DialectOllama, domain.KindEmbeddings},
	{constants.PathOllamaPull, http.MethodPost, "Ollama model pull", domain.DialectOllama, domain.KindPull},
	{constants.PathOllamaShow, http.MethodPost, "Ollama model details", domain.DialectOllama, domain.KindShow},
	{constants.PathOllamaTags, http.MethodGet, "Ollama models listing", domain.DialectOllama, domain.KindModels},
	{constants.PathOllamaPS, http.MethodGet, "Ollama running models", domain.DialectOllama, domain.KindPS},
	{constants.PathOllamaDelete, http.MethodDelete, "Ollama model delete", domain.DialectOllama, domain.KindDelete},

	{constants.PathV1Completions, http.MethodPost, "OpenAI completions", domain.DialectOpenAI, domain.KindCompletions},
	{constants.PathV1ChatCompletions, http.MethodPost, "OpenAI chat completions", domain.DialectOpenAI, domain.KindChat},
	{constants.PathV1Embeddings, http.MethodPost, "OpenAI embeddings", domain.DialectOpenAI, domain.KindEmbeddings},
	{constants.PathV1Models, http.MethodGet, "OpenAI models listing", domain.DialectOpenAI, domain.KindModels},
}

// registerRoutes sets up the complete HTTP routing table
func (a *Application) registerRoutes() {
	// status endpoints come first, they must not depend on any backend
	a.routeRegistry.RegisterWithMethod(constants.PathHealth, a.healthHandler, "Gateway health check", http.MethodGet)
	a.routeRegistry.RegisterWithMethod("/", a.connectivityHandler, "Connectivity check", http.MethodHead)
	a.routeRegistry.RegisterWithMethod(constants.PathInternalStatus, a.statusHandler, "Backend and frontend status", http.MethodGet)
	if a.metricsHandler != nil {
		path := a.Config.Metrics.Path
		if path == "" {
			path = constants.PathMetrics
		}
		a.routeRegistry.RegisterWithMethod(path, a.metricsHandler.ServeHTTP, "Prometheus metrics", http.MethodGet)
	}

	for _, route := range proxyRoutes {
		a.routeRegistry.RegisterProxyRoute(route.path, a.proxyHandler(route.dialect, route.kind), route.description, route.method)
	}

	a.registerAdminRoutes()
}

// registerAdminRoutes mounts the directory management API. Without a token
// it stays unmounted.
func (a *Application) registerAdminRoutes() {
	if !a.Config.Admin.Enabled() {
		a.logger.Info("Admin API disabled, set admin.token to enable it")
		return
	}

	backends := constants.PathAdminPrefix + "/backends"
	frontends := constants.PathAdminPrefix + "/frontends"

	a.routeRegistry.RegisterWithMethod(backends, a.requireAdmin(a.listBackendsHandler), "List backends", http.MethodGet)
	a.routeRegistry.RegisterWithMethod(backends, a.requireAdmin(a.putBackendHandler), "Create or replace a backend", http.MethodPut)
	a.routeRegistry.RegisterWithMethod(backends+"/health", a.requireAdmin(a.backendHealthHandler), "Backend health records", http.MethodGet)
	a.routeRegistry.RegisterWithMethod(backends+"/{id}", a.requireAdmin(a.getBackendHandler), "Get a backend", http.MethodGet)
	a.routeRegistry.RegisterWithMethod(backends+"/{id}", a.requireAdmin(a.putBackendHandler), "Create or replace a backend", http.MethodPut)
	a.routeRegistry.RegisterWithMethod(backends+"/{id}", a.requireAdmin(a.deleteBackendHandler), "Delete a backend", http.MethodDelete)
	a.routeRegistry.RegisterWithMethod(backends+"/{id}/models", a.requireAdmin(a.backendModelsHandler), "Model sync records", http.MethodGet)

	a.routeRegistry.RegisterWithMethod(frontends, a.requireAdmin(a.listFrontendsHandler), "List frontends", http.MethodGet)
	a.routeRegistry.RegisterWithMethod(frontends, a.requireAdmin(a.putFrontendHandler), "Create or replace a frontend", http.MethodPut)
	a.routeRegistry.RegisterWithMethod(frontends+"/{id}", a.requireAdmin(a.getFrontendHandler), "Get a frontend", http.MethodGet)
	a.routeRegistry.RegisterWithMethod(frontends+"/{id}", a.requireAdmin(a.putFrontendHandler), "Create or replace a frontend", http.MethodPut)
	a.routeRegistry.RegisterWithMethod(frontends+"/{id}", a.requireAdmin(a.deleteFrontendHandler), "Delete a frontend", http.MethodDelete)
}
