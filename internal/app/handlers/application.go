package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/thushan/flowgate/internal/adapter/security"
	"github.com/thushan/flowgate/internal/app/middleware"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/internal/router"
)

// Dependencies is everything the HTTP surface talks to. Metrics and
// Security are optional.
type Dependencies struct {
	Config     *config.Config
	Dispatcher ports.Dispatcher
	Frontends  ports.FrontendDirectory
	Backends   ports.BackendDirectory
	Health     ports.HealthMonitor
	ModelSync  ports.ModelSynchronizer
	Affinity   ports.AffinityTable
	Metrics    http.Handler
	Security   *security.Adapters
	Logger     logger.StyledLogger
}

// Application holds all the dependencies needed for the HTTP handlers
type Application struct {
	Config           *config.Config
	logger           logger.StyledLogger
	dispatcher       ports.Dispatcher
	frontends        ports.FrontendDirectory
	backends         ports.BackendDirectory
	health           ports.HealthMonitor
	modelSync        ports.ModelSynchronizer
	affinity         ports.AffinityTable
	metricsHandler   http.Handler
	securityAdapters *security.Adapters
	validator        *PayloadValidator
	routeRegistry    *router.RouteRegistry
	StartTime        time.Time
}

func NewApplication(deps Dependencies) (*Application, error) {
	validator, err := NewPayloadValidator()
	if err != nil {
		return nil, err
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Application{
		Config:           cfg,
		logger:           deps.Logger,
		dispatcher:       deps.Dispatcher,
		frontends:        deps.Frontends,
		backends:         deps.Backends,
		health:           deps.Health,
		modelSync:        deps.ModelSync,
		affinity:         deps.Affinity,
		metricsHandler:   deps.Metrics,
		securityAdapters: deps.Security,
		validator:        validator,
		routeRegistry:    router.NewRouteRegistry(deps.Logger),
		StartTime:        time.Now(),
	}, nil
}

// GetRouteRegistry returns the route registry for wiring up routes
func (a *Application) GetRouteRegistry() *router.RouteRegistry {
	return a.routeRegistry
}

// Handler registers every route and returns the root chi router with the
// shared middleware stack in front of it.
func (a *Application) Handler() http.Handler {
	a.registerRoutes()

	mux := chi.NewRouter()
	mux.Use(chimiddleware.Recoverer)
	mux.Use(middleware.EnhancedLoggingMiddleware(a.logger))
	if a.Config.Server.RequestLogging {
		mux.Use(middleware.AccessLoggingMiddleware(a.logger))
	}
	mux.NotFound(a.notFoundHandler)
	mux.MethodNotAllowed(a.methodNotAllowedHandler)

	if a.securityAdapters != nil {
		a.routeRegistry.WireUpWithSecurityChain(mux, a.securityAdapters)
	} else {
		a.routeRegistry.WireUp(mux)
	}
	return mux
}
