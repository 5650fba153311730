package router

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/pterm/pterm"

	"github.com/thushan/flowgate/internal/logger"
)

type RouteInfo struct {
	Handler     http.HandlerFunc
	Pattern     string
	Description string
	Method      string
	Order       int
	IsProxy     bool
}

// RouteRegistry collects routes from the handlers so they can be mounted
// on chi in one place, wrapped with the right middleware, and printed as a
// table at start up.
type RouteRegistry struct {
	routes   map[string]RouteInfo
	logger   logger.StyledLogger
	orderSeq int
	quiet    bool
}

func NewRouteRegistry(logger logger.StyledLogger) *RouteRegistry {
	return &RouteRegistry{
		routes: make(map[string]RouteInfo),
		logger: logger,
	}
}

// Quiet stops WireUp printing the route table, used by tests.
func (r *RouteRegistry) Quiet() *RouteRegistry {
	r.quiet = true
	return r
}

func (r *RouteRegistry) Register(pattern string, handler http.HandlerFunc, description string) {
	r.RegisterWithMethod(pattern, handler, description, http.MethodGet)
}

func (r *RouteRegistry) RegisterWithMethod(pattern string, handler http.HandlerFunc, description, method string) {
	r.register(pattern, handler, description, method, false)
}

// RegisterProxyRoute marks a route that dispatches to a backend; these get
// the full security chain rather than rate limiting alone.
func (r *RouteRegistry) RegisterProxyRoute(pattern string, handler http.HandlerFunc, description, method string) {
	r.register(pattern, handler, description, method, true)
}

func (r *RouteRegistry) register(pattern string, handler http.HandlerFunc, description, method string, isProxy bool) {
	key := method + " " + pattern
	order := r.orderSeq
	if existing, ok := r.routes[key]; ok {
		order = existing.Order
	} else {
		r.orderSeq++
	}
	r.routes[key] = RouteInfo{
		Handler:     handler,
		Pattern:     pattern,
		Description: description,
		Method:      method,
		Order:       order,
		IsProxy:     isProxy,
	}
}

func (r *RouteRegistry) GetRoutes() []RouteInfo {
	routes := make([]RouteInfo, 0, len(r.routes))
	for _, info := range r.routes {
		routes = append(routes, info)
	}
	slices.SortFunc(routes, func(a, b RouteInfo) int { return a.Order - b.Order })
	return routes
}

func (r *RouteRegistry) WireUp(mux chi.Router) {
	for _, info := range r.GetRoutes() {
		mux.Method(info.Method, info.Pattern, info.Handler)
	}
	r.logRoutesTable()
}

type securityAdapterProvider interface {
	CreateChainMiddleware() func(http.Handler) http.Handler
	CreateRateLimitMiddleware() func(http.Handler) http.Handler
}

// WireUpWithSecurityChain mounts proxy routes behind the full chain and
// everything else behind the rate limiter.
func (r *RouteRegistry) WireUpWithSecurityChain(mux chi.Router, adapters securityAdapterProvider) {
	if adapters == nil {
		r.WireUp(mux)
		return
	}

	chain := adapters.CreateChainMiddleware()
	rateLimit := adapters.CreateRateLimitMiddleware()
	for _, info := range r.GetRoutes() {
		var handler http.Handler = info.Handler
		if info.IsProxy {
			handler = chain(handler)
		} else {
			handler = rateLimit(handler)
		}
		mux.Method(info.Method, info.Pattern, handler)
	}
	r.logRoutesTable()
}

func (r *RouteRegistry) logRoutesTable() {
	if len(r.routes) == 0 || r.quiet {
		return
	}

	tableData := [][]string{
		{"ROUTE", "METHOD", "DESCRIPTION"},
	}
	for _, entry := range r.GetRoutes() {
		tableData = append(tableData, []string{entry.Pattern, entry.Method, entry.Description})
	}

	r.logger.InfoWithCount("Registered web routes", len(r.routes))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}
