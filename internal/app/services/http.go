package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/thushan/flowgate/internal/app/handlers"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPService serves the client, admin and status routes. It starts last
// so nothing is accepted before the dispatcher and its dependencies exist.
type HTTPService struct {
	config       *config.Config
	server       *http.Server
	application  *handlers.Application
	directorySvc *DirectoryService
	healthSvc    *HealthService
	modelSyncSvc *ModelSyncService
	affinitySvc  *AffinityService
	proxySvc     *ProxyService
	securitySvc  *SecurityService
	metricsSvc   *MetricsService
	errCh        chan error
	addr         string
	logger       logger.StyledLogger
}

func NewHTTPService(cfg *config.Config, logger logger.StyledLogger) *HTTPService {
	return &HTTPService{
		config: cfg,
		logger: logger,
		errCh:  make(chan error, 1),
	}
}

// SetDependencies hands over the services the handlers read from.
func (s *HTTPService) SetDependencies(
	directory *DirectoryService,
	health *HealthService,
	modelSync *ModelSyncService,
	affinity *AffinityService,
	proxy *ProxyService,
	security *SecurityService,
	metrics *MetricsService,
) {
	s.directorySvc = directory
	s.healthSvc = health
	s.modelSyncSvc = modelSync
	s.affinitySvc = affinity
	s.proxySvc = proxy
	s.securitySvc = security
	s.metricsSvc = metrics
}

func (s *HTTPService) Name() string { return NameHTTP }

func (s *HTTPService) Start(_ context.Context) error {
	app, err := handlers.NewApplication(handlers.Dependencies{
		Config:     s.config,
		Dispatcher: s.proxySvc.Dispatcher(),
		Frontends:  s.directorySvc.Frontends(),
		Backends:   s.directorySvc.Backends(),
		Health:     s.healthSvc.Monitor(),
		ModelSync:  s.modelSyncSvc.Synchronizer(),
		Affinity:   s.affinitySvc.Table(),
		Metrics:    s.metricsSvc.Handler(),
		Security:   s.securitySvc.Adapters(),
		Logger:     s.logger,
	})
	if err != nil {
		return fmt.Errorf("building handlers: %w", err)
	}
	s.application = app

	srv := s.config.Server
	s.server = &http.Server{
		Addr:           srv.GetAddress(),
		Handler:        app.Handler(),
		ReadTimeout:    srv.ReadTimeout,
		WriteTimeout:   srv.WriteTimeout,
		IdleTimeout:    srv.IdleTimeout,
		MaxHeaderBytes: int(srv.RequestLimits.MaxHeaderSize),
	}

	// bind before returning so a taken port fails start up
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.addr = listener.Addr().String()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
			s.errCh <- err
		}
	}()

	s.logger.Info("HTTP server listening",
		"address", s.addr,
		"read_timeout", srv.ReadTimeout,
		"write_timeout", srv.WriteTimeout,
		"idle_timeout", srv.IdleTimeout,
		"admin", s.config.Admin.Enabled())
	return nil
}

// Stop drains in-flight requests, bounded by server.shutdown_timeout.
// Streams still running at the deadline are cut.
func (s *HTTPService) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *HTTPService) Dependencies() []string {
	return []string{NameDirectory, NameHealth, NameModelSync, NameAffinity, NameProxy, NameSecurity, NameMetrics}
}

// Errors reports a server that died after start up.
func (s *HTTPService) Errors() <-chan error { return s.errCh }

// Addr is the bound address, which differs from the configured one when
// the port was 0.
func (s *HTTPService) Addr() string { return s.addr }

func (s *HTTPService) Application() *handlers.Application { return s.application }
