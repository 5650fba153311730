package app

import (
	"context"
	"fmt"
	"time"

	"github.com/thushan/flowgate/internal/app/services"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/logger"
)

// Application is the running gateway: every component registered with the
// service manager and started in dependency order.
type Application struct {
	StartTime time.Time
	config    *config.Config
	manager   *services.ServiceManager
	http      *services.HTTPService
	logger    logger.StyledLogger
}

func New(startTime time.Time, cfg *config.Config, log logger.StyledLogger) (*Application, error) {
	manager := services.NewServiceManager(log)

	metricsSvc := services.NewMetricsService(cfg.Metrics, log)
	directorySvc := services.NewDirectoryService(cfg, log)
	modelSyncSvc := services.NewModelSyncService(cfg.ModelSync, directorySvc, metricsSvc, log)
	healthSvc := services.NewHealthService(cfg.Health, directorySvc, metricsSvc, modelSyncSvc, log)
	affinitySvc := services.NewAffinityService(cfg.Affinity, directorySvc, healthSvc, metricsSvc, log)
	proxySvc := services.NewProxyService(cfg, directorySvc, healthSvc, affinitySvc, modelSyncSvc, metricsSvc, log)
	securitySvc := services.NewSecurityService(cfg.Server, metricsSvc, log)
	httpSvc := services.NewHTTPService(cfg, log)
	httpSvc.SetDependencies(directorySvc, healthSvc, modelSyncSvc, affinitySvc, proxySvc, securitySvc, metricsSvc)

	all := []services.ManagedService{
		metricsSvc,
		directorySvc,
		modelSyncSvc,
		healthSvc,
		affinitySvc,
		proxySvc,
		securitySvc,
		httpSvc,
	}
	if cfg.Server.Profiler {
		all = append(all, services.NewProfilerService(cfg.Server.ProfilerAddress, log))
	}
	for _, svc := range all {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("registering %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		StartTime: startTime,
		config:    cfg,
		manager:   manager,
		http:      httpSvc,
		logger:    log,
	}, nil
}

func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("Flowgate started, waiting for requests...",
		"bind", a.config.Server.GetAddress(),
		"startup", time.Since(a.StartTime).Round(time.Millisecond))
	return nil
}

// Errors reports a listener that failed after start up.
func (a *Application) Errors() <-chan error {
	return a.http.Errors()
}

func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
