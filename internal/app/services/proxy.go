package services

import (
	"context"
	"fmt"

	"github.com/thushan/flowgate/internal/adapter/balancer"
	"github.com/thushan/flowgate/internal/adapter/proxy"
	"github.com/thushan/flowgate/internal/adapter/translator"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// ProxyService builds the dispatcher: balancer, translators and the
// upstream transport.
type ProxyService struct {
	config       *config.Config
	directorySvc *DirectoryService
	healthSvc    *HealthService
	affinitySvc  *AffinityService
	modelSyncSvc *ModelSyncService
	metricsSvc   *MetricsService
	dispatcher   *proxy.Dispatcher
	logger       logger.StyledLogger
}

func NewProxyService(
	cfg *config.Config,
	directorySvc *DirectoryService,
	healthSvc *HealthService,
	affinitySvc *AffinityService,
	modelSyncSvc *ModelSyncService,
	metricsSvc *MetricsService,
	logger logger.StyledLogger,
) *ProxyService {
	return &ProxyService{
		config:       cfg,
		directorySvc: directorySvc,
		healthSvc:    healthSvc,
		affinitySvc:  affinitySvc,
		modelSyncSvc: modelSyncSvc,
		metricsSvc:   metricsSvc,
		logger:       logger,
	}
}

func (s *ProxyService) Name() string { return NameProxy }

func (s *ProxyService) Start(_ context.Context) error {
	deps := balancer.Dependencies{
		Backends: s.directorySvc.Backends(),
		Health:   s.healthSvc.Monitor(),
		Affinity: s.affinitySvc.Table(),
	}
	if s.config.ModelSync.RequireReady {
		deps.Readiness = s.modelSyncSvc.Synchronizer()
	}

	selector, err := balancer.NewFactory(deps).Create(balancer.DefaultBalancerRoundRobin)
	if err != nil {
		return fmt.Errorf("creating balancer: %w", err)
	}

	s.dispatcher, err = proxy.NewDispatcher(
		selector,
		s.affinitySvc.Table(),
		translator.NewDefaultRegistry(s.logger),
		proxy.ConfigurationFrom(s.config.Proxy),
		s.metricsSvc.Recorder(),
		s.logger,
	)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	s.logger.Info("Dispatcher ready",
		"balancer", selector.Name(),
		"require_ready", s.config.ModelSync.RequireReady,
		"default_timeout", s.config.Proxy.DefaultTimeout)
	return nil
}

func (s *ProxyService) Stop(_ context.Context) error { return nil }

func (s *ProxyService) Dependencies() []string {
	return []string{NameDirectory, NameHealth, NameAffinity, NameModelSync, NameMetrics}
}

func (s *ProxyService) Dispatcher() ports.Dispatcher { return s.dispatcher }
