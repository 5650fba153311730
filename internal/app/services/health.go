package services

import (
	"context"

	"github.com/thushan/flowgate/internal/adapter/health"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// HealthService probes every backend in the directory. A backend that
// comes up healthy gets its required models reconciled straight away.
type HealthService struct {
	config       config.HealthConfig
	directorySvc *DirectoryService
	metricsSvc   *MetricsService
	modelSyncSvc *ModelSyncService
	monitor      *health.Monitor
	logger       logger.StyledLogger
}

func NewHealthService(cfg config.HealthConfig, directorySvc *DirectoryService, metricsSvc *MetricsService, modelSyncSvc *ModelSyncService, logger logger.StyledLogger) *HealthService {
	return &HealthService{
		config:       cfg,
		directorySvc: directorySvc,
		metricsSvc:   metricsSvc,
		modelSyncSvc: modelSyncSvc,
		logger:       logger,
	}
}

func (s *HealthService) Name() string { return NameHealth }

func (s *HealthService) Start(ctx context.Context) error {
	s.monitor = health.NewMonitor(s.directorySvc.Backends(), s.metricsSvc.Recorder(), s.logger)
	s.monitor.SetSyncInterval(s.config.SyncInterval)

	if s.modelSyncSvc.Enabled() {
		synchronizer := s.modelSyncSvc.Synchronizer()
		s.monitor.SetRecoveryCallback(health.RecoveryCallbackFunc(func(ctx context.Context, backend *domain.Backend) error {
			return synchronizer.Reconcile(ctx, backend.ID)
		}))
	}

	s.logger.Info("Starting health monitor", "sync_interval", s.config.SyncInterval)
	return s.monitor.Start(ctx)
}

func (s *HealthService) Stop(ctx context.Context) error {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Stop(ctx)
}

func (s *HealthService) Dependencies() []string {
	return []string{NameDirectory, NameMetrics, NameModelSync}
}

func (s *HealthService) Monitor() ports.HealthMonitor { return s.monitor }
