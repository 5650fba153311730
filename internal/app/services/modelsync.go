package services

import (
	"context"
	"errors"

	"github.com/thushan/flowgate/internal/adapter/modelsync"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// ModelSyncService runs the scheduled model reconciliation. When model
// sync is disabled the synchronizer still exists so status reporting and
// readiness keep working, it just never pulls on a schedule.
type ModelSyncService struct {
	config       config.ModelSyncConfig
	directorySvc *DirectoryService
	metricsSvc   *MetricsService
	synchronizer *modelsync.Synchronizer
	logger       logger.StyledLogger
}

func NewModelSyncService(cfg config.ModelSyncConfig, directorySvc *DirectoryService, metricsSvc *MetricsService, logger logger.StyledLogger) *ModelSyncService {
	return &ModelSyncService{
		config:       cfg,
		directorySvc: directorySvc,
		metricsSvc:   metricsSvc,
		logger:       logger,
	}
}

func (s *ModelSyncService) Name() string { return NameModelSync }

func (s *ModelSyncService) Start(ctx context.Context) error {
	schedule := s.config.Schedule
	if !s.config.Enabled {
		schedule = ""
	}
	s.synchronizer = modelsync.NewSynchronizer(
		s.directorySvc.Backends(),
		s.directorySvc.Frontends(),
		modelsync.NewClients(modelsync.NewHTTPClient()),
		modelsync.Config{
			Schedule:    schedule,
			PullTimeout: s.config.PullTimeout,
			Concurrency: s.config.Concurrency,
		},
		s.metricsSvc.Recorder(),
		s.logger,
	)

	s.directorySvc.OnReseed(func(ctx context.Context) {
		if !s.config.Enabled {
			return
		}
		if err := s.synchronizer.ReconcileAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Model sync after reseed failed", "error", err)
		}
	})
	return s.synchronizer.Start(ctx)
}

func (s *ModelSyncService) Stop(ctx context.Context) error {
	if s.synchronizer == nil {
		return nil
	}
	return s.synchronizer.Stop(ctx)
}

func (s *ModelSyncService) Dependencies() []string {
	return []string{NameDirectory, NameMetrics}
}

func (s *ModelSyncService) Synchronizer() ports.ModelSynchronizer { return s.synchronizer }

// Enabled reports whether recovering backends should trigger a reconcile.
func (s *ModelSyncService) Enabled() bool { return s.config.Enabled }
