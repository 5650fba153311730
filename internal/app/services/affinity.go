package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/thushan/flowgate/internal/adapter/affinity"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// AffinityService owns the sticky session table and drops a backend's
// sessions as soon as the monitor marks it unhealthy.
type AffinityService struct {
	config       config.AffinityConfig
	directorySvc *DirectoryService
	healthSvc    *HealthService
	metricsSvc   *MetricsService
	store        ports.AffinityStore
	table        *affinity.Table
	cancel       context.CancelFunc
	logger       logger.StyledLogger
	wg           sync.WaitGroup
}

func NewAffinityService(cfg config.AffinityConfig, directorySvc *DirectoryService, healthSvc *HealthService, metricsSvc *MetricsService, logger logger.StyledLogger) *AffinityService {
	return &AffinityService{
		config:       cfg,
		directorySvc: directorySvc,
		healthSvc:    healthSvc,
		metricsSvc:   metricsSvc,
		logger:       logger,
	}
}

func (s *AffinityService) Name() string { return NameAffinity }

func (s *AffinityService) Start(ctx context.Context) error {
	store, err := affinity.NewStore(ctx, s.config)
	if err != nil {
		return fmt.Errorf("opening affinity store: %w", err)
	}
	s.store = store
	monitor := s.healthSvc.Monitor()
	s.table = affinity.NewTable(store, s.directorySvc.Backends(), monitor, s.metricsSvc.Recorder(), s.logger)

	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	transitions, unsubscribe := monitor.Subscribe(watchCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-watchCtx.Done():
				return
			case t, ok := <-transitions:
				if !ok {
					return
				}
				if !t.WentDown() {
					continue
				}
				if n := s.table.EvictBackend(watchCtx, t.BackendID); n > 0 {
					s.logger.WarnWithBackend("Dropped sessions for unhealthy backend", t.BackendID, "sessions", n)
				}
			}
		}
	}()

	s.logger.Info("Affinity table ready", "store", s.config.Store)
	return nil
}

func (s *AffinityService) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *AffinityService) Dependencies() []string {
	return []string{NameDirectory, NameHealth, NameMetrics}
}

func (s *AffinityService) Table() ports.AffinityTable { return s.table }
