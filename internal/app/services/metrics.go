package services

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thushan/flowgate/internal/adapter/metrics"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// MetricsService owns the prometheus registry. It starts first since
// almost everything else records into it.
type MetricsService struct {
	config    config.MetricsConfig
	collector *metrics.Collector
	logger    logger.StyledLogger
}

func NewMetricsService(cfg config.MetricsConfig, logger logger.StyledLogger) *MetricsService {
	return &MetricsService{config: cfg, logger: logger}
}

func (s *MetricsService) Name() string { return NameMetrics }

func (s *MetricsService) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Metrics disabled")
		return nil
	}
	s.collector = metrics.NewCollector(s.config, prometheus.NewRegistry())
	s.logger.Info("Metrics enabled", "path", s.config.Path, "namespace", s.config.Namespace)
	return nil
}

func (s *MetricsService) Stop(_ context.Context) error { return nil }

func (s *MetricsService) Dependencies() []string { return nil }

// Recorder is a no-op when metrics are disabled.
func (s *MetricsService) Recorder() ports.MetricsRecorder {
	if s.collector == nil {
		return ports.NoopMetrics{}
	}
	return s.collector
}

// Handler is nil when metrics are disabled, which keeps the route off.
func (s *MetricsService) Handler() http.Handler {
	if s.collector == nil {
		return nil
	}
	return s.collector.Handler()
}
