package services

import (
	"context"

	"github.com/thushan/flowgate/internal/adapter/security"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/logger"
)

// SecurityService holds the rate limiters and request size validator
// that wrap the client facing routes.
type SecurityService struct {
	config     config.ServerConfig
	metricsSvc *MetricsService
	adapters   *security.Adapters
	logger     logger.StyledLogger
}

func NewSecurityService(cfg config.ServerConfig, metricsSvc *MetricsService, logger logger.StyledLogger) *SecurityService {
	return &SecurityService{config: cfg, metricsSvc: metricsSvc, logger: logger}
}

func (s *SecurityService) Name() string { return NameSecurity }

func (s *SecurityService) Start(_ context.Context) error {
	s.adapters = security.NewSecurityAdapters(s.config, s.metricsSvc.Recorder(), s.logger)

	s.logger.Info("Security initialised",
		"global_rate_limit", s.config.RateLimits.GlobalRequestsPerMinute,
		"per_ip_rate_limit", s.config.RateLimits.PerIPRequestsPerMinute,
		"max_body_size", s.config.RequestLimits.MaxBodySize)
	return nil
}

func (s *SecurityService) Stop(_ context.Context) error {
	if s.adapters != nil {
		s.adapters.Stop()
	}
	return nil
}

func (s *SecurityService) Dependencies() []string {
	return []string{NameMetrics}
}

func (s *SecurityService) Adapters() *security.Adapters { return s.adapters }
