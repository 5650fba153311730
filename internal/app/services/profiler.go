package services

import (
	"context"
	"fmt"

	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/pkg/profiler"
)

// ProfilerService is only registered when server.profiler is set.
type ProfilerService struct {
	server *profiler.Server
	logger logger.StyledLogger
}

func NewProfilerService(address string, logger logger.StyledLogger) *ProfilerService {
	return &ProfilerService{server: profiler.New(address), logger: logger}
}

func (s *ProfilerService) Name() string { return NameProfiler }

func (s *ProfilerService) Start(_ context.Context) error {
	if err := s.server.Start(s.logger.GetUnderlying()); err != nil {
		return fmt.Errorf("starting profiler: %w", err)
	}
	s.logger.Warn("Profiler enabled, do not expose in production", "address", s.server.Addr())
	return nil
}

func (s *ProfilerService) Stop(ctx context.Context) error {
	return s.server.Stop(ctx)
}

func (s *ProfilerService) Dependencies() []string { return nil }
