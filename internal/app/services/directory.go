package services

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/thushan/flowgate/internal/adapter/directory"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// DirectoryService opens the backend and frontend directories and loads
// the seed file into them. With directory.watch set, edits to the config
// file re-apply the seed it names.
type DirectoryService struct {
	config   *config.Config
	dirs     *directory.Directories
	onReseed []func(context.Context)
	logger   logger.StyledLogger
	ctx      context.Context
}

func NewDirectoryService(cfg *config.Config, logger logger.StyledLogger) *DirectoryService {
	return &DirectoryService{config: cfg, logger: logger}
}

func (s *DirectoryService) Name() string { return NameDirectory }

func (s *DirectoryService) Start(ctx context.Context) error {
	dirs, err := directory.New(s.config.Directory)
	if err != nil {
		return fmt.Errorf("opening directory: %w", err)
	}
	s.dirs = dirs
	s.ctx = ctx

	if err := s.seed(ctx, s.config.Directory.SeedFile); err != nil {
		_ = dirs.Close()
		return err
	}

	backends, err := dirs.Backends.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("listing backends: %w", err)
	}
	frontends, err := dirs.Frontends.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("listing frontends: %w", err)
	}
	s.logger.Info("Directory ready", "store", s.config.Directory.Store, "backends", len(backends), "frontends", len(frontends))

	if s.config.Directory.Watch {
		s.config.OnChange(s.configChanged)
	}
	return nil
}

func (s *DirectoryService) Stop(_ context.Context) error {
	if s.dirs == nil {
		return nil
	}
	return s.dirs.Close()
}

func (s *DirectoryService) Dependencies() []string { return nil }

func (s *DirectoryService) Backends() ports.BackendDirectory { return s.dirs.Backends }

func (s *DirectoryService) Frontends() ports.FrontendDirectory { return s.dirs.Frontends }

// OnReseed registers fn to run after a watched seed was re-applied.
// Must be called before the config file changes, in practice during Start
// of a dependant service.
func (s *DirectoryService) OnReseed(fn func(context.Context)) {
	s.onReseed = append(s.onReseed, fn)
}

func (s *DirectoryService) seed(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	doc, err := directory.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := directory.ApplySeed(ctx, doc, s.dirs.Backends, s.dirs.Frontends, s.logger); err != nil {
		return fmt.Errorf("applying seed %s: %w", path, err)
	}
	s.logger.Info("Seed applied", "file", path, "backends", len(doc.Backends), "frontends", len(doc.Frontends))
	return nil
}

func (s *DirectoryService) configChanged(e fsnotify.Event, next *config.Config, err error) {
	if err != nil {
		s.logger.Warn("Config change ignored", "file", e.Name, "error", err)
		return
	}
	s.logger.Info("Config changed, re-applying seed", "file", e.Name, "seed", next.Directory.SeedFile)
	if err := s.seed(s.ctx, next.Directory.SeedFile); err != nil {
		s.logger.Error("Seed reload failed", "error", err)
		return
	}
	for _, fn := range s.onReseed {
		fn(s.ctx)
	}
}
