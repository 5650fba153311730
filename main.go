package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/thushan/flowgate/internal/app"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/internal/version"
	"github.com/thushan/flowgate/pkg/format"
	"github.com/thushan/flowgate/pkg/nerdstats"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(buildLoggerConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid(), "config", configSource(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	application, err := app.New(startTime, cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	select {
	case sig := <-sigCh:
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-application.Errors():
		styledLogger.Error("Server failed, shutting down", "error", err)
	}
	cancel()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)

	styledLogger.Info("Flowgate has shutdown")
}

func configSource(cfg *config.Config) string {
	if cfg.Filename == "" {
		return "defaults"
	}
	return cfg.Filename
}

func buildLoggerConfig(cfg config.LoggingConfig) *logger.Config {
	return &logger.Config{
		Level:      cfg.Level,
		FileOutput: cfg.FileOutput,
		LogDir:     cfg.LogDir,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Theme:      cfg.Theme,
	}
}

func reportProcessStats(log logger.StyledLogger, startTime time.Time) {
	runtime.GC()
	stats := nerdstats.Snapshot(startTime)

	log.Info("Process Memory Stats",
		"heap_alloc", format.Bytes(int64(stats.HeapAlloc)),
		"heap_sys", format.Bytes(int64(stats.HeapSys)),
		"heap_inuse", format.Bytes(int64(stats.HeapInuse)),
		"stack_inuse", format.Bytes(int64(stats.StackInuse)),
		"total_alloc", format.Bytes(int64(stats.TotalAlloc)),
		"memory_pressure", stats.MemoryPressure(),
	)

	if stats.NumGC > 0 {
		log.Info("Garbage Collection Stats",
			"num_gc_cycles", stats.NumGC,
			"last_gc", stats.LastGC.Format(time.RFC3339),
			"avg_gc_pause", format.Latency(stats.AverageGCPause()),
			"gc_cpu_fraction", fmt.Sprintf("%.4f%%", stats.GCCPUFraction*100),
		)
	}

	log.Info("Runtime Stats",
		"uptime", format.Duration(stats.Uptime),
		"goroutines", stats.NumGoroutines,
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
	)
}
