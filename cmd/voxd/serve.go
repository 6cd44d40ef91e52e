package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/voxhub/voxd/internal/config"
	"github.com/voxhub/voxd/internal/engine"
	"github.com/voxhub/voxd/internal/history"
	"github.com/voxhub/voxd/internal/history/factory"
	"github.com/voxhub/voxd/internal/logger"
	"github.com/voxhub/voxd/internal/metrics"
	"github.com/voxhub/voxd/internal/server"
	"github.com/voxhub/voxd/internal/store"
)

func runServe(flags *ServeFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if err := os.MkdirAll(cfg.Engine.BasePath, 0o750); err != nil {
		return fmt.Errorf("failed to create base path %s: %w", cfg.Engine.BasePath, err)
	}

	logCfg := cfg.Log
	if logCfg.Dir == "" && logCfg.Path == "" {
		logCfg.Dir = filepath.Join(cfg.Engine.BasePath, "logs")
	}
	log := logger.New(logCfg)

	// History sink is optional; a bad DSN is a startup error, not a warning.
	var sinks []history.Sink
	if cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("failed to open history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		sinks = append(sinks, sink)
	}

	usage, err := store.Open(filepath.Join(cfg.Engine.BasePath, "usage.db"))
	if err != nil {
		return fmt.Errorf("failed to open usage store: %w", err)
	}
	defer func() { _ = usage.Close() }()

	sup := engine.NewSupervisor(engine.Config{
		Paths:  engine.NewPaths(cfg.Engine.BasePath),
		Logger: log,
		Sinks:  sinks,
	})

	var sampler *metrics.EngineSampler
	if cfg.Metrics.Enabled {
		if err := metrics.RegisterDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		sampler = metrics.NewEngineSampler(func() int { return sup.Snapshot().PID }, cfg.Metrics.SampleInterval)
		sampler.Start()
		defer sampler.Stop()

		if cfg.Metrics.Listen != "" {
			go func() {
				srv := &http.Server{
					Addr:              cfg.Metrics.Listen,
					Handler:           metrics.Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
			log.Info("serving metrics", "listen", cfg.Metrics.Listen)
		}
	}

	if !flags.NoEngine {
		ctx := context.Background()
		if err := sup.InstallIfNeeded(ctx); err != nil {
			return fmt.Errorf("engine install failed: %w", err)
		}
		if err := sup.Start(ctx, cfg.Engine.Launch()); err != nil {
			// The daemon still serves its API so clients can inspect and retry.
			log.Error("engine start failed", "error", err)
		}
	}

	router := server.NewRouter(sup, cfg.Engine.Launch(), usage, sinks, cfg.Server.BasePath)
	srv := server.NewServer(cfg.Server.Listen, router)

	log.Info("voxd daemon started", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath,
		"engine_base", cfg.Engine.BasePath)
	fmt.Printf("Serving voxd control API on %s%s\n", cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	sup.Shutdown()
	return srv.Close()
}
