package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trackd/internal/config"
	"github.com/fyrsmithlabs/trackd/internal/coordinator"
	"github.com/fyrsmithlabs/trackd/internal/executor"
	"github.com/fyrsmithlabs/trackd/internal/logging"
	"github.com/fyrsmithlabs/trackd/internal/routing"
	"github.com/fyrsmithlabs/trackd/internal/services"
	"github.com/fyrsmithlabs/trackd/internal/store"
	"github.com/fyrsmithlabs/trackd/internal/telemetry"
)

// app holds the bootstrapped process: configuration, logging, telemetry,
// and the service registry. Every command builds one, runs, and closes it.
type app struct {
	config    *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  services.Registry
}

// newApp loads configuration and wires the full service graph.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromTree(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromTree(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zlog := logger.Underlying()

	st, err := newStore(cfg.Storage, zlog)
	if err != nil {
		return nil, err
	}

	registry := routing.NewRegistry()
	router := routing.NewRouter(registry)
	directory := executor.NewDirectory()
	pool := executor.NewPool(executor.PoolConfig{
		Deadline:      cfg.Executors.Deadline.Duration(),
		MaxParallel:   cfg.Executors.MaxParallel,
		RatePerSecond: cfg.Executors.RatePerSecond,
	}, directory, zlog)

	coord, err := coordinator.NewService(coordinator.Config{
		RemediationPasses: cfg.Workflow.RemediationPasses,
		CascadeBlock:      cfg.Workflow.CascadeBlock,
	}, st, router, pool, zlog)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	return &app{
		config:    cfg,
		logger:    logger,
		telemetry: tel,
		registry: services.NewRegistry(services.Options{
			Coordinator: coord,
			Store:       st,
			Router:      router,
			Executors:   directory,
		}),
	}, nil
}

// newStore builds the configured entity store adapter.
func newStore(cfg config.StorageConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.Path, logger)
	}
}

// Close releases the app's resources in reverse wiring order.
func (a *app) Close(ctx context.Context) {
	if err := a.registry.Coordinator().Close(); err != nil {
		a.logger.Warn(ctx, "failed to close coordinator", zap.Error(err))
	}
	if err := a.registry.Store().Close(); err != nil {
		a.logger.Warn(ctx, "failed to close store", zap.Error(err))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "failed to shut down telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}
