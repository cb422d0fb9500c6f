package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/richardliu001/reliability-core/internal/app"
	"github.com/richardliu001/reliability-core/internal/config"
	"github.com/richardliu001/reliability-core/internal/logger"
)

// loadApp resolves configPath (falling back to config.DefaultPath when
// empty), builds the logger, and wires the full dependency graph. Every
// subcommand shares this so "serve" and the worker loops see identical
// collaborators.
func loadApp(ctx context.Context, configPath string) (*app.App, *zap.SugaredLogger, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("wire app: %w", err)
	}
	return a, log, nil
}

// blockForever keeps a worker subcommand alive; its actual work runs on
// the InProcessQueue's own goroutines, started inside app.New.
func blockForever(ctx context.Context) {
	<-ctx.Done()
}
