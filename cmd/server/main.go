package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/richardliu001/reliability-core/internal/app"
	"github.com/richardliu001/reliability-core/internal/config"
	"github.com/richardliu001/reliability-core/internal/logger"
	httptransport "github.com/richardliu001/reliability-core/internal/transport/http"
)

func main() {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("wire app: %v", err)
	}

	go a.OutboxProcessor.Run(ctx)

	deps := httptransport.Dependencies{
		Bus:         a.CommandBus,
		WalletSvc:   a.WalletSvc,
		OutboxStore: a.OutboxStore,
		RateLimit:   cfg.RateLimit,
		Log:         log,
		BlogID:      0,
	}
	router := httptransport.NewRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("reliability-core listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
