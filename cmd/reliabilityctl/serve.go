package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	httptransport "github.com/richardliu001/reliability-core/internal/transport/http"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and the in-process outbox/long-process/workflow workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			go a.OutboxProcessor.Run(ctx)

			deps := httptransport.Dependencies{
				Bus:         a.CommandBus,
				WalletSvc:   a.WalletSvc,
				OutboxStore: a.OutboxStore,
				RateLimit:   a.Config.RateLimit,
				Log:         log,
				BlogID:      0,
			}
			router := httptransport.NewRouter(deps)

			addr := fmt.Sprintf(":%d", a.Config.Server.Port)
			log.Infof("reliability-core listening on %s", addr)
			return http.ListenAndServe(addr, router)
		},
	}
}
