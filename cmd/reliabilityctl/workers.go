package main

import (
	"github.com/spf13/cobra"
)

func newOutboxWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "outbox-worker",
		Short: "run only the outbox claim-and-publish loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			log.Info("outbox worker started")
			a.OutboxProcessor.Run(ctx)
			return nil
		},
	}
}

// newProcessWorkerCmd and newWorkflowWorkerCmd both just keep the process
// alive: their actual continuation handlers are registered on the shared
// InProcessQueue inside app.New and run on its own worker goroutines, the
// same queue the outbox publisher hands in-process jobs to.
func newProcessWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "process-worker",
		Short: "run the long-process continuation consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, log, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			log.Info("long-process worker started")
			blockForever(ctx)
			return nil
		},
	}
}

func newWorkflowWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "workflow-worker",
		Short: "run the workflow continuation consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, log, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			log.Info("workflow worker started")
			blockForever(ctx)
			return nil
		},
	}
}
