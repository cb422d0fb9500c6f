// Command reliabilityctl is the operational CLI for the reliability core:
// serving HTTP, running the outbox/long-process/workflow background
// loops, and applying schema migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "reliabilityctl",
		Short: "reliability core operational CLI",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults to CONFIG_PATH or internal/config/config.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newOutboxWorkerCmd(&configPath),
		newProcessWorkerCmd(&configPath),
		newWorkflowWorkerCmd(&configPath),
		newMigrateCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
