package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/richardliu001/reliability-core/internal/config"
)

// migrationsPath is the golang-migrate source URL for the SQL files
// production rollout applies; AutoMigrate (via storage.EnsureSchema)
// remains the fast path app.New runs at process start.
const migrationsPath = "file://internal/storage/migrations"

func newMigrateCmd(configPath *string) *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				path = config.DefaultPath()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := sqlOpen(cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			driver, err := postgres.WithInstance(db, &postgres.Config{})
			if err != nil {
				return fmt.Errorf("migrate driver: %w", err)
			}
			m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
			if err != nil {
				return fmt.Errorf("migrate init: %w", err)
			}

			switch direction {
			case "up":
				err = m.Up()
			case "down":
				err = m.Down()
			default:
				return fmt.Errorf("unknown migrate direction %q, want up or down", direction)
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "up", "migration direction: up or down")
	return cmd
}
