package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/victorgomez09/supportportal/internal/auth/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Aliases: []string{"m"},
		Args:    cobra.NoArgs,
		Short:   "Create or upgrade the account database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logs, log, err := initializeLogging(opts.logConfigs)
			if err != nil {
				return err
			}
			defer func() { _ = logs.Close() }()

			cfg, err := loadConfig(opts.configPath, log)
			if err != nil {
				return err
			}
			table, err := cfg.RoleTable()
			if err != nil {
				return err
			}

			db, err := database.NewSQLiteDB(cmd.Context(), database.Options{
				Path:        cfg.Database.Path,
				BusyTimeout: cfg.Database.BusyTimeout,
			}, table)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("Database schema is up to date", zap.String("path", cfg.Database.Path))
			return nil
		},
	}
}
