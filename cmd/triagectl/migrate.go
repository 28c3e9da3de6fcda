package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage-assistant/internal/platform/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres migrations from MIGRATIONS_PATH to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := database.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully!")
			return nil
		},
	}
}
