package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lms-billing/internal/config"
	pg "lms-billing/internal/infra/db/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath, devMode)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := pg.MigrateUp(cfg.Database.URL); err != nil {
			return err
		}
		return printVersion(cmd, cfg.Database.URL)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath, devMode)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := pg.MigrateDown(cfg.Database.URL, migrateSteps); err != nil {
			return err
		}
		return printVersion(cmd, cfg.Database.URL)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath, devMode)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		return printVersion(cmd, cfg.Database.URL)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func printVersion(cmd *cobra.Command, dsn string) error {
	v, dirty, err := pg.MigrationVersion(dsn)
	if err != nil {
		return err
	}
	cmd.Printf("schema version %d (dirty=%t)\n", v, dirty)
	return nil
}
