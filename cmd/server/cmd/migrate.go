package cmd

import (
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand(global *globalFlags) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "migrations directory (default: DATABASE_MIGRATIONS_PATH)")

	resolve := func() (string, string, error) {
		cfg, err := loadConfig(global)
		if err != nil {
			return "", "", fmt.Errorf("config error: %w", err)
		}
		migrations := path
		if migrations == "" {
			migrations = cfg.Database.MigrationsPath
		}
		return cfg.Database.URL, migrations, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, migrations, err := resolve()
			if err != nil {
				return err
			}
			if err := postgres.MigrateUp(url, migrations); err != nil {
				return err
			}
			return printVersion(cmd, url, migrations)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, migrations, err := resolve()
			if err != nil {
				return err
			}
			if err := postgres.MigrateDown(url, migrations, steps); err != nil {
				return err
			}
			return printVersion(cmd, url, migrations)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, migrations, err := resolve()
			if err != nil {
				return err
			}
			return printVersion(cmd, url, migrations)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(cmd *cobra.Command, url, migrations string) error {
	version, dirty, err := postgres.MigrationVersion(url, migrations)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
