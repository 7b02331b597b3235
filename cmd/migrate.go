package cmd

import (
	"fmt"
	"net/url"

	"github.com/shini559/Gaming-advisor-sub000/internal/adapter/outbound/repository"
	"github.com/shini559/Gaming-advisor-sub000/internal/config"

	"github.com/spf13/cobra"
)

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply database schema migrations embedded in the binary.

Migrations create the gameadvisor schema, the batch and image tables, the
vector table with its pgvector indexes, and any later schema changes. Only
migrations not yet applied are executed.

Configuration for the database connection is loaded from config files and
environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig()
			configureLogging(cfg)

			if err := repository.RunMigrations(databaseURL(cfg)); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.AddCommand(newMigrateStatusCmd())
	return cmd
}

// newMigrateStatusCmd reports the applied schema version without changing
// anything.
func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig()
			configureLogging(cfg)

			version, dirty, err := repository.MigrationVersion(databaseURL(cfg))
			if err != nil {
				return err
			}

			if version == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "version: %d\n", version)
			if dirty {
				fmt.Fprintln(cmd.OutOrStdout(), "state: dirty (manual cleanup required)")
			}
			return nil
		},
	}
}

// databaseURL renders the postgres connection URL the migration driver
// expects, escaping credentials that would break a flat string.
func databaseURL(cfg *config.Config) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port),
		Path:   "/" + cfg.Database.Name,
	}

	if cfg.Database.Password != "" {
		u.User = url.UserPassword(cfg.Database.User, cfg.Database.Password)
	} else {
		u.User = url.User(cfg.Database.User)
	}

	if cfg.Database.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", cfg.Database.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}
