// Package cmd provides command-line interface functionality for the edurecovery service.
package cmd

import (
	"context"
	"fmt"
	"time"

	"edurecovery/internal/application/common/slogger"

	"github.com/spf13/cobra"
)

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the error report table",
		Long: `Create the PostgreSQL schema, table and index used by the postgres report sink.

The statements are idempotent and safe to run on every deploy. Connection
settings are loaded from config files and EDURECOVERY_ environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runMigrate(ctx)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time allowed for connecting and migrating")
	return cmd
}

func runMigrate(ctx context.Context) error {
	if err := GetConfig().Database.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	factory := NewServiceFactory(GetConfig())
	defer factory.Close()

	if _, err := factory.CreateReportRepository(ctx); err != nil {
		return err
	}

	slogger.Info(ctx, "Error report table is ready", slogger.Fields{
		"schema":   GetConfig().Database.Schema,
		"database": GetConfig().Database.Name,
	})
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}
