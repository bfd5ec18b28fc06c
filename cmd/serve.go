package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"edurecovery/internal/adapter/inbound/api"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/application/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recovery API server",
	Long: `Start the HTTP API exposing circuit breaker, degradation and notification
state, accepting client error reports and instrumentation events.

Reports are forwarded to every sink listed in reporting.sinks. The server
shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	factory := NewServiceFactory(GetConfig())
	defer factory.Close()

	rc, err := factory.CreateRecoveryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to create recovery context: %w", err)
	}

	server, err := factory.CreateServer(rc)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	slogger.Info(ctx, "API server started", slogger.Fields{
		"address": server.Address(),
		"sinks":   GetConfig().Reporting.Sinks,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Wait)
	g.Go(func() error {
		<-gctx.Done()
		return gracefulShutdown(server, rc)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func gracefulShutdown(server *api.Server, rc *service.RecoveryContext) error {
	timeout := GetConfig().API.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	slogger.InfoNoCtx("Initiating graceful shutdown", slogger.Fields{"timeout": timeout.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := rc.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("flush reports: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slogger.InfoNoCtx("API server shut down gracefully", nil)
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(serveCmd)
}
