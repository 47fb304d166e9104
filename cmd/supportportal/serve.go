package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/victorgomez09/supportportal/internal/server"
	"github.com/victorgomez09/supportportal/internal/shutdown"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start", "run"},
		Args:    cobra.NoArgs,
		Short:   "Start the portal HTTP server",
		Long:    "Start the portal HTTP server and block until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logs, log, err := initializeLogging(opts.logConfigs)
			if err != nil {
				return err
			}
			defer func() { _ = logs.Close() }()

			cfg, err := loadConfig(opts.configPath, log)
			if err != nil {
				log.Error("Startup aborted", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stages := shutdown.NewManager(log)
			srv, err := NewServerBuilder(cfg, logs, stages).BuildServer(ctx)
			if err != nil {
				log.Error("Failed to initialize server", zap.Error(err))
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return errors.Join(err, stages.Shutdown(shutdownCtx))
			}

			return runServer(ctx, srv, stages, cfg.Server.ShutdownTimeout, log)
		},
	}
}

// runServer serves until ctx ends or the listener fails, then runs the
// shutdown stages.
func runServer(ctx context.Context, srv *server.Server, stages *shutdown.Manager, timeout time.Duration, log *zap.Logger) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Warn("Shutdown signal received. Initializing graceful shutdown")
	case serveErr = <-errChan:
		if serveErr != nil {
			log.Error("Server error triggered shutdown", zap.Error(serveErr))
			serveErr = fmt.Errorf("server: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stages.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return errors.Join(serveErr, err)
	}
	log.Info("Server shutdown completed")
	return serveErr
}
