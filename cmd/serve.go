package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"popgrid/internal/api"
	"popgrid/internal/api/handler/v1handler"
	"popgrid/internal/config"
	"popgrid/internal/pipeline"
	"popgrid/internal/worker"
	"popgrid/pkg/logger"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func setupServer(ctx context.Context, cfg *config.Config, deps api.Deps) func(ctx context.Context) {
	server, err := api.NewServer(deps, api.NewOptions(cfg))
	if err != nil {
		logger.Fatal(ctx, "could not create webserver", zap.Error(err))
	}

	go func() {
		logger.Info(ctx, "starting webserver...")
		if err := server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "could not start webserver", zap.Error(err))
			}
		}
	}()

	return func(ctx context.Context) {
		logger.Info(ctx, "stopping webserver...")
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(ctx, "could not stop webserver", zap.Error(err))
		}
	}
}

// serveCommand constructs the 'serve' subcommand that starts the API server
// and the background run workers.
func serveCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts API server and background workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

			pgsql, closeStrg := getPostgres(ctx, cfg)
			defer closeStrg()

			pipe := getPipeline(ctx, cfg)
			svc := pipeline.New(pgsql, pipeline.NewOptions(cfg))

			riverClient, err := worker.Start(ctx, pgsql.Pool, pgsql, pipe, worker.Options{
				MaxWorkers: cfg.Worker.MaxWorkers,
				OutputDir:  cfg.Pipeline.OutputDir,
			})
			if err != nil {
				logger.Fatal(ctx, "could not start background workers", zap.Error(err))
			}

			stopWebserver := setupServer(ctx, cfg, api.Deps{
				Deps: v1handler.Deps{Service: svc},
			})

			// wait for interrupt
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
			defer cancel()

			stopWebserver(shutdownCtx)

			logger.Info(shutdownCtx, "stopping background workers...")
			if err := riverClient.Stop(shutdownCtx); err != nil {
				logger.Error(shutdownCtx, "could not stop background workers", zap.Error(err))
			}
		},
	}

	return cmd
}
