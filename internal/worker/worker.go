// Package worker runs aggregation jobs from the River queue. One job exists
// per params key; the worker executes the pipeline once and resolves every
// pending run waiting on that key.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"popgrid/internal/pipeline"
	"popgrid/pkg/logger"
	"popgrid/pkg/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.uber.org/zap/exp/zapslog"
)

// Options configure the background worker.
type Options struct {
	// MaxWorkers limits how many run jobs execute concurrently.
	MaxWorkers int
	// OutputDir is where each completed run writes its file artifacts, in a
	// subdirectory named after the run ID. Empty disables file output.
	OutputDir string
}

// Start registers the run worker and starts a River client on the given pool.
func Start(
	ctx context.Context,
	dbPool *pgxpool.Pool,
	store storage.Storage,
	pipe *pipeline.Pipeline,
	options Options,
) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewRunWorker(store, pipe, options.OutputDir))

	riverClient, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: options.MaxWorkers},
		},
		Workers: workers,
		Logger:  slog.New(zapslog.NewHandler(logger.Get(ctx).Core())),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create river queue client: %w", err)
	}

	if err := riverClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("could not start river queue client: %w", err)
	}

	return riverClient, nil
}
