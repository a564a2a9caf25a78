package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"popgrid/internal/pipeline"
	"popgrid/pkg/domain"
	"popgrid/pkg/logger"
	"popgrid/pkg/serrors"
	"popgrid/pkg/storage"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

// RunWorker executes one aggregation run per job. The job's params key may
// have several pending runs behind it (deduplicated requests); the oldest one
// becomes the owner of the stored result rows and every other pending run is
// completed pointing at it.
type RunWorker struct {
	river.WorkerDefaults[pipeline.JobArgs]

	storage   storage.Storage
	pipeline  *pipeline.Pipeline
	outputDir string
}

// NewRunWorker constructs a RunWorker.
func NewRunWorker(store storage.Storage, pipe *pipeline.Pipeline, outputDir string) *RunWorker {
	return &RunWorker{storage: store, pipeline: pipe, outputDir: outputDir}
}

// Work executes a single run job.
func (w *RunWorker) Work(ctx context.Context, job *river.Job[pipeline.JobArgs]) error {
	ctx = logger.WithFields(ctx,
		zap.Int64("jobID", job.ID),
		zap.String("paramsKey", job.Args.ParamsKey))

	owner, err := w.storage.OldestPendingRunByKey(ctx, job.Args.ParamsKey)
	if err != nil {
		return fmt.Errorf("could not get pending run: %w", err)
	}
	if owner == nil {
		// Every run for this key was already resolved (e.g. by result reuse).
		logger.Info(ctx, "no pending runs for job, nothing to do")

		return nil
	}

	res, err := w.pipeline.Execute(ctx, job.Args.Params)
	if err != nil {
		return w.failed(ctx, job, err)
	}

	if w.outputDir != "" {
		dir := filepath.Join(w.outputDir, uuid.UUID(owner.ID).String())
		if err := pipeline.WriteOutputs(dir, res); err != nil {
			return w.failed(ctx, job, fmt.Errorf("could not write outputs: %w", err))
		}
	}

	meta := res.Table.Metadata
	if err := w.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		if err := tx.StoreCounts(ctx, owner.ID, res.Counts); err != nil {
			return fmt.Errorf("could not store counts: %w", err)
		}
		if err := tx.StoreIndicators(ctx, owner.ID, res.Indicators); err != nil {
			return fmt.Errorf("could not store indicators: %w", err)
		}

		// Complete the owner first, then point every other pending run for the
		// key at its rows.
		if _, err := tx.UpdateRunByID(ctx, owner.ID, storage.RunUpdates{
			Status:   domain.RunStatusCompleted,
			Metadata: &meta,
		}); err != nil {
			return fmt.Errorf("could not complete run: %w", err)
		}

		ownerID := owner.ID
		if err := tx.UpdatePendingRunsByKey(ctx, job.Args.ParamsKey, storage.RunUpdates{
			Status:      domain.RunStatusCompleted,
			Metadata:    &meta,
			ResultRunID: &ownerID,
		}); err != nil {
			return fmt.Errorf("could not resolve pending runs: %w", err)
		}

		return nil
	}); err != nil {
		return w.failed(ctx, job, err)
	}

	logger.Info(ctx, "run completed",
		zap.Int("rows", meta.RowCount),
		zap.Int("skippedUnits", len(meta.SkippedUnits)))

	return nil
}

// failed decides between retrying and giving up. Terminal errors (broken or
// missing input data that a retry cannot fix) and exhausted attempts mark all
// pending runs for the key as failed. Boundary errors only surface here when
// no requested country had a usable boundary set; a partial boundary failure
// skips the affected country inside the pipeline instead.
func (w *RunWorker) failed(ctx context.Context, job *river.Job[pipeline.JobArgs], err error) error {
	logger.Error(ctx, "run job failed", zap.Error(err))

	terminal := errors.Is(err, serrors.ErrBoundaryNotFound) ||
		errors.Is(err, serrors.ErrInvalidGeometry) ||
		errors.Is(err, serrors.ErrBadRequest)
	lastAttempt := job.Attempt >= job.MaxAttempts

	if !terminal && !lastAttempt {
		return err
	}

	msg := err.Error()
	if updateErr := w.storage.UpdatePendingRunsByKey(ctx, job.Args.ParamsKey, storage.RunUpdates{
		Status:    domain.RunStatusFailed,
		LastError: &msg,
	}); updateErr != nil {
		return fmt.Errorf("could not mark runs failed: %w (original: %w)", updateErr, err)
	}

	if terminal {
		return river.JobCancel(err) //nolint: wrapcheck
	}

	return err
}
