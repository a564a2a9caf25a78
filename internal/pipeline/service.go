package pipeline

import (
	"context"
	"fmt"
	"time"

	"popgrid/internal/config"
	"popgrid/internal/summary"
	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"
	"popgrid/pkg/storage"
)

// Service is the run-facing API of the pipeline: it accepts run requests,
// deduplicates them against in-flight and recently completed work, and answers
// queries about runs and their stored results.
type Service interface {
	Enqueue(ctx context.Context, params domain.RunParams) (*domain.Run, error)
	Runs(ctx context.Context, cursor string, limit uint) ([]domain.Run, string, error)
	Run(ctx context.Context, runID domain.RunID) (*domain.Run, error)
	Counts(ctx context.Context, runID domain.RunID) ([]domain.AggregatedCount, error)
	Indicators(ctx context.Context, runID domain.RunID) ([]domain.IndicatorRecord, error)
	Summary(ctx context.Context, runID domain.RunID) (*domain.SummaryTable, error)
}

// Options configure how run jobs are enqueued and how completed results are
// reused.
type Options struct {
	// Defaults are the configured full parameter axes.
	Defaults Defaults
	// MaxAttempts is the maximum number of attempts the background worker makes
	// on a run job before it is marked failed.
	MaxAttempts int
	// ResultCacheTTL is the duration during which a completed run makes new
	// requests with the same params reuse its result instead of recomputing.
	ResultCacheTTL time.Duration
}

// NewOptions derives service Options from the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Defaults: Defaults{
			Countries: cfg.Pipeline.Countries,
			AgeGroups: cfg.Pipeline.AgeGroups,
			Sexes:     cfg.Pipeline.Sexes,
		},
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		ResultCacheTTL: cfg.Pipeline.ResultCacheTTL,
	}
}

// service is the concrete Service backed by the storage layer and the River
// job queue.
type service struct {
	options Options
	storage storage.Storage
}

// New creates a Service backed by the provided storage and options.
func New(storage storage.Storage, options Options) Service {
	return &service{options: options, storage: storage}
}

// Enqueue stores a new pending run for the given parameters and attempts to
// enqueue a background job for it. When a job for the same params key already
// exists, no new job is inserted: if a recent completed result exists the run
// is immediately completed pointing at that result, otherwise the run waits
// for the in-flight job to resolve it.
func (s *service) Enqueue(ctx context.Context, params domain.RunParams) (*domain.Run, error) {
	normalized, err := NormalizeParams(params, s.options.Defaults)
	if err != nil {
		return nil, err
	}
	key := ParamsKey(normalized)

	var run *domain.Run
	if err := s.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		res, err := tx.StoreRuns(ctx, domain.Run{
			Params:    normalized,
			ParamsKey: key,
			Status:    domain.RunStatusPending,
		})
		if err != nil {
			return fmt.Errorf("could not store run: %w", err)
		}
		run = &res[0]

		jobAdded, err := tx.AddJob(ctx, JobArgs{
			ParamsKey:       key,
			Params:          normalized,
			maxAttempts:     s.options.MaxAttempts,
			uniqueJobPeriod: s.options.ResultCacheTTL,
		}, nil)
		if err != nil {
			return fmt.Errorf("could not add job: %w", err)
		}

		// No job added means one already exists for this params key. If that
		// job already completed, adopt its stored result; otherwise the worker
		// resolves this run together with all other pending runs for the key.
		if !jobAdded {
			lastResult, err := tx.LastCompletedRunByKey(ctx, key)
			if err != nil {
				return fmt.Errorf("could not get last completed run: %w", err)
			}

			if lastResult != nil {
				resultID := lastResult.ID
				updated, err := tx.UpdateRunByID(ctx, run.ID, storage.RunUpdates{
					Status:      domain.RunStatusCompleted,
					Metadata:    lastResult.Metadata,
					ResultRunID: &resultID,
				})
				if err != nil {
					return fmt.Errorf("could not update run: %w", err)
				}
				run = updated
			}
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not enqueue run: %w", err)
	}

	return run, nil
}

// Runs returns a page of runs, newest first, with cursor-based pagination on
// an RFC3339 timestamp.
func (s *service) Runs(ctx context.Context, cursor string, limit uint) ([]domain.Run, string, error) {
	var cursorTime time.Time
	if cursor != "" {
		t, err := time.Parse(time.RFC3339, cursor)
		if err != nil {
			return nil, "", serrors.Wrap(serrors.ErrBadRequest, err, "invalid cursor")
		}
		cursorTime = t
	}

	page, err := s.storage.Runs(ctx, cursorTime, limit)
	if err != nil {
		return nil, "", fmt.Errorf("could not get runs: %w", err)
	}

	var next string
	if page.NextCursor != nil {
		next = page.NextCursor.Format(time.RFC3339)
	}

	return page.Runs, next, nil
}

// Run fetches a single run by ID.
func (s *service) Run(ctx context.Context, runID domain.RunID) (*domain.Run, error) {
	run, err := s.storage.RunByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("could not get run: %w", err)
	}
	if run == nil {
		return nil, serrors.With(serrors.ErrNotFound, "run not found")
	}

	return run, nil
}

// Counts returns the aggregated counts of a completed run, following the
// result pointer when the run reused another run's rows.
func (s *service) Counts(ctx context.Context, runID domain.RunID) ([]domain.AggregatedCount, error) {
	run, err := s.completedRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	counts, err := s.storage.CountsByRun(ctx, run.ResultID())
	if err != nil {
		return nil, fmt.Errorf("could not get counts: %w", err)
	}

	return counts, nil
}

// Indicators returns the indicator records of a completed run, following the
// result pointer when the run reused another run's rows.
func (s *service) Indicators(ctx context.Context, runID domain.RunID) ([]domain.IndicatorRecord, error) {
	run, err := s.completedRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	records, err := s.storage.IndicatorsByRun(ctx, run.ResultID())
	if err != nil {
		return nil, fmt.Errorf("could not get indicators: %w", err)
	}

	return records, nil
}

// Summary reassembles the summary table of a completed run from its stored
// rows. The district axis comes from the run metadata, so the table keeps one
// row per district in boundary order even when a district produced no counts.
// Runs persisted before the axis was recorded fall back to rebuilding it from
// the stored counts.
func (s *service) Summary(ctx context.Context, runID domain.RunID) (*domain.SummaryTable, error) {
	run, err := s.completedRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	counts, err := s.storage.CountsByRun(ctx, run.ResultID())
	if err != nil {
		return nil, fmt.Errorf("could not get counts: %w", err)
	}
	records, err := s.storage.IndicatorsByRun(ctx, run.ResultID())
	if err != nil {
		return nil, fmt.Errorf("could not get indicators: %w", err)
	}

	var meta domain.RunMetadata
	if run.Metadata != nil {
		meta = *run.Metadata
	}

	districts := make(map[string][]domain.DistrictBoundary)
	if len(meta.Districts) > 0 {
		for _, ref := range meta.Districts {
			districts[ref.Country] = append(districts[ref.Country], domain.DistrictBoundary{
				ID:      ref.DistrictID,
				Name:    ref.Name,
				Region:  ref.Region,
				Country: ref.Country,
			})
		}
	} else {
		// Older runs did not persist the axis; rebuild it from the stored
		// counts, first appearance wins.
		seen := make(map[domain.CountKey]struct{})
		for _, c := range counts {
			ref := domain.CountKey{Country: c.Key.Country, DistrictID: c.Key.DistrictID}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			districts[c.Key.Country] = append(districts[c.Key.Country], domain.DistrictBoundary{
				ID:      c.Key.DistrictID,
				Name:    c.District,
				Region:  c.Region,
				Country: c.Key.Country,
			})
		}
	}

	return summary.Assemble(run.Params, districts, counts, records, meta), nil
}

// completedRun loads a run and verifies its results are queryable.
func (s *service) completedRun(ctx context.Context, runID domain.RunID) (*domain.Run, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, serrors.With(serrors.ErrConflict, "run is %s, results are only available for completed runs", run.Status)
	}

	return run, nil
}
