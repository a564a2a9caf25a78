package storage

import (
	"context"
	"popgrid/pkg/domain"
	"time"
)

// RunUpdates describes a set of optional fields that can be applied to an
// existing run during an update. Only non-nil fields will be updated
// (Status is required and always set).
type RunUpdates struct {
	// Status is the new status to set for the run.
	Status domain.RunStatus
	// Metadata, when provided, replaces the stored run metadata payload.
	Metadata *domain.RunMetadata
	// ResultRunID, when provided, points the run at another run's stored rows.
	ResultRunID *domain.RunID
	// LastError, when provided, sets the last error text. An empty string value
	// indicates the error should be cleared (set to NULL).
	LastError *string
}

// RunPage groups a page of runs together with an optional NextCursor used for
// pagination.
type RunPage struct {
	// Runs contains the current page of run records.
	Runs []domain.Run
	// NextCursor points to the timestamp to be used as the cursor for fetching
	// the next page. It is nil when there is no next page.
	NextCursor *time.Time
}

// RunStorage defines CRUD and query operations related to pipeline runs.
type RunStorage interface {
	// StoreRuns inserts one or more runs and returns the stored rows as they
	// exist in the database (including generated fields).
	StoreRuns(ctx context.Context, runs ...domain.Run) ([]domain.Run, error)
	// UpdateRunByID updates a single run identified by its ID and returns the
	// updated row. updated_at is set automatically.
	UpdateRunByID(ctx context.Context, ID domain.RunID, updates RunUpdates) (*domain.Run, error)
	// UpdatePendingRunsByKey updates all pending runs with the given canonical
	// params key. Used by the worker to resolve every request that was waiting
	// on the same combination set.
	UpdatePendingRunsByKey(ctx context.Context, paramsKey string, updates RunUpdates) error
	// OldestPendingRunByKey returns the earliest-created pending run for the
	// given params key, or nil when none exists.
	OldestPendingRunByKey(ctx context.Context, paramsKey string) (*domain.Run, error)
	// LastCompletedRunByKey returns the most recent completed run for the given
	// params key whose results are stored under its own ID (not a reused
	// result). Returns nil when no such run exists.
	LastCompletedRunByKey(ctx context.Context, paramsKey string) (*domain.Run, error)
	// RunByID fetches a run by its ID. Returns nil when not found.
	RunByID(ctx context.Context, ID domain.RunID) (*domain.Run, error)
	// Runs returns a page of runs created before the optional cursor time,
	// limited by the given limit, newest first.
	Runs(ctx context.Context, cursor time.Time, limit uint) (RunPage, error)
}

// ResultStorage persists and queries the per-district result rows of completed
// runs.
type ResultStorage interface {
	// StoreCounts inserts the aggregated counts of a run.
	StoreCounts(ctx context.Context, runID domain.RunID, counts []domain.AggregatedCount) error
	// StoreIndicators inserts the indicator records of a run. Undefined values
	// are stored as NULL, never as a numeric sentinel.
	StoreIndicators(ctx context.Context, runID domain.RunID, records []domain.IndicatorRecord) error
	// CountsByRun returns all aggregated counts stored for a run, ordered by
	// district then age group then sex.
	CountsByRun(ctx context.Context, runID domain.RunID) ([]domain.AggregatedCount, error)
	// IndicatorsByRun returns all indicator records stored for a run, one
	// record per district.
	IndicatorsByRun(ctx context.Context, runID domain.RunID) ([]domain.IndicatorRecord, error)
}
