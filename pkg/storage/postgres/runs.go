package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"popgrid/pkg/domain"
	"popgrid/pkg/storage"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

const (
	runsTable = "runs"
)

func (p *PgSQL) StoreRuns(ctx context.Context, runs ...domain.Run) ([]domain.Run, error) {
	if len(runs) == 0 {
		return nil, nil
	}

	pgRuns, err := domainRunsToPg(runs)
	if err != nil {
		return nil, err
	}

	var result []PgRun
	if err := p.Builder.Insert(runsTable).
		Rows(pgRuns).
		Returning(&PgRun{}).
		Executor().ScanStructsContext(ctx, &result); err != nil {
		return nil, fmt.Errorf("could not store runs into pg: %w", err)
	}

	return pgRunsToDomain(result)
}

// updateRecord builds the goqu record for a run update. updated_at is always
// refreshed.
func updateRecord(updates storage.RunUpdates) (goqu.Record, error) {
	rec := goqu.Record{
		"updated_at": goqu.L("CURRENT_TIMESTAMP"),
		"status":     string(updates.Status),
	}
	if updates.Metadata != nil {
		b, err := json.Marshal(updates.Metadata)
		if err != nil {
			return nil, fmt.Errorf("could not marshal run metadata: %w", err)
		}

		rec["metadata"] = b
	}
	if updates.ResultRunID != nil {
		rec["result_run_id"] = uuid.UUID(*updates.ResultRunID)
	}
	if updates.LastError != nil {
		if *updates.LastError == "" {
			// set to NULL when empty string provided
			rec["last_error"] = goqu.L("NULL")
		} else {
			rec["last_error"] = *updates.LastError
		}
	}

	return rec, nil
}

// UpdateRunByID updates a single run identified by its ID and returns the
// updated row, or nil when the run does not exist.
func (p *PgSQL) UpdateRunByID(ctx context.Context,
	ID domain.RunID,
	updates storage.RunUpdates) (*domain.Run, error) {
	rec, err := updateRecord(updates)
	if err != nil {
		return nil, err
	}

	var row PgRun
	found, err := p.Builder.Update(runsTable).
		Set(rec).Where(
		goqu.I("id").Eq(uuid.UUID(ID)),
	).Returning(&PgRun{}).Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("could not update run in pg: %w", err)
	}
	if !found {
		return nil, nil
	}

	return row.ToDomain()
}

// UpdatePendingRunsByKey applies the given updates to every pending run with
// the provided canonical params key.
func (p *PgSQL) UpdatePendingRunsByKey(ctx context.Context,
	paramsKey string,
	updates storage.RunUpdates) error {
	rec, err := updateRecord(updates)
	if err != nil {
		return err
	}

	_, err = p.Builder.Update(runsTable).
		Set(rec).Where(
		goqu.I("params_key").Eq(paramsKey),
		goqu.I("status").Eq(string(domain.RunStatusPending)),
	).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("could not update pending runs by key in pg: %w", err)
	}

	return nil
}

// OldestPendingRunByKey returns the earliest-created pending run for the given
// params key, or nil when none exists.
func (p *PgSQL) OldestPendingRunByKey(ctx context.Context, paramsKey string) (*domain.Run, error) {
	var row PgRun
	found, err := p.Builder.From(runsTable).
		Where(
			goqu.I("params_key").Eq(paramsKey),
			goqu.I("status").Eq(string(domain.RunStatusPending)),
		).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).
		Limit(1).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("could not get oldest pending run by key from pg: %w", err)
	}
	if !found {
		return nil, nil
	}

	return row.ToDomain()
}

// LastCompletedRunByKey returns the most recent completed run for the given
// params key that stores its own result rows (result_run_id IS NULL), or nil
// when no such run exists.
func (p *PgSQL) LastCompletedRunByKey(ctx context.Context, paramsKey string) (*domain.Run, error) {
	var row PgRun
	found, err := p.Builder.From(runsTable).
		Where(
			goqu.I("params_key").Eq(paramsKey),
			goqu.I("status").Eq(string(domain.RunStatusCompleted)),
			goqu.I("result_run_id").IsNull(),
		).
		Order(goqu.I("updated_at").Desc()).
		Limit(1).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("could not get last completed run by key from pg: %w", err)
	}
	if !found {
		return nil, nil
	}

	return row.ToDomain()
}

// RunByID fetches a run by its ID. Returns nil when not found.
func (p *PgSQL) RunByID(ctx context.Context, ID domain.RunID) (*domain.Run, error) {
	var row PgRun
	found, err := p.Builder.From(runsTable).
		Where(goqu.I("id").Eq(uuid.UUID(ID))).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("could not get run by id from pg: %w", err)
	}
	if !found {
		return nil, nil
	}

	return row.ToDomain()
}

// Runs returns a page of runs created before the optional cursor time,
// newest first. Results carry a next cursor when more rows are available.
func (p *PgSQL) Runs(ctx context.Context, cursor time.Time, limit uint) (storage.RunPage, error) {
	w := []goqu.Expression{}
	if !cursor.IsZero() {
		w = append(w, goqu.I("created_at").Lt(cursor))
	}

	// fetch one extra to determine if there is a next page
	fetch := limit + 1
	ds := p.Builder.From(runsTable).
		Where(w...).
		Order(goqu.I("created_at").Desc(), goqu.I("id").Desc()).
		Limit(fetch)

	var rows []PgRun
	if err := ds.Executor().ScanStructsContext(ctx, &rows); err != nil {
		return storage.RunPage{}, fmt.Errorf("could not list runs from pg: %w", err)
	}

	page := storage.RunPage{}
	if uint(len(rows)) > limit {
		rows = rows[:limit]
		next := rows[len(rows)-1].CreatedAt
		page.NextCursor = &next
	}

	runs, err := pgRunsToDomain(rows)
	if err != nil {
		return storage.RunPage{}, err
	}
	page.Runs = runs

	return page, nil
}
