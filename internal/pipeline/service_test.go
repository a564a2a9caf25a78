package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"popgrid/internal/pipeline"
	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"
	"popgrid/pkg/storage"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/stretchr/testify/require"
)

// fakeStorage is an in-memory storage.Storage used to test the run service
// without a database.
type fakeStorage struct {
	runs  map[domain.RunID]*domain.Run
	order []domain.RunID

	counts     map[domain.RunID][]domain.AggregatedCount
	indicators map[domain.RunID][]domain.IndicatorRecord

	// addJobInserted is the value AddJob reports; false simulates an existing
	// unique job for the same params key.
	addJobInserted bool
	addedJobs      []river.JobArgs

	lastCompleted *domain.Run
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		runs:           make(map[domain.RunID]*domain.Run),
		counts:         make(map[domain.RunID][]domain.AggregatedCount),
		indicators:     make(map[domain.RunID][]domain.IndicatorRecord),
		addJobInserted: true,
	}
}

func (f *fakeStorage) StoreRuns(_ context.Context, runs ...domain.Run) ([]domain.Run, error) {
	out := make([]domain.Run, 0, len(runs))
	for _, r := range runs {
		r.ID = domain.RunID(uuid.New())
		r.CreatedAt = time.Now()
		r.UpdatedAt = r.CreatedAt
		stored := r
		f.runs[r.ID] = &stored
		f.order = append(f.order, r.ID)
		out = append(out, r)
	}

	return out, nil
}

func (f *fakeStorage) UpdateRunByID(_ context.Context, id domain.RunID, u storage.RunUpdates) (*domain.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	run.Status = u.Status
	if u.Metadata != nil {
		run.Metadata = u.Metadata
	}
	if u.ResultRunID != nil {
		run.ResultRunID = u.ResultRunID
	}
	if u.LastError != nil {
		run.LastError = *u.LastError
	}
	updated := *run

	return &updated, nil
}

func (f *fakeStorage) UpdatePendingRunsByKey(ctx context.Context, key string, u storage.RunUpdates) error {
	for _, run := range f.runs {
		if run.ParamsKey == key && run.Status == domain.RunStatusPending {
			_, _ = f.UpdateRunByID(ctx, run.ID, u)
		}
	}

	return nil
}

func (f *fakeStorage) OldestPendingRunByKey(_ context.Context, key string) (*domain.Run, error) {
	for _, id := range f.order {
		if run := f.runs[id]; run.ParamsKey == key && run.Status == domain.RunStatusPending {
			out := *run

			return &out, nil
		}
	}

	return nil, nil
}

func (f *fakeStorage) LastCompletedRunByKey(_ context.Context, _ string) (*domain.Run, error) {
	return f.lastCompleted, nil
}

func (f *fakeStorage) RunByID(_ context.Context, id domain.RunID) (*domain.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	out := *run

	return &out, nil
}

func (f *fakeStorage) Runs(_ context.Context, _ time.Time, limit uint) (storage.RunPage, error) {
	var page storage.RunPage
	for i := len(f.order) - 1; i >= 0 && uint(len(page.Runs)) < limit; i-- {
		page.Runs = append(page.Runs, *f.runs[f.order[i]])
	}

	return page, nil
}

func (f *fakeStorage) StoreCounts(_ context.Context, runID domain.RunID, counts []domain.AggregatedCount) error {
	f.counts[runID] = counts

	return nil
}

func (f *fakeStorage) StoreIndicators(_ context.Context, runID domain.RunID, recs []domain.IndicatorRecord) error {
	f.indicators[runID] = recs

	return nil
}

func (f *fakeStorage) CountsByRun(_ context.Context, runID domain.RunID) ([]domain.AggregatedCount, error) {
	return f.counts[runID], nil
}

func (f *fakeStorage) IndicatorsByRun(_ context.Context, runID domain.RunID) ([]domain.IndicatorRecord, error) {
	return f.indicators[runID], nil
}

func (f *fakeStorage) AddJob(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (bool, error) {
	f.addedJobs = append(f.addedJobs, args)

	return f.addJobInserted, nil
}

func (f *fakeStorage) WithTx(_ context.Context, cb func(storage.AllStorage) error) error {
	return cb(f)
}

type fakeTx struct{ *fakeStorage }

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func (f *fakeStorage) Begin(_ context.Context) (storage.TxStorage, error) {
	return fakeTx{f}, nil
}

func (f *fakeStorage) Close() error { return nil }

var _ storage.Storage = (*fakeStorage)(nil)

func newTestService(st *fakeStorage) pipeline.Service {
	return pipeline.New(st, pipeline.Options{
		Defaults:       testDefaults(),
		MaxAttempts:    3,
		ResultCacheTTL: time.Hour,
	})
}

func TestServiceEnqueueJobAdded(t *testing.T) {
	st := newFakeStorage()
	svc := newTestService(st)

	run, err := svc.Enqueue(context.Background(), domain.RunParams{
		Countries: []string{"ken"},
		AgeGroups: []string{"0_4"},
		Sexes:     []string{"m"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPending, run.Status)
	require.Equal(t, "c=KEN|a=0_4|s=M", run.ParamsKey)
	require.Len(t, st.addedJobs, 1)

	args, ok := st.addedJobs[0].(pipeline.JobArgs)
	require.True(t, ok)
	require.Equal(t, run.ParamsKey, args.ParamsKey)
	require.Equal(t, run.Params, args.Params)
}

func TestServiceEnqueueReusesCompletedResult(t *testing.T) {
	st := newFakeStorage()
	st.addJobInserted = false
	completedID := domain.RunID(uuid.New())
	st.lastCompleted = &domain.Run{
		ID:       completedID,
		Status:   domain.RunStatusCompleted,
		Metadata: &domain.RunMetadata{RowCount: 2},
	}
	svc := newTestService(st)

	run, err := svc.Enqueue(context.Background(), domain.RunParams{Countries: []string{"KEN"}})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusCompleted, run.Status)
	require.NotNil(t, run.ResultRunID)
	require.Equal(t, completedID, *run.ResultRunID)
	require.Equal(t, completedID, run.ResultID())
	require.NotNil(t, run.Metadata)
	require.Equal(t, 2, run.Metadata.RowCount)
}

func TestServiceEnqueueWaitsForInFlightJob(t *testing.T) {
	st := newFakeStorage()
	st.addJobInserted = false // a job exists but has not completed yet
	svc := newTestService(st)

	run, err := svc.Enqueue(context.Background(), domain.RunParams{Countries: []string{"KEN"}})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPending, run.Status)
	require.Nil(t, run.ResultRunID)
}

func TestServiceEnqueueInvalidParams(t *testing.T) {
	svc := newTestService(newFakeStorage())

	_, err := svc.Enqueue(context.Background(), domain.RunParams{Countries: []string{"nope"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, serrors.ErrBadRequest))
}

func TestServiceRunNotFound(t *testing.T) {
	svc := newTestService(newFakeStorage())

	_, err := svc.Run(context.Background(), domain.RunID(uuid.New()))
	require.Error(t, err)
	require.True(t, errors.Is(err, serrors.ErrNotFound))
}

func TestServiceCountsFollowResultPointer(t *testing.T) {
	st := newFakeStorage()
	svc := newTestService(st)

	run, err := svc.Enqueue(context.Background(), domain.RunParams{Countries: []string{"KEN"}})
	require.NoError(t, err)

	// Results are only served once the run completed.
	_, err = svc.Counts(context.Background(), run.ID)
	require.Error(t, err)
	require.True(t, errors.Is(err, serrors.ErrConflict))

	ownerID := domain.RunID(uuid.New())
	st.counts[ownerID] = []domain.AggregatedCount{{
		Key: domain.CountKey{Country: "KEN", DistrictID: "KEN.1", AgeGroup: "0_4", Sex: "M"},
		Sum: 42,
	}}
	st.indicators[ownerID] = []domain.IndicatorRecord{{Country: "KEN", DistrictID: "KEN.1"}}

	_, err = st.UpdateRunByID(context.Background(), run.ID, storage.RunUpdates{
		Status:      domain.RunStatusCompleted,
		ResultRunID: &ownerID,
	})
	require.NoError(t, err)

	counts, err := svc.Counts(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.InDelta(t, 42, counts[0].Sum, 1e-9)

	records, err := svc.Indicators(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestServiceSummaryFromStoredRows(t *testing.T) {
	st := newFakeStorage()
	svc := newTestService(st)

	params := domain.RunParams{Countries: []string{"KEN"}, AgeGroups: []string{"0_4"}, Sexes: []string{"M"}}
	run, err := svc.Enqueue(context.Background(), params)
	require.NoError(t, err)

	st.counts[run.ID] = []domain.AggregatedCount{
		{
			Key:      domain.CountKey{Country: "KEN", DistrictID: "KEN.1", AgeGroup: "0_4", Sex: "M"},
			District: "Westlands", Region: "Nairobi", Sum: 50,
		},
		{
			Key:      domain.CountKey{Country: "KEN", DistrictID: "KEN.2", AgeGroup: "0_4", Sex: "M"},
			District: "Langata", Region: "Nairobi", Sum: 30,
		},
	}
	st.indicators[run.ID] = []domain.IndicatorRecord{{
		Country: "KEN", DistrictID: "KEN.1", District: "Westlands",
		Values: map[string]domain.Value{domain.IndicatorTotalPopulation: domain.DefinedValue(50)},
	}}

	_, err = st.UpdateRunByID(context.Background(), run.ID, storage.RunUpdates{
		Status:   domain.RunStatusCompleted,
		Metadata: &domain.RunMetadata{},
	})
	require.NoError(t, err)

	table, err := svc.Summary(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	require.Equal(t, "Westlands", table.Rows[0].District)
	require.Equal(t, domain.DefinedValue(50), table.Rows[0].Counts["M_0_4"])
	require.Equal(t, domain.DefinedValue(50),
		table.Rows[0].Indicators[domain.IndicatorTotalPopulation])
	require.Equal(t, domain.DefinedValue(30), table.Rows[1].Counts["M_0_4"])
	require.Equal(t, 2, table.Metadata.RowCount)
}

func TestServiceSummaryKeepsRowsWithoutCounts(t *testing.T) {
	st := newFakeStorage()
	svc := newTestService(st)

	params := domain.RunParams{Countries: []string{"KEN"}, AgeGroups: []string{"0_4"}, Sexes: []string{"M"}}
	run, err := svc.Enqueue(context.Background(), params)
	require.NoError(t, err)

	// A completed run whose units were all skipped stores no counts; the
	// district axis persisted in the metadata still yields one row per
	// district.
	_, err = st.UpdateRunByID(context.Background(), run.ID, storage.RunUpdates{
		Status: domain.RunStatusCompleted,
		Metadata: &domain.RunMetadata{
			Districts: []domain.DistrictRef{
				{Country: "KEN", DistrictID: "KEN.1", Name: "Westlands", Region: "Nairobi"},
				{Country: "KEN", DistrictID: "KEN.2", Name: "Langata", Region: "Nairobi"},
			},
			SkippedUnits: []domain.SkippedUnit{
				{Unit: domain.UnitKey{Country: "KEN", AgeGroup: "0_4", Sex: "M"}, Reason: "download failed"},
			},
		},
	})
	require.NoError(t, err)

	table, err := svc.Summary(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	require.Equal(t, "KEN.1", table.Rows[0].DistrictID)
	require.Equal(t, "Westlands", table.Rows[0].District)
	require.Empty(t, table.Rows[0].Counts)
	require.Equal(t, "KEN.2", table.Rows[1].DistrictID)
	require.Equal(t, 2, table.Metadata.RowCount)
}

func TestServiceRunsInvalidCursor(t *testing.T) {
	svc := newTestService(newFakeStorage())

	_, _, err := svc.Runs(context.Background(), "not-a-time", 10)
	require.Error(t, err)
	require.True(t, errors.Is(err, serrors.ErrBadRequest))
}
