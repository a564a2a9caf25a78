package postgres_test

import (
	"context"
	"popgrid/pkg/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreAndReadCounts(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	stored, err := pg.StoreRuns(ctx, newTestRun("KEN"))
	require.NoError(t, err)
	runID := stored[0].ID

	counts := []domain.AggregatedCount{
		{
			Key:      domain.CountKey{Country: "KEN", DistrictID: "KEN.1.2_1", AgeGroup: "0_4", Sex: "M"},
			District: "Changamwe",
			Region:   "Mombasa",
			Sum:      1532.25,
			Cells:    210,
		},
		{
			Key:      domain.CountKey{Country: "KEN", DistrictID: "KEN.1.2_1", AgeGroup: "0_4", Sex: "F"},
			District: "Changamwe",
			Region:   "Mombasa",
			Sum:      1498.5,
			Cells:    210,
		},
		{
			// zero overlap: a stored zero count is still a real row
			Key:      domain.CountKey{Country: "KEN", DistrictID: "KEN.1.3_1", AgeGroup: "0_4", Sex: "M"},
			District: "Jomvu",
			Region:   "Mombasa",
			Sum:      0,
			Cells:    0,
		},
	}

	require.NoError(t, pg.StoreCounts(ctx, runID, counts))

	got, err := pg.CountsByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// ordered by district, age group, sex
	require.Equal(t, "F", got[0].Key.Sex)
	require.Equal(t, 1498.5, got[0].Sum)
	require.Equal(t, "Jomvu", got[2].District)
	require.Equal(t, 0.0, got[2].Sum)
	require.Equal(t, 0, got[2].Cells)
}

func TestStoreAndReadIndicatorsPreservesUndefined(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	stored, err := pg.StoreRuns(ctx, newTestRun("KEN"))
	require.NoError(t, err)
	runID := stored[0].ID

	records := []domain.IndicatorRecord{
		{
			Country:    "KEN",
			DistrictID: "KEN.1.2_1",
			District:   "Changamwe",
			Values: map[string]domain.Value{
				domain.IndicatorTotalPopulation: domain.DefinedValue(3030.75),
				domain.IndicatorSexRatio:        {}, // undefined: zero female count
			},
		},
	}

	require.NoError(t, pg.StoreIndicators(ctx, runID, records))

	got, err := pg.IndicatorsByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec := got[0]
	require.Equal(t, "Changamwe", rec.District)
	require.True(t, rec.Values[domain.IndicatorTotalPopulation].Defined)
	require.Equal(t, 3030.75, rec.Values[domain.IndicatorTotalPopulation].Float64)
	require.False(t, rec.Values[domain.IndicatorSexRatio].Defined,
		"NULL value must round-trip as undefined")
}

func TestStoreCountsEmptyIsNoop(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	stored, err := pg.StoreRuns(ctx, newTestRun("KEN"))
	require.NoError(t, err)

	require.NoError(t, pg.StoreCounts(ctx, stored[0].ID, nil))
	require.NoError(t, pg.StoreIndicators(ctx, stored[0].ID, nil))

	got, err := pg.CountsByRun(ctx, stored[0].ID)
	require.NoError(t, err)
	require.Empty(t, got)
}
