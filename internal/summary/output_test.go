package summary

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"

	"github.com/stretchr/testify/require"
)

func TestCSVRoundTrip(t *testing.T) {
	counts := []domain.AggregatedCount{
		testCount("KEN", "KEN.1", "0_4", "F", 45.25),
		testCount("KEN", "KEN.1", "0_4", "M", 50),
		// Awkward but representable values must survive the trip exactly.
		testCount("KEN", "KEN.2", "0_4", "M", 1.0/3.0),
	}
	indicators := []domain.IndicatorRecord{
		{Country: "KEN", DistrictID: "KEN.1", District: "Westlands", Values: map[string]domain.Value{
			domain.IndicatorTotalPopulation: domain.DefinedValue(95.25),
			domain.IndicatorSexRatio:        domain.DefinedValue(50 / 45.25),
			domain.IndicatorChildShare:      {},
		}},
	}

	table := Assemble(testParams(), testBoundaries(), counts, indicators, domain.RunMetadata{})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))

	parsed, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, table.Columns, parsed.Columns)
	require.Len(t, parsed.Rows, len(table.Rows))

	for i, want := range table.Rows {
		got := parsed.Rows[i]
		require.Equal(t, want.Country, got.Country)
		require.Equal(t, want.DistrictID, got.DistrictID)
		require.Equal(t, want.District, got.District)
		require.Equal(t, want.Region, got.Region)
		require.Equal(t, want.Counts, got.Counts)
		for name, v := range want.Indicators {
			if v.Defined {
				require.Equal(t, v, got.Indicators[name], name)
			} else {
				_, present := got.Indicators[name]
				require.False(t, present, name)
			}
		}
	}
}

func TestReadCSVInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "non-numeric count", body: "country,district_id,district,region,M_0_4\nKEN,K1,X,,abc\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.body))
			require.Error(t, err)
			require.True(t, errors.Is(err, serrors.ErrInvalidFormat))
		})
	}
}

func TestWriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "metadata.json")
	meta := domain.RunMetadata{
		Params:      testParams(),
		RowCount:    3,
		Columns:     []string{"country", "district_id"},
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Duration:    90 * time.Second,
		SkippedUnits: []domain.SkippedUnit{
			{Unit: domain.UnitKey{Country: "KEN", AgeGroup: "5_9", Sex: "F"}, Reason: "DATA_UNAVAILABLE"},
		},
	}

	require.NoError(t, WriteMetadata(path, meta))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"rowCount": 3`)
	require.Contains(t, string(b), `"DATA_UNAVAILABLE"`)
}

func TestWriteRasterInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rasters.csv")
	rasters := []domain.RasterInfo{
		{
			Unit: domain.UnitKey{Country: "KEN", AgeGroup: "0_4", Sex: "M"}, Loaded: true,
			CRS: "EPSG:4326", Width: 3, Height: 2, MinX: 10, MinY: 50, MaxX: 11.5, MaxY: 51,
		},
		{Unit: domain.UnitKey{Country: "KEN", AgeGroup: "5_9", Sex: "M"}, Loaded: false},
	}

	require.NoError(t, WriteRasterInventory(path, rasters))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "country,age_group,sex,loaded,crs,width,height,min_x,min_y,max_x,max_y", lines[0])
	require.Equal(t, "KEN,0_4,M,true,EPSG:4326,3,2,10,50,11.5,51", lines[1])
	require.Equal(t, "KEN,5_9,M,false,,,,,,,", lines[2])
}
