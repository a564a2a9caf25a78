package indicator

import (
	"testing"

	"popgrid/pkg/domain"

	"github.com/stretchr/testify/require"
)

var testBins = Bins{
	Child:   []string{"0_4", "5_9"},
	Working: []string{"15_19", "20_24"},
	Elderly: []string{"65_69"},
}

func count(districtID, ageGroup, sex string, sum float64) domain.AggregatedCount {
	return domain.AggregatedCount{
		Key: domain.CountKey{Country: "KEN", DistrictID: districtID, AgeGroup: ageGroup, Sex: sex},
		Sum: sum,
	}
}

func testDistricts(ids ...string) []domain.DistrictBoundary {
	out := make([]domain.DistrictBoundary, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.DistrictBoundary{ID: id, Name: "district " + id, Country: "KEN"})
	}

	return out
}

func TestComputeTotals(t *testing.T) {
	calc := NewCalculator(testBins)

	counts := []domain.AggregatedCount{
		count("D1", "0_4", "M", 50), count("D1", "0_4", "F", 45),
		count("D1", "5_9", "M", 40), count("D1", "5_9", "F", 38),
	}

	records := calc.Compute(testDistricts("D1"), counts,
		[]string{"0_4", "5_9"}, []string{"M", "F"})
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "D1", rec.DistrictID)
	require.Equal(t, "KEN", rec.Country)

	require.Equal(t, domain.DefinedValue(173), rec.Values[domain.IndicatorTotalPopulation])
	require.Equal(t, domain.DefinedValue(90), rec.Values[domain.IndicatorMalePopulation])
	require.Equal(t, domain.DefinedValue(83), rec.Values[domain.IndicatorFemalePopulation])

	// Sex ratio is the plain male/female quotient.
	sexRatio := rec.Values[domain.IndicatorSexRatio]
	require.True(t, sexRatio.Defined)
	require.InDelta(t, 90.0/83.0, sexRatio.Float64, 1e-9)

	// Both requested age groups are child-bin groups, so the child share is 1
	// and the bins needing other age groups are undefined.
	require.Equal(t, domain.DefinedValue(1), rec.Values[domain.IndicatorChildShare])
	require.False(t, rec.Values[domain.IndicatorWorkingAgeShare].Defined)
	require.False(t, rec.Values[domain.IndicatorElderlyShare].Defined)
	require.False(t, rec.Values[domain.IndicatorYouthDependencyRatio].Defined)
}

func TestComputeRatiosAreQuotients(t *testing.T) {
	calc := NewCalculator(Bins{Child: []string{"0_4"}, Working: []string{"15_19"}})

	counts := []domain.AggregatedCount{
		count("D1", "0_4", "M", 30), count("D1", "0_4", "F", 30),
		count("D1", "15_19", "M", 60), count("D1", "15_19", "F", 60),
	}

	records := calc.Compute(testDistricts("D1"), counts,
		[]string{"0_4", "15_19"}, []string{"M", "F"})
	rec := records[0]

	// Plain quotients, no percentage scaling: 90 males / 90 females and
	// 60 children / 120 working-age.
	require.InDelta(t, 1.0, rec.Values[domain.IndicatorSexRatio].Float64, 1e-9)
	require.InDelta(t, 0.5, rec.Values[domain.IndicatorYouthDependencyRatio].Float64, 1e-9)
}

func TestComputeMissingCohortUndefines(t *testing.T) {
	calc := NewCalculator(testBins)

	// The 5_9 cohort never loaded: everything built on the full age range is
	// undefined, never silently computed from partial data.
	counts := []domain.AggregatedCount{
		count("D1", "0_4", "M", 50), count("D1", "0_4", "F", 45),
	}

	records := calc.Compute(testDistricts("D1"), counts,
		[]string{"0_4", "5_9"}, []string{"M", "F"})

	rec := records[0]
	require.False(t, rec.Values[domain.IndicatorTotalPopulation].Defined)
	require.False(t, rec.Values[domain.IndicatorMalePopulation].Defined)
	require.False(t, rec.Values[domain.IndicatorSexRatio].Defined)
	require.False(t, rec.Values[domain.IndicatorChildShare].Defined)
}

func TestComputeZeroDenominators(t *testing.T) {
	calc := NewCalculator(Bins{Child: []string{"0_4"}, Working: []string{"15_19"}, Elderly: nil})

	counts := []domain.AggregatedCount{
		count("D1", "0_4", "M", 10), count("D1", "0_4", "F", 0),
		count("D1", "15_19", "M", 0), count("D1", "15_19", "F", 0),
	}

	records := calc.Compute(testDistricts("D1"), counts,
		[]string{"0_4", "15_19"}, []string{"M", "F"})

	rec := records[0]
	// Zero females: the ratio is undefined, not +Inf.
	require.False(t, rec.Values[domain.IndicatorSexRatio].Defined)
	// Zero working-age population: dependency ratio undefined.
	require.False(t, rec.Values[domain.IndicatorYouthDependencyRatio].Defined)
	// Total is positive, so shares stay defined.
	require.Equal(t, domain.DefinedValue(1), rec.Values[domain.IndicatorChildShare])
	require.Equal(t, domain.DefinedValue(0), rec.Values[domain.IndicatorWorkingAgeShare])
}

func TestComputeEmptyDistrict(t *testing.T) {
	calc := NewCalculator(Bins{Child: []string{"0_4"}, Working: []string{"0_4"}, Elderly: []string{"0_4"}})

	// An uninhabited district has explicit zero counts: totals are a defined
	// zero, ratios on a zero denominator are undefined.
	counts := []domain.AggregatedCount{
		count("D1", "0_4", "M", 0), count("D1", "0_4", "F", 0),
	}

	records := calc.Compute(testDistricts("D1"), counts,
		[]string{"0_4"}, []string{"M", "F"})

	rec := records[0]
	require.Equal(t, domain.DefinedValue(0), rec.Values[domain.IndicatorTotalPopulation])
	require.False(t, rec.Values[domain.IndicatorChildShare].Defined)
	require.False(t, rec.Values[domain.IndicatorSexRatio].Defined)
}

func TestComputeDistrictOrder(t *testing.T) {
	calc := NewCalculator(testBins)

	counts := []domain.AggregatedCount{
		count("D2", "0_4", "M", 1), count("D2", "0_4", "F", 2),
		count("D1", "0_4", "M", 3), count("D1", "0_4", "F", 4),
	}

	records := calc.Compute(testDistricts("D2", "D1"), counts,
		[]string{"0_4"}, []string{"M", "F"})
	require.Len(t, records, 2)
	require.Equal(t, "D2", records[0].DistrictID)
	require.Equal(t, "D1", records[1].DistrictID)
	require.Equal(t, domain.DefinedValue(3), records[0].Values[domain.IndicatorTotalPopulation])
	require.Equal(t, domain.DefinedValue(7), records[1].Values[domain.IndicatorTotalPopulation])
}
