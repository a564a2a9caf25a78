// Package indicator derives demographic indicators from aggregated district
// counts. Every indicator is undefined, never zero or NaN, when any of its
// input cohorts is missing or its denominator is zero.
package indicator

import (
	"popgrid/pkg/domain"
)

// Bins groups WorldPop age-group labels into the broad demographic classes the
// ratio indicators are built on. The bins come from configuration so a
// deployment can move the class edges without a code change.
type Bins struct {
	Child   []string
	Working []string
	Elderly []string
}

// Calculator computes the standard indicator set for one country's districts.
type Calculator struct {
	bins Bins
}

// NewCalculator constructs a Calculator with the given age bins.
func NewCalculator(bins Bins) *Calculator {
	return &Calculator{bins: bins}
}

// cohortKey addresses one (age group, sex) count inside a district.
type cohortKey struct {
	ageGroup string
	sex      string
}

// Compute derives indicators for every district, in district order. counts
// holds the aggregated results of all units that loaded successfully; a cohort
// absent from counts was skipped, and every indicator depending on it comes
// back undefined. ageGroups and sexes are the run's requested cohort axes.
func (c *Calculator) Compute(
	districts []domain.DistrictBoundary,
	counts []domain.AggregatedCount,
	ageGroups, sexes []string,
) []domain.IndicatorRecord {
	// byDistrict[districtID][cohort]: presence in the inner map means the
	// cohort's raster was processed, even when the count itself is zero.
	byDistrict := make(map[string]map[cohortKey]float64)
	for _, cnt := range counts {
		m := byDistrict[cnt.Key.DistrictID]
		if m == nil {
			m = make(map[cohortKey]float64)
			byDistrict[cnt.Key.DistrictID] = m
		}
		m[cohortKey{ageGroup: cnt.Key.AgeGroup, sex: cnt.Key.Sex}] = cnt.Sum
	}

	records := make([]domain.IndicatorRecord, 0, len(districts))
	for _, d := range districts {
		cohorts := byDistrict[d.ID]

		total := sumCohorts(cohorts, ageGroups, sexes)
		male := sumCohorts(cohorts, ageGroups, []string{"M"})
		female := sumCohorts(cohorts, ageGroups, []string{"F"})
		child := sumCohorts(cohorts, c.bins.Child, sexes)
		working := sumCohorts(cohorts, c.bins.Working, sexes)
		elderly := sumCohorts(cohorts, c.bins.Elderly, sexes)

		records = append(records, domain.IndicatorRecord{
			Country:    d.Country,
			DistrictID: d.ID,
			District:   d.Name,
			Values: map[string]domain.Value{
				domain.IndicatorTotalPopulation:      total,
				domain.IndicatorMalePopulation:       male,
				domain.IndicatorFemalePopulation:     female,
				domain.IndicatorSexRatio:             ratio(male, female),
				domain.IndicatorYouthDependencyRatio: ratio(child, working),
				domain.IndicatorChildShare:           ratio(child, total),
				domain.IndicatorWorkingAgeShare:      ratio(working, total),
				domain.IndicatorElderlyShare:         ratio(elderly, total),
			},
		})
	}

	return records
}

// sumCohorts sums the counts over the cross product of age groups and sexes.
// The sum is undefined when any addressed cohort is absent.
func sumCohorts(cohorts map[cohortKey]float64, ageGroups, sexes []string) domain.Value {
	if len(ageGroups) == 0 || len(sexes) == 0 {
		return domain.Value{}
	}

	sum := 0.0
	for _, age := range ageGroups {
		for _, sex := range sexes {
			v, ok := cohorts[cohortKey{ageGroup: age, sex: sex}]
			if !ok {
				return domain.Value{}
			}
			sum += v
		}
	}

	return domain.DefinedValue(sum)
}

// ratio returns num/den, undefined when either input is undefined or the
// denominator is zero.
func ratio(num, den domain.Value) domain.Value {
	if !num.Defined || !den.Defined || den.Float64 == 0 {
		return domain.Value{}
	}

	return domain.DefinedValue(num.Float64 / den.Float64)
}
