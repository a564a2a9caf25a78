// Package summary assembles the final per-district output table and writes it
// to CSV alongside a JSON metadata document and a raster inventory.
package summary

import (
	"popgrid/pkg/domain"
)

// metaColumns are the fixed leading columns of every summary table.
var metaColumns = []string{"country", "district_id", "district", "region"} //nolint: gochecknoglobals

// indicatorColumns is the fixed output order of the indicator columns.
var indicatorColumns = []string{ //nolint: gochecknoglobals
	domain.IndicatorTotalPopulation,
	domain.IndicatorMalePopulation,
	domain.IndicatorFemalePopulation,
	domain.IndicatorSexRatio,
	domain.IndicatorYouthDependencyRatio,
	domain.IndicatorChildShare,
	domain.IndicatorWorkingAgeShare,
	domain.IndicatorElderlyShare,
}

// CountColumn names the summary column for one (sex, age group) cohort,
// e.g. "M_0_4".
func CountColumn(sex, ageGroup string) string {
	return sex + "_" + ageGroup
}

// Assemble builds the summary table: one row per district, countries in
// params order and districts in boundary order within each country. Cohorts
// that never produced a count stay absent from the row, so they render as
// empty CSV cells rather than zeros. Duplicate counts for the same cohort key
// keep the first occurrence.
func Assemble(
	params domain.RunParams,
	districts map[string][]domain.DistrictBoundary,
	counts []domain.AggregatedCount,
	indicators []domain.IndicatorRecord,
	meta domain.RunMetadata,
) *domain.SummaryTable {
	countsByKey := make(map[domain.CountKey]domain.AggregatedCount, len(counts))
	for _, c := range counts {
		if _, ok := countsByKey[c.Key]; !ok {
			countsByKey[c.Key] = c
		}
	}

	type districtRef struct {
		country string
		id      string
	}
	indicatorsByDistrict := make(map[districtRef]domain.IndicatorRecord, len(indicators))
	for _, rec := range indicators {
		indicatorsByDistrict[districtRef{country: rec.Country, id: rec.DistrictID}] = rec
	}

	columns := make([]string, 0, len(metaColumns)+len(params.Sexes)*len(params.AgeGroups)+len(indicatorColumns))
	columns = append(columns, metaColumns...)
	for _, sex := range params.Sexes {
		for _, age := range params.AgeGroups {
			columns = append(columns, CountColumn(sex, age))
		}
	}
	columns = append(columns, indicatorColumns...)

	var rows []domain.SummaryRow
	var refs []domain.DistrictRef
	for _, country := range params.Countries {
		for _, d := range districts[country] {
			refs = append(refs, domain.DistrictRef{
				Country:    country,
				DistrictID: d.ID,
				Name:       d.Name,
				Region:     d.Region,
			})
			row := domain.SummaryRow{
				Country:    country,
				DistrictID: d.ID,
				District:   d.Name,
				Region:     d.Region,
				Counts:     make(map[string]domain.Value),
				Indicators: make(map[string]domain.Value),
			}

			for _, sex := range params.Sexes {
				for _, age := range params.AgeGroups {
					key := domain.CountKey{Country: country, DistrictID: d.ID, AgeGroup: age, Sex: sex}
					if c, ok := countsByKey[key]; ok {
						row.Counts[CountColumn(sex, age)] = domain.DefinedValue(c.Sum)
					}
				}
			}

			if rec, ok := indicatorsByDistrict[districtRef{country: country, id: d.ID}]; ok {
				for name, v := range rec.Values {
					row.Indicators[name] = v
				}
			}

			rows = append(rows, row)
		}
	}

	meta.Params = params
	meta.RowCount = len(rows)
	meta.Columns = columns
	meta.Districts = refs

	return &domain.SummaryTable{
		Columns:  columns,
		Rows:     rows,
		Metadata: meta,
	}
}
