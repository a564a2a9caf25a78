package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"popgrid/pkg/domain"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

const (
	countsTable     = "district_counts"
	indicatorsTable = "district_indicators"
)

// StoreCounts inserts the aggregated counts of a run.
func (p *PgSQL) StoreCounts(ctx context.Context,
	runID domain.RunID,
	counts []domain.AggregatedCount) error {
	if len(counts) == 0 {
		return nil
	}

	rows := make([]PgCount, len(counts))
	for i, c := range counts {
		rows[i] = PgCount{
			RunID:      uuid.UUID(runID),
			Country:    c.Key.Country,
			DistrictID: c.Key.DistrictID,
			District:   c.District,
			Region:     c.Region,
			AgeGroup:   c.Key.AgeGroup,
			Sex:        c.Key.Sex,
			Population: c.Sum,
			Cells:      c.Cells,
		}
	}

	if _, err := p.Builder.Insert(countsTable).
		Rows(rows).
		Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("could not store counts into pg: %w", err)
	}

	return nil
}

// StoreIndicators inserts the indicator records of a run. Undefined values are
// stored as NULL.
func (p *PgSQL) StoreIndicators(ctx context.Context,
	runID domain.RunID,
	records []domain.IndicatorRecord) error {
	var rows []PgIndicator
	for _, rec := range records {
		for name, val := range rec.Values {
			rows = append(rows, PgIndicator{
				RunID:      uuid.UUID(runID),
				Country:    rec.Country,
				DistrictID: rec.DistrictID,
				District:   rec.District,
				Indicator:  name,
				Value: sql.NullFloat64{
					Float64: val.Float64,
					Valid:   val.Defined,
				},
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	if _, err := p.Builder.Insert(indicatorsTable).
		Rows(rows).
		Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("could not store indicators into pg: %w", err)
	}

	return nil
}

// CountsByRun returns all aggregated counts stored for a run.
func (p *PgSQL) CountsByRun(ctx context.Context, runID domain.RunID) ([]domain.AggregatedCount, error) {
	var rows []PgCount
	if err := p.Builder.From(countsTable).
		Where(goqu.I("run_id").Eq(uuid.UUID(runID))).
		Order(
			goqu.I("country").Asc(),
			goqu.I("district_id").Asc(),
			goqu.I("age_group").Asc(),
			goqu.I("sex").Asc(),
		).
		Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("could not get counts by run from pg: %w", err)
	}

	counts := make([]domain.AggregatedCount, len(rows))
	for i := range rows {
		counts[i] = rows[i].ToDomain()
	}

	return counts, nil
}

// IndicatorsByRun returns all indicator records stored for a run, grouped into
// one record per district.
func (p *PgSQL) IndicatorsByRun(ctx context.Context, runID domain.RunID) ([]domain.IndicatorRecord, error) {
	var rows []PgIndicator
	if err := p.Builder.From(indicatorsTable).
		Where(goqu.I("run_id").Eq(uuid.UUID(runID))).
		Order(
			goqu.I("country").Asc(),
			goqu.I("district_id").Asc(),
			goqu.I("indicator").Asc(),
		).
		Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("could not get indicators by run from pg: %w", err)
	}

	var records []domain.IndicatorRecord
	index := map[string]int{} // country+district id -> records index
	for _, row := range rows {
		key := row.Country + "\x00" + row.DistrictID
		i, ok := index[key]
		if !ok {
			records = append(records, domain.IndicatorRecord{
				Country:    row.Country,
				DistrictID: row.DistrictID,
				District:   row.District,
				Values:     map[string]domain.Value{},
			})
			i = len(records) - 1
			index[key] = i
		}

		records[i].Values[row.Indicator] = domain.Value{
			Float64: row.Value.Float64,
			Defined: row.Value.Valid,
		}
	}

	return records, nil
}
