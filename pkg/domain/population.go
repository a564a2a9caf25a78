package domain

import (
	"encoding/json"
	"time"
)

// CountKey uniquely identifies one aggregated population count: the population
// of one age/sex cohort inside one district.
type CountKey struct {
	Country    string `json:"country"`
	DistrictID string `json:"districtId"`
	AgeGroup   string `json:"ageGroup"`
	Sex        string `json:"sex"`
}

// AggregatedCount is the summed population of one age/sex cohort inside one
// district. A count of 0 with Cells == 0 means the district had no overlapping
// raster cells; it is distinct from an absent count, which means the unit was
// never computed (e.g. its raster failed to load).
type AggregatedCount struct {
	Key CountKey `json:"key"`

	// District and Region carry the display names from the boundary set.
	District string `json:"district"`
	Region   string `json:"region,omitempty"`

	// Sum is the total population. Always >= 0.
	Sum float64 `json:"sum"`
	// Cells is the number of valid (non no-data) cells contributing to Sum.
	Cells int `json:"cells"`
}

// Value is a numeric result that may be undefined. Undefined values arise when
// an indicator's inputs are incomplete or its denominator is zero; they are
// deliberately not represented with NaN or a numeric sentinel so arithmetic on
// defined values stays correct.
type Value struct {
	Float64 float64
	Defined bool
}

// DefinedValue wraps v as a defined Value.
func DefinedValue(v float64) Value { return Value{Float64: v, Defined: true} }

// MarshalJSON encodes undefined values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined {
		return []byte("null"), nil
	}

	return json.Marshal(v.Float64)
}

// UnmarshalJSON decodes null as an undefined value.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}

		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err //nolint: wrapcheck
	}
	*v = Value{Float64: f, Defined: true}

	return nil
}

// Indicator names produced by the default calculator configuration.
const (
	IndicatorTotalPopulation      = "total_population"
	IndicatorMalePopulation       = "male_population"
	IndicatorFemalePopulation     = "female_population"
	IndicatorSexRatio             = "sex_ratio"
	IndicatorYouthDependencyRatio = "youth_dependency_ratio"
	IndicatorChildShare           = "child_share"
	IndicatorWorkingAgeShare      = "working_age_share"
	IndicatorElderlyShare         = "elderly_share"
)

// IndicatorRecord holds all computed indicators for one district. Values map
// indicator names to possibly-undefined results.
type IndicatorRecord struct {
	Country    string `json:"country"`
	DistrictID string `json:"districtId"`
	District   string `json:"district"`

	Values map[string]Value `json:"values"`
}

// SkippedUnit records a unit that the pipeline could not process, together
// with the reason. Skipped units are reported in run metadata instead of
// aborting the whole run.
type SkippedUnit struct {
	Unit   UnitKey `json:"unit"`
	Reason string  `json:"reason"`
}

// RunParams are the filters for one pipeline run: which countries, age groups
// and sexes to process. All slices are sorted and deduplicated by
// pipeline.NormalizeParams before use.
type RunParams struct {
	Countries []string `json:"countries"`
	AgeGroups []string `json:"ageGroups"`
	Sexes     []string `json:"sexes"`
}

// DistrictRef identifies one summary row's district without its geometry.
type DistrictRef struct {
	Country    string `json:"country"`
	DistrictID string `json:"districtId"`
	Name       string `json:"name"`
	Region     string `json:"region,omitempty"`
}

// RunMetadata describes the outcome of one pipeline run.
type RunMetadata struct {
	Params RunParams `json:"params"`

	RowCount int      `json:"rowCount"`
	Columns  []string `json:"columns"`

	// Districts is the row axis of the summary table in output order, one
	// entry per district in the requested countries' boundary sets. It lets
	// the table be rebuilt from stored rows even when every unit was skipped
	// and no counts exist.
	Districts []DistrictRef `json:"districts,omitempty"`

	// SkippedUnits lists the units that failed and were excluded from the
	// summary. Empty for a fully successful run.
	SkippedUnits []SkippedUnit `json:"skippedUnits,omitempty"`
	// Rasters describes every raster the run attempted to load.
	Rasters []RasterInfo `json:"rasters,omitempty"`

	GeneratedAt time.Time     `json:"generatedAt"`
	Duration    time.Duration `json:"duration"`
}

// SummaryRow is one denormalized row of the summary table: district metadata,
// one count column per (sex, age group) combination and one column per
// indicator. Missing combinations are simply absent from Counts; they must not
// be conflated with an explicit zero count.
type SummaryRow struct {
	Country    string `json:"country"`
	DistrictID string `json:"districtId"`
	District   string `json:"district"`
	Region     string `json:"region,omitempty"`

	// Counts maps count column names (e.g. "M_0_4") to population counts.
	Counts map[string]Value `json:"counts"`
	// Indicators maps indicator names to computed values.
	Indicators map[string]Value `json:"indicators"`
}

// SummaryTable is the final output of a pipeline run: one row per district in
// the requested countries' boundary sets, in boundary order. It is created
// once per run and never mutated afterwards.
type SummaryTable struct {
	// Columns is the full ordered column list: district metadata columns,
	// then count columns, then indicator columns.
	Columns []string `json:"columns"`

	Rows []SummaryRow `json:"rows"`

	Metadata RunMetadata `json:"metadata"`
}
