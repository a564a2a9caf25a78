// Package pipeline orchestrates one aggregation run end to end: load district
// boundaries, fetch and decode the requested population grids, sum grid cells
// into districts, derive indicators and assemble the summary table. It also
// provides the run service the API and worker are built on.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"popgrid/internal/boundary"
	"popgrid/internal/indicator"
	"popgrid/internal/raster"
	"popgrid/internal/summary"
	"popgrid/internal/zonal"
	"popgrid/pkg/domain"
	"popgrid/pkg/logger"
	"popgrid/pkg/metrics"
	"popgrid/pkg/serrors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result is the in-memory outcome of one executed run.
type Result struct {
	Counts     []domain.AggregatedCount
	Indicators []domain.IndicatorRecord
	Table      *domain.SummaryTable
}

// Pipeline executes runs. It is stateless across runs and safe for concurrent
// use.
type Pipeline struct {
	loader      *raster.Loader
	boundaries  *boundary.Provider
	calculator  *indicator.Calculator
	parallelism int

	// now is replaceable in tests.
	now func() time.Time
}

// NewPipeline constructs a Pipeline. parallelism bounds how many units are
// processed concurrently; values below 1 are treated as 1.
func NewPipeline(
	loader *raster.Loader,
	boundaries *boundary.Provider,
	calculator *indicator.Calculator,
	parallelism int,
) *Pipeline {
	if parallelism < 1 {
		parallelism = 1
	}

	return &Pipeline{
		loader:      loader,
		boundaries:  boundaries,
		calculator:  calculator,
		parallelism: parallelism,
		now:         time.Now,
	}
}

// Execute runs the whole pipeline for normalized params. A boundary failure
// skips all of that country's units; the run only fails when no country's
// boundary set could be loaded. Per-unit raster failures (unavailable or
// malformed grids) only skip that unit; the unit is reported in the metadata
// and every indicator depending on it comes out undefined.
func (p *Pipeline) Execute(ctx context.Context, params domain.RunParams) (*Result, error) {
	started := p.now()
	defer func() {
		metrics.RunDuration.Observe(time.Since(started).Seconds())
	}()

	var (
		counts  []domain.AggregatedCount
		skipped []domain.SkippedUnit
		rasters []domain.RasterInfo
	)

	districts := make(map[string][]domain.DistrictBoundary, len(params.Countries))
	countries := make([]string, 0, len(params.Countries))
	var boundaryErr error
	for _, country := range params.Countries {
		d, err := p.boundaries.Districts(ctx, country)
		if err != nil {
			logger.Warn(ctx, "skipping country, boundaries unavailable",
				zap.String("country", country), zap.Error(err))
			boundaryErr = err
			for _, age := range params.AgeGroups {
				for _, sex := range params.Sexes {
					skipped = append(skipped, domain.SkippedUnit{
						Unit:   domain.UnitKey{Country: country, AgeGroup: age, Sex: sex},
						Reason: err.Error(),
					})
				}
			}

			continue
		}
		districts[country] = d
		countries = append(countries, country)
	}
	if len(countries) == 0 && boundaryErr != nil {
		return nil, boundaryErr
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for _, country := range countries {
		for _, age := range params.AgeGroups {
			for _, sex := range params.Sexes {
				key := domain.UnitKey{Country: country, AgeGroup: age, Sex: sex}
				g.Go(func() error {
					unitStart := time.Now()
					grid, err := p.loader.Load(gctx, key)
					if err != nil {
						if !skippable(err) {
							return err
						}
						logger.Warn(gctx, "skipping unit",
							zap.String("unit", key.String()), zap.Error(err))

						mu.Lock()
						skipped = append(skipped, domain.SkippedUnit{Unit: key, Reason: err.Error()})
						rasters = append(rasters, raster.FailedInfo(key))
						mu.Unlock()

						return nil
					}

					// Each unit claims cells in its own bitmap, so units never
					// contend on grid state; only the result appends need the lock.
					unitCounts := zonal.Aggregate(gctx, key, grid, districts[country])

					mu.Lock()
					rasters = append(rasters, raster.Info(key, grid))
					counts = append(counts, unitCounts...)
					mu.Unlock()

					metrics.UnitDuration.WithLabelValues(country).Observe(time.Since(unitStart).Seconds())

					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortSkipped(skipped)
	sortRasters(rasters)

	var indicators []domain.IndicatorRecord
	countsByCountry := make(map[string][]domain.AggregatedCount)
	for _, c := range counts {
		countsByCountry[c.Key.Country] = append(countsByCountry[c.Key.Country], c)
	}
	for _, country := range countries {
		indicators = append(indicators, p.calculator.Compute(
			districts[country], countsByCountry[country], params.AgeGroups, params.Sexes)...)
	}

	table := summary.Assemble(params, districts, counts, indicators, domain.RunMetadata{
		SkippedUnits: skipped,
		Rasters:      rasters,
		GeneratedAt:  started.UTC(),
		Duration:     p.now().Sub(started),
	})

	logger.Info(ctx, "run executed",
		zap.Int("rows", table.Metadata.RowCount),
		zap.Int("skippedUnits", len(skipped)),
		zap.Duration("duration", table.Metadata.Duration))

	return &Result{Counts: counts, Indicators: indicators, Table: table}, nil
}

// skippable reports whether a unit-level error should skip the unit instead of
// failing the run.
func skippable(err error) bool {
	return errors.Is(err, serrors.ErrDataUnavailable) || errors.Is(err, serrors.ErrInvalidFormat)
}

// sortSkipped orders skipped units by their key for stable metadata output.
func sortSkipped(skipped []domain.SkippedUnit) {
	slices.SortFunc(skipped, func(a, b domain.SkippedUnit) int {
		return strings.Compare(a.Unit.String(), b.Unit.String())
	})
}

// sortRasters orders the raster inventory by unit key.
func sortRasters(rasters []domain.RasterInfo) {
	slices.SortFunc(rasters, func(a, b domain.RasterInfo) int {
		return strings.Compare(a.Unit.String(), b.Unit.String())
	})
}

// WriteOutputs writes the run artifacts into dir: the summary table, the run
// metadata document and the raster inventory.
func WriteOutputs(dir string, res *Result) error {
	if err := summary.WriteCSVFile(filepath.Join(dir, "summary.csv"), res.Table); err != nil {
		return err
	}
	if err := summary.WriteMetadata(filepath.Join(dir, "metadata.json"), res.Table.Metadata); err != nil {
		return err
	}

	return summary.WriteRasterInventory(filepath.Join(dir, "rasters.csv"), res.Table.Metadata.Rasters)
}
