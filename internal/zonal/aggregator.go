// Package zonal sums raster population counts into district polygons. A cell
// belongs to the district containing its center point; every cell is assigned
// to at most one district, so district sums partition the grid total exactly.
package zonal

import (
	"context"
	"math"

	"popgrid/pkg/domain"
	"popgrid/pkg/logger"
	"popgrid/pkg/metrics"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Aggregate sums the grid's valid cells into the given districts for one
// (country, age group, sex) unit. Results come back in district order, one per
// district: a district with no overlapping cells gets an explicit zero count
// with Cells == 0.
//
// When district polygons overlap, a cell center inside several districts is
// credited to the earliest district in the slice. Together with the preserved
// boundary file order this makes overlap resolution deterministic.
func Aggregate(
	ctx context.Context,
	key domain.UnitKey,
	grid *domain.RasterGrid,
	districts []domain.DistrictBoundary,
) []domain.AggregatedCount {
	height, width := grid.Height(), grid.Width()
	claimed := make([]bool, height*width)

	counts := make([]domain.AggregatedCount, 0, len(districts))
	assigned := 0
	for _, d := range districts {
		vals := cellValues(grid, d.Geometry, claimed)
		assigned += len(vals)

		counts = append(counts, domain.AggregatedCount{
			Key: domain.CountKey{
				Country:    key.Country,
				DistrictID: d.ID,
				AgeGroup:   key.AgeGroup,
				Sex:        key.Sex,
			},
			District: d.Name,
			Region:   d.Region,
			Sum:      floats.Sum(vals),
			Cells:    len(vals),
		})
	}

	metrics.CellsAggregated.Add(float64(assigned))
	logger.Debug(ctx, "aggregated unit",
		zap.String("unit", key.String()),
		zap.Int("districts", len(districts)),
		zap.Int("cells", assigned))

	return counts
}

// cellValues collects the values of all unclaimed valid cells whose center
// falls inside mp, marking them claimed. Only the grid window covering the
// geometry's bounding box is scanned.
func cellValues(grid *domain.RasterGrid, mp *geom.MultiPolygon, claimed []bool) []float64 {
	bounds := mp.Bounds()
	c0, c1, r0, r1 := cellWindow(grid, bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1))

	width := grid.Width()
	var vals []float64
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			idx := row*width + col
			if claimed[idx] {
				continue
			}
			v := grid.Data[row][col]
			if grid.IsNoData(v) {
				continue
			}
			x, y := grid.Transform.CellCenter(col, row)
			if !containsPoint(mp, geom.Coord{x, y}) {
				continue
			}
			claimed[idx] = true
			vals = append(vals, v)
		}
	}

	return vals
}

// cellWindow maps a world-coordinate box to an inclusive cell index range,
// clamped to the grid. An empty intersection yields an inverted range that
// loops zero times.
func cellWindow(grid *domain.RasterGrid, minX, minY, maxX, maxY float64) (c0, c1, r0, r1 int) {
	t := grid.Transform

	c0 = int(math.Floor((minX - t.OriginX) / t.CellWidth))
	c1 = int(math.Ceil((maxX-t.OriginX)/t.CellWidth)) - 1
	// CellHeight is negative for north-up grids, so maxY maps to the top row.
	r0 = int(math.Floor((maxY - t.OriginY) / t.CellHeight))
	r1 = int(math.Ceil((minY-t.OriginY)/t.CellHeight)) - 1

	c0 = max(c0, 0)
	r0 = max(r0, 0)
	c1 = min(c1, grid.Width()-1)
	r1 = min(r1, grid.Height()-1)

	return c0, c1, r0, r1
}

// containsPoint reports whether the point lies inside the multipolygon: inside
// some polygon's outer ring and outside all of that polygon's holes.
func containsPoint(mp *geom.MultiPolygon, pt geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if !xy.IsPointInRing(poly.Layout(), pt, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for j := 1; j < poly.NumLinearRings(); j++ {
			if xy.IsPointInRing(poly.Layout(), pt, poly.LinearRing(j).FlatCoords()) {
				inHole = true

				break
			}
		}
		if !inHole {
			return true
		}
	}

	return false
}
