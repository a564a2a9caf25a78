// Package metrics holds the Prometheus collectors shared across the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultBuckets provides a common set of histogram buckets in seconds that can
// be reused across the application for latency metrics.
var DefaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10} //nolint: gochecknoglobals

// nolint: gochecknoglobals
var (
	// RasterLoads counts raster load attempts by country and outcome.
	RasterLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popgrid_raster_loads_total",
		Help: "Raster load attempts partitioned by country and status.",
	}, []string{"country", "status"})

	// CacheHits counts raster cache lookups by outcome (hit, miss, expired).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popgrid_raster_cache_lookups_total",
		Help: "Raster file cache lookups partitioned by outcome.",
	}, []string{"outcome"})

	// CellsAggregated counts raster cells assigned to a district during zonal
	// aggregation.
	CellsAggregated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "popgrid_cells_aggregated_total",
		Help: "Raster cells assigned to a district during zonal aggregation.",
	})

	// UnitDuration observes the wall time of processing one
	// (country, age group, sex) unit.
	UnitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "popgrid_unit_duration_seconds",
		Help:    "Duration of processing one aggregation unit.",
		Buckets: DefaultBuckets,
	}, []string{"country"})

	// RunDuration observes the wall time of whole pipeline runs.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "popgrid_run_duration_seconds",
		Help:    "Duration of whole pipeline runs.",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
	})
)
