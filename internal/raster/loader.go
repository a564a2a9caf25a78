// Package raster loads WorldPop age/sex population grids. The Loader wraps a
// Source (HTTP mirror or test double), decodes the Esri ASCII grid payload and
// records load outcomes in Prometheus counters.
package raster

import (
	"bytes"
	"context"

	"popgrid/pkg/domain"
	"popgrid/pkg/metrics"
)

// Loader fetches and decodes population grids by unit key.
type Loader struct {
	source Source
}

// NewLoader constructs a Loader over the given source.
func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// Load fetches and decodes the grid for key. Fetch failures carry
// ErrDataUnavailable, decode failures ErrInvalidFormat; both leave the unit
// skippable rather than failing the whole run.
func (l *Loader) Load(ctx context.Context, key domain.UnitKey) (*domain.RasterGrid, error) {
	b, err := l.source.Fetch(ctx, key)
	if err != nil {
		metrics.RasterLoads.WithLabelValues(key.Country, "fetch_error").Inc()

		return nil, err
	}

	grid, err := DecodeGrid(bytes.NewReader(b))
	if err != nil {
		metrics.RasterLoads.WithLabelValues(key.Country, "decode_error").Inc()

		return nil, err
	}

	metrics.RasterLoads.WithLabelValues(key.Country, "ok").Inc()

	return grid, nil
}
