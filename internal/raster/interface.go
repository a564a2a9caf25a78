package raster

import (
	"context"
	"popgrid/pkg/domain"
)

// Source fetches the raw bytes of a population grid by unit key. The WorldPop
// HTTP client is the production implementation; tests substitute in-memory
// sources.
type Source interface {
	Fetch(ctx context.Context, key domain.UnitKey) ([]byte, error)
}
