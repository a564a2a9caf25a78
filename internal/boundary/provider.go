// Package boundary loads district polygons from GADM level-2 GeoJSON files.
// One file per country, named gadm41_<ISO3>_2.json, holds a FeatureCollection
// whose features carry GID_2/NAME_2/NAME_1 properties.
package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"popgrid/pkg/domain"
	"popgrid/pkg/logger"
	"popgrid/pkg/serrors"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Provider reads district boundaries from a directory of GADM GeoJSON files.
// Files are parsed on every call; callers cache the result per run.
type Provider struct {
	dir string
}

// NewProvider constructs a Provider rooted at dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

// Path returns the expected boundary file path for a country.
func (p *Provider) Path(country string) string {
	return filepath.Join(p.dir, fmt.Sprintf("gadm41_%s_2.json", country))
}

// Districts loads all districts of a country, preserving the feature order of
// the source file. A missing file is ErrBoundaryNotFound, which is fatal for
// the whole country rather than a skippable unit. Structural defects in the
// collection are ErrInvalidFormat, broken polygons ErrInvalidGeometry; no
// attempt is made to repair geometry, since a silently "fixed" polygon can
// shift population between districts.
func (p *Provider) Districts(ctx context.Context, country string) ([]domain.DistrictBoundary, error) {
	path := p.Path(country)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, serrors.With(serrors.ErrBoundaryNotFound, "no boundary file for %s at %s", country, path)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read boundary file: %w", err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, serrors.Wrap(serrors.ErrInvalidFormat, err, "boundary file for %s is not valid GeoJSON", country)
	}

	districts := make([]domain.DistrictBoundary, 0, len(fc.Features))
	seen := make(map[string]struct{}, len(fc.Features))
	for i, f := range fc.Features {
		id := stringProp(f.Properties, "GID_2")
		if id == "" {
			return nil, serrors.With(serrors.ErrInvalidFormat, "feature %d in %s has no GID_2", i, path)
		}
		if _, dup := seen[id]; dup {
			return nil, serrors.With(serrors.ErrInvalidFormat, "duplicate district id %s in %s", id, path)
		}
		seen[id] = struct{}{}

		mp, err := asMultiPolygon(f.Geometry)
		if err != nil {
			return nil, serrors.Wrap(serrors.ErrInvalidGeometry, err, "district %s", id)
		}

		districts = append(districts, domain.DistrictBoundary{
			ID:       id,
			Name:     stringProp(f.Properties, "NAME_2"),
			Region:   stringProp(f.Properties, "NAME_1"),
			Country:  country,
			Geometry: mp,
		})
	}

	logger.Debug(ctx, "loaded district boundaries",
		zap.String("country", country), zap.Int("districts", len(districts)))

	return districts, nil
}

// asMultiPolygon normalizes a feature geometry to a validated MultiPolygon.
func asMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	var mp *geom.MultiPolygon
	switch t := g.(type) {
	case *geom.Polygon:
		mp = geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, err
		}
	case *geom.MultiPolygon:
		mp = t
	case nil:
		return nil, fmt.Errorf("feature has no geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}

	if mp.NumPolygons() == 0 {
		return nil, fmt.Errorf("empty multipolygon")
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			return nil, fmt.Errorf("polygon %d has no rings", i)
		}
		for j := 0; j < poly.NumLinearRings(); j++ {
			ring := poly.LinearRing(j)
			n := ring.NumCoords()
			if n < 4 {
				return nil, fmt.Errorf("polygon %d ring %d has %d coordinates, want at least 4", i, j, n)
			}
			if !ring.Coord(0).Equal(ring.Layout(), ring.Coord(n-1)) {
				return nil, fmt.Errorf("polygon %d ring %d is not closed", i, j)
			}
		}
	}

	return mp, nil
}

// stringProp reads a string property, tolerating absent keys and non-string
// values.
func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}

	return ""
}
