package domain

import "github.com/twpayne/go-geom"

// DistrictBoundary is one administrative district polygon used as the zonal
// aggregation unit. Geometry follows the GeoJSON convention: each polygon's
// first ring is the outer shell, subsequent rings are holes.
type DistrictBoundary struct {
	// ID is the district identifier (GADM GID), unique within a country.
	ID string `json:"id"`
	// Name is the district display name.
	Name string `json:"name"`
	// Region is the name of the parent administrative region, when present.
	Region string `json:"region,omitempty"`
	// Country is the ISO3 country code the district belongs to.
	Country string `json:"country"`

	// Geometry is the district polygon set. Never nil for a valid boundary.
	Geometry *geom.MultiPolygon `json:"-"`
}
