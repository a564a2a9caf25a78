package raster

import (
	"regexp"

	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"
)

// fileNameRe matches WorldPop grid file names such as "M_0_4.asc" and
// "F_80_plus.asc".
var fileNameRe = regexp.MustCompile(`^([MF])_(\d+_(?:\d+|plus))\.asc$`)

// FileName returns the WorldPop file name for a unit, e.g. "M_0_4.asc".
func FileName(key domain.UnitKey) string {
	return key.Sex + "_" + key.AgeGroup + ".asc"
}

// ParseFileName extracts the sex and age-group label from a WorldPop grid file
// name. Unrecognized names are reported as ErrInvalidFormat.
func ParseFileName(name string) (sex, ageGroup string, err error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", serrors.With(serrors.ErrInvalidFormat, "unrecognized grid file name %q", name)
	}

	return m[1], m[2], nil
}

// Info describes a successfully loaded grid for the run's raster inventory.
func Info(key domain.UnitKey, grid *domain.RasterGrid) domain.RasterInfo {
	minX, minY, maxX, maxY := grid.Bounds()

	return domain.RasterInfo{
		Unit:   key,
		Loaded: true,
		CRS:    grid.CRS,
		Width:  grid.Width(),
		Height: grid.Height(),
		MinX:   minX,
		MinY:   minY,
		MaxX:   maxX,
		MaxY:   maxY,
	}
}

// FailedInfo records a unit whose grid could not be loaded.
func FailedInfo(key domain.UnitKey) domain.RasterInfo {
	return domain.RasterInfo{Unit: key, Loaded: false}
}
