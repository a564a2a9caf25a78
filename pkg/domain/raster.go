package domain

import "fmt"

// UnitKey identifies one unit of pipeline work: a single population raster for
// a (country, age group, sex) combination. Units are independent of each other
// and may be processed in parallel.
type UnitKey struct {
	// Country is the ISO3 country code, e.g. "KEN".
	Country string `json:"country"`
	// AgeGroup is the WorldPop age-group label, e.g. "0_4" or "80_plus".
	AgeGroup string `json:"ageGroup"`
	// Sex is either "M" or "F".
	Sex string `json:"sex"`
}

// String renders the key in the WorldPop naming convention, e.g. "KEN_M_0_4".
func (k UnitKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Country, k.Sex, k.AgeGroup)
}

// Affine maps pixel indices to world coordinates. It is the 4-parameter subset
// of a full affine transform (no rotation or shear), which is what WorldPop
// grids use.
type Affine struct {
	// OriginX and OriginY are the world coordinates of the top-left corner of
	// the top-left cell.
	OriginX float64 `json:"originX"`
	OriginY float64 `json:"originY"`
	// CellWidth is the horizontal size of one cell in world units. Always > 0.
	CellWidth float64 `json:"cellWidth"`
	// CellHeight is the vertical size of one cell in world units. Negative for
	// north-up grids, where row indices grow southwards.
	CellHeight float64 `json:"cellHeight"`
}

// CellCenter returns the world coordinates of the center of the cell at the
// given column and row.
func (a Affine) CellCenter(col, row int) (x, y float64) {
	x = a.OriginX + (float64(col)+0.5)*a.CellWidth
	y = a.OriginY + (float64(row)+0.5)*a.CellHeight

	return x, y
}

// RasterGrid is a gridded population-count surface. Data is row-major with
// Data[row][col]; row 0 is the northernmost row for north-up transforms.
// A grid is immutable once loaded: stages read it but never modify it.
type RasterGrid struct {
	// Data holds the cell values. Every row has the same length.
	Data [][]float64
	// Transform maps pixel indices to world coordinates.
	Transform Affine
	// CRS identifies the coordinate reference system, e.g. "EPSG:4326".
	CRS string
	// NoData is the sentinel value marking cells without valid data. Only
	// meaningful when HasNoData is true.
	NoData float64
	// HasNoData reports whether the grid declares a no-data sentinel.
	HasNoData bool
}

// Height returns the number of rows in the grid.
func (g *RasterGrid) Height() int { return len(g.Data) }

// Width returns the number of columns in the grid, or 0 for an empty grid.
func (g *RasterGrid) Width() int {
	if len(g.Data) == 0 {
		return 0
	}

	return len(g.Data[0])
}

// IsNoData reports whether v equals the grid's no-data sentinel.
func (g *RasterGrid) IsNoData(v float64) bool {
	return g.HasNoData && v == g.NoData
}

// Bounds returns the world-coordinate extent of the grid as
// (minX, minY, maxX, maxY).
func (g *RasterGrid) Bounds() (minX, minY, maxX, maxY float64) {
	t := g.Transform
	x0 := t.OriginX
	x1 := t.OriginX + float64(g.Width())*t.CellWidth
	y0 := t.OriginY
	y1 := t.OriginY + float64(g.Height())*t.CellHeight

	return min(x0, x1), min(y0, y1), max(x0, x1), max(y0, y1)
}

// RasterInfo describes one raster that the loader attempted to fetch. It is
// collected for every requested unit, whether or not the load succeeded, and
// exported alongside the summary outputs.
type RasterInfo struct {
	Unit   UnitKey `json:"unit"`
	Loaded bool    `json:"loaded"`

	CRS    string `json:"crs,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`

	MinX float64 `json:"minX,omitempty"`
	MinY float64 `json:"minY,omitempty"`
	MaxX float64 `json:"maxX,omitempty"`
	MaxY float64 `json:"maxY,omitempty"`
}
