package raster

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"
)

// maxGridLine bounds a single row of an ASCII grid. WorldPop country tiles
// top out well below this even at 100m resolution.
const maxGridLine = 16 << 20

// DecodeGrid parses an Esri ASCII grid. The header must carry ncols, nrows,
// xllcorner, yllcorner, cellsize and nodata_value (any case); exactly nrows
// data rows of ncols values follow, top row first. Any structural problem is
// reported as ErrInvalidFormat.
func DecodeGrid(r io.Reader) (*domain.RasterGrid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxGridLine)

	hdr := map[string]float64{}
	var firstRow []string
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		// Header lines are "key value" where the key is not itself a number;
		// this keeps two-column data rows from being mistaken for headers.
		if len(fields) == 2 {
			_, keyErr := strconv.ParseFloat(fields[0], 64)
			v, valErr := strconv.ParseFloat(fields[1], 64)
			if keyErr != nil && valErr == nil {
				hdr[strings.ToLower(fields[0])] = v

				continue
			}
		}
		// First non-header line starts the data block.
		firstRow = fields

		break
	}

	for _, k := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value"} {
		if _, ok := hdr[k]; !ok {
			return nil, serrors.With(serrors.ErrInvalidFormat, "grid header is missing %s", k)
		}
	}

	ncols, nrows := int(hdr["ncols"]), int(hdr["nrows"])
	if ncols <= 0 || nrows <= 0 {
		return nil, serrors.With(serrors.ErrInvalidFormat, "grid dimensions must be positive")
	}

	cellSize := hdr["cellsize"]
	if cellSize <= 0 {
		return nil, serrors.With(serrors.ErrInvalidFormat, "grid cellsize must be positive")
	}

	grid := &domain.RasterGrid{
		Data:      make([][]float64, 0, nrows),
		NoData:    hdr["nodata_value"],
		HasNoData: true,
		// ASCII grids carry no CRS; WorldPop publishes everything in WGS84.
		CRS: "EPSG:4326",
		Transform: domain.Affine{
			OriginX: hdr["xllcorner"],
			// The header anchors the lower-left corner; rows are stored
			// top-down, so the origin is the upper-left corner.
			OriginY:    hdr["yllcorner"] + float64(nrows)*cellSize,
			CellWidth:  cellSize,
			CellHeight: -cellSize,
		},
	}

	appendRow := func(fields []string) error {
		if len(fields) != ncols {
			return serrors.With(serrors.ErrInvalidFormat, "grid row has %d values, want %d", len(fields), ncols)
		}
		row := make([]float64, ncols)
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return serrors.Wrap(serrors.ErrInvalidFormat, err, "grid cell is not numeric")
			}
			if v < 0 && v != grid.NoData {
				return serrors.With(serrors.ErrInvalidFormat, "grid cell holds a negative count")
			}
			row[i] = v
		}
		grid.Data = append(grid.Data, row)

		return nil
	}

	if firstRow != nil {
		if err := appendRow(firstRow); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if err := appendRow(fields); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, serrors.Wrap(serrors.ErrInvalidFormat, err, "cannot read grid body")
	}

	if len(grid.Data) != nrows {
		return nil, serrors.With(serrors.ErrInvalidFormat, "grid has %d rows, header declares %d", len(grid.Data), nrows)
	}

	return grid, nil
}
