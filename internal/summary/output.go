package summary

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"
)

// formatValue renders a Value as a CSV cell. Undefined values render as the
// empty cell; defined values use the shortest representation that parses back
// to the same float64.
func formatValue(v domain.Value) string {
	if !v.Defined {
		return ""
	}

	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}

// WriteCSV writes the summary table to w, header first, rows in table order.
func WriteCSV(w io.Writer, table *domain.SummaryTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, col := range table.Columns {
			switch col {
			case "country":
				record[i] = row.Country
			case "district_id":
				record[i] = row.DistrictID
			case "district":
				record[i] = row.District
			case "region":
				record[i] = row.Region
			default:
				if v, ok := row.Counts[col]; ok {
					record[i] = formatValue(v)
				} else {
					record[i] = formatValue(row.Indicators[col])
				}
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("could not write row: %w", err)
		}
	}
	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("could not flush csv: %w", err)
	}

	return nil
}

// WriteCSVFile writes the summary table to path, creating parent directories.
func WriteCSVFile(path string, table *domain.SummaryTable) error {
	return writeFile(path, func(f io.Writer) error { return WriteCSV(f, table) })
}

// ReadCSV parses a summary CSV written by WriteCSV back into rows. Column
// classification follows the header: the fixed metadata columns, the known
// indicator names, and everything else as count columns.
func ReadCSV(r io.Reader) (*domain.SummaryTable, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrInvalidFormat, err, "could not parse summary csv")
	}
	if len(records) == 0 {
		return nil, serrors.With(serrors.ErrInvalidFormat, "summary csv has no header")
	}

	header := records[0]
	table := &domain.SummaryTable{Columns: header}
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, serrors.With(serrors.ErrInvalidFormat, "summary row has %d cells, header has %d", len(rec), len(header))
		}

		row := domain.SummaryRow{
			Counts:     make(map[string]domain.Value),
			Indicators: make(map[string]domain.Value),
		}
		for i, col := range header {
			cell := rec[i]
			switch {
			case col == "country":
				row.Country = cell
			case col == "district_id":
				row.DistrictID = cell
			case col == "district":
				row.District = cell
			case col == "region":
				row.Region = cell
			case cell == "":
				// Undefined: stays absent from the maps.
			default:
				f, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, serrors.Wrap(serrors.ErrInvalidFormat, err, "summary cell %s is not numeric", col)
				}
				if slices.Contains(indicatorColumns, col) {
					row.Indicators[col] = domain.DefinedValue(f)
				} else {
					row.Counts[col] = domain.DefinedValue(f)
				}
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// WriteMetadata writes the run metadata document as indented JSON.
func WriteMetadata(path string, meta domain.RunMetadata) error {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal metadata: %w", err)
	}

	return writeFile(path, func(f io.Writer) error {
		_, err := f.Write(b)

		return err
	})
}

// WriteRasterInventory writes one CSV row per raster the run attempted to
// load, whether or not the load succeeded.
func WriteRasterInventory(path string, rasters []domain.RasterInfo) error {
	return writeFile(path, func(f io.Writer) error {
		cw := csv.NewWriter(f)
		if err := cw.Write([]string{
			"country", "age_group", "sex", "loaded", "crs", "width", "height",
			"min_x", "min_y", "max_x", "max_y",
		}); err != nil {
			return fmt.Errorf("could not write header: %w", err)
		}

		for _, info := range rasters {
			rec := []string{
				info.Unit.Country, info.Unit.AgeGroup, info.Unit.Sex,
				strconv.FormatBool(info.Loaded),
			}
			if info.Loaded {
				rec = append(rec,
					info.CRS,
					strconv.Itoa(info.Width), strconv.Itoa(info.Height),
					strconv.FormatFloat(info.MinX, 'g', -1, 64),
					strconv.FormatFloat(info.MinY, 'g', -1, 64),
					strconv.FormatFloat(info.MaxX, 'g', -1, 64),
					strconv.FormatFloat(info.MaxY, 'g', -1, 64))
			} else {
				rec = append(rec, "", "", "", "", "", "", "")
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("could not write row: %w", err)
			}
		}
		cw.Flush()

		return cw.Error()
	})
}

// writeFile creates path (and parent directories) and streams body into it.
func writeFile(path string, body func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}

	if err := body(f); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", path, err)
	}

	return nil
}
