package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
)

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	// Rows of a spreadsheet export have ragged trailing cells.
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}
	return records, nil
}

func writeCSV(path string, rows [][]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	for i, row := range rows {
		record := make([]string, len(row))
		for j, v := range row {
			record[j] = FormatCell(v)
		}
		if err := w.Write(record); err != nil {
			f.Close() //nolint:errcheck
			return fmt.Errorf("csv: write row %d of %s: %w", i+1, path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("csv: flush %s: %w", path, err)
	}
	return f.Close()
}
