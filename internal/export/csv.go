// Package export writes parsed rate rows to CSV files, an XLSX workbook and
// SQL tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// utf8BOM lets spreadsheet tools detect UTF-8 (the "€" and "³" in the headers).
const utf8BOM = "\ufeff"

// WriteCSV writes a BOM, the header row and rows to w.
func WriteCSV(w io.Writer, headers []string, rows [][]string) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("export csv: header: %w", err)
	}
	for i, row := range rows {
		if len(row) != len(headers) {
			return fmt.Errorf("export csv: row %d has %d values, want %d", i, len(row), len(headers))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export csv: row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}

// WriteCSVFile writes the CSV to path atomically (temp file + rename).
func WriteCSVFile(path string, headers []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := WriteCSV(f, headers, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}
