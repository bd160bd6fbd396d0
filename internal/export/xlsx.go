package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of the workbook.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// BuildWorkbook lays out one worksheet per sheet, in order, with a bold
// frozen header row. The caller owns the returned file.
func BuildWorkbook(sheets []Sheet) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("export xlsx: no sheets")
	}

	f := excelize.NewFile()
	fail := func(err error) (*excelize.File, error) {
		_ = f.Close()
		return nil, fmt.Errorf("export xlsx: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
	})
	if err != nil {
		return fail(err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return fail(err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fail(err)
		}

		header := make([]any, len(s.Headers))
		for c, h := range s.Headers {
			header[c] = h
		}
		if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
			return fail(err)
		}
		if err := f.SetRowStyle(s.Name, 1, 1, headerStyle); err != nil {
			return fail(err)
		}

		for r, row := range s.Rows {
			vals := make([]any, len(row))
			for c, v := range row {
				vals[c] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return fail(err)
			}
			if err := f.SetSheetRow(s.Name, cell, &vals); err != nil {
				return fail(err)
			}
		}

		if len(s.Headers) > 0 {
			last, err := excelize.ColumnNumberToName(len(s.Headers))
			if err != nil {
				return fail(err)
			}
			if err := f.SetColWidth(s.Name, "A", "A", 10); err != nil {
				return fail(err)
			}
			if err := f.SetColWidth(s.Name, "B", last, 22); err != nil {
				return fail(err)
			}
		}
		if err := f.SetPanes(s.Name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fail(err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteXLSX writes the workbook to w.
func WriteXLSX(w io.Writer, sheets []Sheet) error {
	f, err := BuildWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	return nil
}

// WriteXLSXFile saves the workbook at path, creating parent directories.
func WriteXLSXFile(path string, sheets []Sheet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	f, err := BuildWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export xlsx: %s: %w", path, err)
	}
	return nil
}
