// Package pdf extracts table grids from PDF rate sheets with tabula's
// geometric table detector.
package pdf

import (
	"context"
	"fmt"
	"os"

	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/tables"
	"github.com/tsawler/tabula/text"

	"ratesheet/internal/source"
	"ratesheet/internal/tariff"
)

// Logger is the minimal logging seam used by this package.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Extractor reads every page, detects tables per page and returns them in
// page order (and detection order within a page).
type Extractor struct {
	log Logger
}

// New returns a PDF extractor. A nil logger discards output.
func New(log Logger) *Extractor {
	if log == nil {
		log = nopLogger{}
	}
	return &Extractor{log: log}
}

// Extract implements source.Extractor. Inputs held in memory are spilled to
// a temporary file because the PDF reader works on *os.File.
func (e *Extractor) Extract(ctx context.Context, in source.Input) (tariff.Document, error) {
	path := in.Path
	if path == "" {
		tmp, err := spill(in.Data)
		if err != nil {
			return tariff.Document{}, err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	r, err := reader.Open(path)
	if err != nil {
		return tariff.Document{}, fmt.Errorf("pdf: open: %w", err)
	}
	defer r.Close()

	n, err := r.PageCount()
	if err != nil {
		return tariff.Document{}, fmt.Errorf("pdf: page count: %w", err)
	}

	detector := tables.NewGeometricDetector()
	doc := tariff.Document{Source: in.Name, Format: string(source.FormatPDF)}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return tariff.Document{}, err
		}

		page, err := r.GetPage(i)
		if err != nil {
			e.log.Printf("pdf: skip page=%d err=%v", i+1, err)
			continue
		}
		frags, err := r.ExtractTextFragments(page)
		if err != nil {
			e.log.Printf("pdf: skip page=%d text err=%v", i+1, err)
			continue
		}

		width, _ := page.Width()
		height, _ := page.Height()
		mp := model.NewPage(width, height)
		mp.Number = i + 1
		mp.RawText = toModelFragments(frags)

		found, err := detector.Detect(mp)
		if err != nil {
			e.log.Printf("pdf: skip page=%d detect err=%v", i+1, err)
			continue
		}
		for _, t := range found {
			doc.Tables = append(doc.Tables, toTable(t))
		}
		e.log.Printf("pdf: page=%d fragments=%d tables=%d", i+1, len(frags), len(found))
	}

	return doc, nil
}

func spill(data []byte) (string, error) {
	f, err := os.CreateTemp("", "ratesheet-*.pdf")
	if err != nil {
		return "", fmt.Errorf("pdf: temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("pdf: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("pdf: close temp file: %w", err)
	}
	return f.Name(), nil
}

func toModelFragments(frags []text.TextFragment) []model.TextFragment {
	out := make([]model.TextFragment, len(frags))
	for i, f := range frags {
		out[i] = model.TextFragment{
			Text:     f.Text,
			BBox:     model.BBox{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height},
			FontSize: f.FontSize,
			FontName: f.FontName,
		}
	}
	return out
}

func toTable(t *model.Table) tariff.Table {
	if t == nil {
		return nil
	}
	out := make(tariff.Table, len(t.Rows))
	for i, row := range t.Rows {
		raw := make(tariff.RawRow, len(row))
		for j, c := range row {
			raw[j] = c.Text
		}
		out[i] = raw
	}
	return out
}

var _ source.Extractor = (*Extractor)(nil)
