// Package source turns raw rate-sheet bytes into a tariff.Document: an ordered
// list of tables, each an ordered list of rows of cell strings.
//
// Format-specific extractors live in subpackages (pdf, html, csvgrid) and are
// collected into a Set by the caller.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ratesheet/internal/tariff"
)

var (
	// ErrUnsupportedFormat means no extractor is registered for the format.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrNoTables means extraction succeeded but found no table at all.
	ErrNoTables = errors.New("no tables found")
)

// Format names an input format.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatPDF     Format = "pdf"
	FormatHTML    Format = "html"
	FormatCSV     Format = "csv"
	FormatUnknown Format = "unknown"
)

// ParseFormat maps a config string to a Format. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatPDF, FormatHTML, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Input is one rate sheet to extract. Path, when set, is a local file holding
// the content; otherwise Data holds it. Name is the URL or path used in logs
// and in Document.Source.
type Input struct {
	Name string
	Path string
	Data []byte
}

// Bytes returns the content, reading Path when Data is empty.
func (in Input) Bytes() ([]byte, error) {
	if in.Data != nil || in.Path == "" {
		return in.Data, nil
	}
	b, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", in.Path, err)
	}
	return b, nil
}

// Extractor pulls every table out of one input, in document order.
type Extractor interface {
	Extract(ctx context.Context, in Input) (tariff.Document, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, in Input) (tariff.Document, error)

func (f ExtractorFunc) Extract(ctx context.Context, in Input) (tariff.Document, error) {
	return f(ctx, in)
}

// Set dispatches to an Extractor by format.
type Set map[Format]Extractor

// Extract resolves FormatAuto with Detect, runs the matching extractor and
// stamps Source and Format on the result. A document without tables is
// reported as ErrNoTables.
func (s Set) Extract(ctx context.Context, in Input, f Format) (tariff.Document, error) {
	if f == "" || f == FormatAuto {
		sample, err := in.Bytes()
		if err != nil {
			return tariff.Document{}, fmt.Errorf("source: %w", err)
		}
		f = Detect(in.Name, sample)
	}

	ex, ok := s[f]
	if !ok {
		return tariff.Document{}, fmt.Errorf("source: %w: %s (%s)", ErrUnsupportedFormat, f, in.Name)
	}

	doc, err := ex.Extract(ctx, in)
	if err != nil {
		return tariff.Document{}, fmt.Errorf("source: extract %s %s: %w", f, in.Name, err)
	}
	doc.Source = in.Name
	doc.Format = string(f)
	if len(doc.Tables) == 0 {
		return doc, fmt.Errorf("source: %s: %w", in.Name, ErrNoTables)
	}
	return doc, nil
}

const sniffLen = 512

// Detect guesses the format from content first and the name's extension
// second. PDF is recognised by its "%PDF-" header, HTML by a leading tag.
// Anything else with a .csv/.txt extension, or without a better guess, is CSV.
func Detect(name string, content []byte) Format {
	sample := content
	if len(sample) > sniffLen {
		sample = sample[:sniffLen]
	}
	trim := bytes.TrimSpace(bytes.TrimPrefix(sample, []byte("\xef\xbb\xbf")))

	switch {
	case bytes.HasPrefix(trim, []byte("%PDF-")):
		return FormatPDF
	case len(trim) > 0 && trim[0] == '<':
		return FormatHTML
	}

	switch strings.ToLower(extOf(name)) {
	case ".pdf":
		return FormatPDF
	case ".html", ".htm":
		return FormatHTML
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	}

	if len(trim) == 0 {
		return FormatUnknown
	}
	return FormatCSV
}

// extOf handles both URLs (query strings stripped) and file paths.
func extOf(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if strings.Contains(name, "://") {
		return path.Ext(name)
	}
	return filepath.Ext(name)
}
