// Package csvgrid reads and writes "grid dumps": one or more tables stored in
// a single CSV file. Dumps written by Write open every table with a "#table N"
// line, so all-empty rows and empty tables keep their place. Plain CSV files
// without markers are split into tables at blank lines. It is how extracted
// tables are saved for inspection and replayed without the original PDF.
package csvgrid

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"ratesheet/internal/source"
	"ratesheet/internal/tariff"
)

// Extractor reads grid dumps.
type Extractor struct {
	// Comma is the field delimiter. Zero means sniff from the first line
	// (';', tab or ',').
	Comma rune

	// Charset is "utf-8" (default), "latin1"/"iso-8859-1" or "windows-1252".
	Charset string
}

// Extract implements source.Extractor.
func (e Extractor) Extract(ctx context.Context, in source.Input) (tariff.Document, error) {
	data, err := in.Bytes()
	if err != nil {
		return tariff.Document{}, err
	}
	data, err = decode(data, e.Charset)
	if err != nil {
		return tariff.Document{}, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	dump := isDump(data)
	comma := e.Comma
	if comma == 0 {
		sample := data
		if dump {
			sample = afterFirstLine(bytes.TrimLeft(data, "\r\n"))
		}
		comma = sniffComma(sample)
	}

	var blocks []block
	if dump {
		blocks, err = splitMarked(data)
	} else {
		blocks, err = splitBlocks(data)
	}
	if err != nil {
		return tariff.Document{}, err
	}

	doc := tariff.Document{Source: in.Name, Format: string(source.FormatCSV)}
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return tariff.Document{}, err
		}
		t, err := readBlock(b.data, b.line, comma)
		if err != nil {
			return tariff.Document{}, err
		}
		doc.Tables = append(doc.Tables, t)
	}
	return doc, nil
}

func decode(data []byte, charset string) ([]byte, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return data, nil
	case "latin1", "iso-8859-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("csvgrid: unsupported charset %q", charset)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("csvgrid: decode %s: %w", charset, err)
	}
	return out, nil
}

// sniffComma picks the most frequent candidate delimiter on the first line.
func sniffComma(data []byte) rune {
	first := data
	if i := bytes.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	best, bestN := ',', 0
	for _, c := range []rune{';', '\t', ','} {
		if n := bytes.Count(first, []byte(string(c))); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

type block struct {
	data []byte
	line int // 1-based line of the block's first row
}

// tableMarker opens every table of a dump written by Write.
const tableMarker = "#table"

func isMarker(line []byte) bool {
	return bytes.HasPrefix(line, []byte(tableMarker))
}

// isDump reports whether the first non-blank line is a table marker.
func isDump(data []byte) bool {
	return isMarker(bytes.TrimLeft(data, " \t\r\n"))
}

func afterFirstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return nil
}

// splitBlocks cuts data at blank lines that are outside quoted fields.
func splitBlocks(data []byte) ([]block, error) {
	var (
		out   []block
		cur   bytes.Buffer
		start = 1
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, block{data: append([]byte(nil), cur.Bytes()...), line: start})
			cur.Reset()
		}
	}
	err := scanLines(data, func(line int, text []byte) {
		if len(bytes.TrimSpace(text)) == 0 {
			flush()
			start = line + 1
			return
		}
		cur.Write(text)
		cur.WriteByte('\n')
	})
	if err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// splitMarked cuts data at table markers outside quoted fields. Every marker
// yields a block, including one with no rows.
func splitMarked(data []byte) ([]block, error) {
	var (
		out []block
		cur *block
	)
	err := scanLines(data, func(line int, text []byte) {
		if isMarker(text) {
			out = append(out, block{line: line + 1})
			cur = &out[len(out)-1]
			return
		}
		if cur == nil {
			return
		}
		cur.data = append(cur.data, text...)
		cur.data = append(cur.data, '\n')
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanLines calls fn for every line that starts outside a quoted field.
// Lines continuing a quoted field are appended to the current block as-is.
func scanLines(data []byte, fn func(line int, text []byte)) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		line    int
		inQuote bool
		cont    []byte
	)
	for sc.Scan() {
		line++
		text := sc.Bytes()
		quoted := inQuote
		if bytes.Count(text, []byte{'"'})%2 == 1 {
			inQuote = !inQuote
		}
		if quoted {
			cont = append(cont, '\n')
			cont = append(cont, text...)
			if !inQuote {
				fn(line, cont)
				cont = nil
			}
			continue
		}
		if inQuote {
			cont = append(cont[:0], text...)
			continue
		}
		fn(line, text)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("csvgrid: scan: %w", err)
	}
	if cont != nil {
		fn(line, cont)
	}
	return nil
}

// readBlock parses one table. Rows whose cells are all empty are kept.
func readBlock(data []byte, firstLine int, comma rune) (tariff.Table, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	out := tariff.Table{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvgrid: table block at line %d: %w", firstLine, err)
		}
		out = append(out, tariff.RawRow(rec))
	}
	return out, nil
}

// Write stores doc's tables as a grid dump: UTF-8 with BOM, comma separated,
// each table opened by a "#table N" line. A row with no cells reads back as
// one empty cell.
func Write(w io.Writer, doc tariff.Document) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("\ufeff")
	for i, t := range doc.Tables {
		fmt.Fprintf(bw, "%s %d\n", tableMarker, i)
		for _, row := range t {
			writeRow(bw, row)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("csvgrid: write: %w", err)
	}
	return nil
}

// writeRow encodes row the way csv.Writer does, except that a leading '#' and
// a lone empty cell are quoted so the row can never read back as a marker or
// as a skipped blank line.
func writeRow(bw *bufio.Writer, row tariff.RawRow) {
	if len(row) == 0 {
		row = tariff.RawRow{""}
	}
	for i, field := range row {
		if i > 0 {
			bw.WriteByte(',')
		}
		quote := needsQuotes(field) ||
			(i == 0 && strings.HasPrefix(field, "#")) ||
			(len(row) == 1 && field == "")
		if !quote {
			bw.WriteString(field)
			continue
		}
		bw.WriteByte('"')
		bw.WriteString(strings.ReplaceAll(field, `"`, `""`))
		bw.WriteByte('"')
	}
	bw.WriteByte('\n')
}

func needsQuotes(field string) bool {
	if field == "" {
		return false
	}
	if strings.ContainsAny(field, ",\"\r\n") {
		return true
	}
	r := field[0]
	return r == ' ' || r == '\t'
}

var _ source.Extractor = Extractor{}
