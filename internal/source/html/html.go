// Package html extracts <table> grids from HTML rate sheets with goquery.
package html

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ratesheet/internal/source"
	"ratesheet/internal/tariff"
)

// Extractor returns every <table> matched by Selector, in DOM order.
type Extractor struct {
	// Selector narrows which tables are read. Empty means "table".
	Selector string
}

// Extract implements source.Extractor.
//
// Rows of nested tables belong to the nested table only. A cell with
// colspan=n yields its text followed by n-1 empty cells so columns stay
// aligned. <br> inside a cell becomes a line break, which the cleaner later
// folds into a space.
func (e Extractor) Extract(ctx context.Context, in source.Input) (tariff.Document, error) {
	data, err := in.Bytes()
	if err != nil {
		return tariff.Document{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return tariff.Document{}, fmt.Errorf("parse html: %w", err)
	}

	sel := e.Selector
	if strings.TrimSpace(sel) == "" {
		sel = "table"
	}

	out := tariff.Document{Source: in.Name, Format: string(source.FormatHTML)}
	doc.Find(sel).Each(func(_ int, table *goquery.Selection) {
		out.Tables = append(out.Tables, readTable(table))
	})
	if err := ctx.Err(); err != nil {
		return tariff.Document{}, err
	}
	return out, nil
}

func readTable(table *goquery.Selection) tariff.Table {
	node := table.Get(0)
	var rows tariff.Table

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != node {
			return
		}
		var row tariff.RawRow
		tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, cellText(cell))
			for i := 1; i < colspan(cell); i++ {
				row = append(row, "")
			}
		})
		rows = append(rows, row)
	})
	return rows
}

func cellText(cell *goquery.Selection) string {
	c := cell.Clone()
	c.Find("br").ReplaceWithHtml("\n")
	return c.Text()
}

func colspan(cell *goquery.Selection) int {
	v, ok := cell.Attr("colspan")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

var _ source.Extractor = Extractor{}
