package tariff

import "fmt"

// RawRow is one row of cells as delivered by a table extractor. A missing cell
// is the empty string.
type RawRow []string

// Table is an extracted table, rows in source order.
type Table []RawRow

// Document is every table extracted from one source, in extraction order.
type Document struct {
	// Source is the URL or path the tables came from.
	Source string

	// Format is the detected input format ("pdf", "html", "csv").
	Format string

	Tables []Table
}

// Selection picks, by position, which tables hold the VP and VU grids.
type Selection struct {
	VP int `json:"vp_index" toml:"vp_index"`
	VU int `json:"vu_index" toml:"vu_index"`
}

// DefaultSelection matches the layout of the published rate-sheet PDF: the
// passenger grid is the first table and the utility grid the seventh.
var DefaultSelection = Selection{VP: 0, VU: 6}

// Select returns the VP and VU tables of doc. It fails with
// ErrMalformedDocument when either index is outside the document.
func Select(doc Document, sel Selection) (vp, vu Table, err error) {
	if sel.VP < 0 || sel.VU < 0 {
		return nil, nil, fmt.Errorf("%w: negative table index (vp=%d vu=%d)", ErrMalformedDocument, sel.VP, sel.VU)
	}
	need := max(sel.VP, sel.VU) + 1
	if len(doc.Tables) < need {
		return nil, nil, fmt.Errorf("%w: need %d tables (vp=%d vu=%d), %s has %d",
			ErrMalformedDocument, need, sel.VP, sel.VU, sourceName(doc), len(doc.Tables))
	}
	return doc.Tables[sel.VP], doc.Tables[sel.VU], nil
}

func sourceName(doc Document) string {
	if doc.Source == "" {
		return "document"
	}
	return doc.Source
}
