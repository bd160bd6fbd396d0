package tariff

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// lineBreaks maps every embedded line break to a single space.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Clean normalizes one raw row into its ordered, trimmed, non-empty tokens.
//
// Line breaks inside a cell become one space each, so a two-line cell such as
// "20\n+" yields the single token "20 +". Tokens are NFC-normalized because PDF
// text extraction frequently emits accents in decomposed form.
func Clean(row RawRow) []string {
	out := make([]string, 0, len(row))
	for _, cell := range row {
		if cell == "" {
			continue
		}
		v := strings.TrimSpace(lineBreaks.Replace(cell))
		if v == "" {
			continue
		}
		if !norm.NFC.IsNormalString(v) {
			v = norm.NFC.String(v)
		}
		out = append(out, v)
	}
	return out
}
