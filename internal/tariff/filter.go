package tariff

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// IsHeader reports whether a cleaned row is a header or noise row for s. It
// must run before category extraction: header text such as "CATÉGORIE B" would
// otherwise be read as data.
func (s Schema) IsHeader(tokens []string) bool {
	return newRowFilter(s).reject(tokens)
}

// rowFilter owns a Caser, which is stateful and must not be shared between
// goroutines; one filter is built per parsed table.
type rowFilter struct {
	schema Schema
	upper  cases.Caser
}

func newRowFilter(s Schema) *rowFilter {
	return &rowFilter{schema: s, upper: cases.Upper(language.French)}
}

func (f *rowFilter) reject(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	joined := f.upper.String(strings.Join(tokens, " "))
	return f.schema.header(tokens[0], joined)
}
