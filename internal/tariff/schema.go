package tariff

import "strings"

// Kind is the classification of a single token.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
	KindCategory
	KindCompositeMarker
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategory:
		return "category"
	case KindCompositeMarker:
		return "composite_marker"
	default:
		return "text"
	}
}

// compositeMarker is the lone "+" the extractor leaves when a volume qualifier
// such as "20 + Hayon" is split across cells.
const compositeMarker = "+"

// liftgateMarker identifies utility vehicles fitted with a tail lift.
const liftgateMarker = "HAYON"

// Schema describes one of the two rate-sheet layouts.
type Schema struct {
	// Name is the short schema identifier ("vp" or "vu").
	Name string

	// Headers are the fixed output columns, in order.
	Headers []string

	// Fields is the number of numeric fields captured by the sequencer.
	Fields int

	// Volume reports whether a volume column sits between model and fields.
	Volume bool

	category func(tok string) bool
	header   func(first, joined string) bool
	boundary func(tok string) bool
}

// MatchCategory reports whether tok is a valid category code for s.
func (s Schema) MatchCategory(tok string) bool { return s.category(tok) }

// Classify assigns tok to one of the token kinds. Numeric wins over category so
// that amounts are never mistaken for codes.
func (s Schema) Classify(tok string) Kind {
	switch {
	case tok == compositeMarker:
		return KindCompositeMarker
	case IsNumeric(tok):
		return KindNumeric
	case s.category(tok):
		return KindCategory
	default:
		return KindText
	}
}

// VPHeaders are the passenger-vehicle output columns.
var VPHeaders = []string{
	"Category",
	"Model (or similar) depending on availability",
	"1 day - Unlimited mileage (€)",
	"Max damage or theft deductible (€)",
	"CDW (damage)",
	"TP (theft)",
	"Reduced CDW deductible (€)",
	"Reduced TP deductible (€)",
	"Super Cover (€)",
}

// VUHeaders are the utility-vehicle output columns.
var VUHeaders = []string{
	"Category",
	"Model (or similar) depending on availability",
	"Volume (m³)",
	"1 day 100km, CDW/TP included (€)",
	"Additional km (€)",
	"Reduced CDW deductible (€)",
	"Reduced TP deductible (€)",
	"Super Cover (€)",
	"Top-part guarantee (With Super Cover)",
}

// VP is the passenger-vehicle schema: category "A".."Z", model, seven amounts.
var VP = Schema{
	Name:     "vp",
	Headers:  VPHeaders,
	Fields:   7,
	category: isLetterCode,
	header:   vpHeader,
	boundary: IsNumeric,
}

// VU is the utility-vehicle schema: category like "B4", model, volume, six amounts.
var VU = Schema{
	Name:     "vu",
	Headers:  VUHeaders,
	Fields:   6,
	Volume:   true,
	category: isLetterDigitsCode,
	header:   vuHeader,
	boundary: func(tok string) bool { return IsNumeric(tok) || IsVolumeCount(tok) },
}

var vpHeaderMarkers = []string{"VEHICULES", "MODÈLES", "KILOMÉTRAGE", "ILLIMITÉ"}

var vuHeaderMarkers = []string{
	"VEHICULES UTILITAIRES",
	"KILOMÉTRAGE SUPPLÉMENTAIRE",
	"GARANTIE",
	"PARTIES HAUTES",
	"COVER",
}

// sectionLabel prefixes the "CATÉGORIE"/"CAT." column labels.
const sectionLabel = "CAT"

func vpHeader(_, joined string) bool {
	return containsAny(joined, vpHeaderMarkers) || strings.HasPrefix(joined, sectionLabel)
}

func vuHeader(first, joined string) bool {
	if containsAny(joined, vuHeaderMarkers) || strings.HasPrefix(joined, sectionLabel) {
		return true
	}
	return strings.Contains(joined, "VOLUME") && !hasLetterDigitsPrefix(first)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// isLetterCode matches exactly one ASCII uppercase letter.
func isLetterCode(tok string) bool {
	return len(tok) == 1 && isUpper(tok[0])
}

// isLetterDigitsCode matches one ASCII uppercase letter followed by one or more digits.
func isLetterDigitsCode(tok string) bool {
	return hasLetterDigitsPrefix(tok) && digitRun(tok, 1) == len(tok)-1
}

// hasLetterDigitsPrefix matches an uppercase letter followed by at least one
// digit, ignoring whatever comes after.
func hasLetterDigitsPrefix(tok string) bool {
	return len(tok) >= 2 && isUpper(tok[0]) && isDigit(tok[1])
}
