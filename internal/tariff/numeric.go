package tariff

import "strings"

// IsNumeric reports whether tok is a formatted amount as printed in the rate
// sheets: a group of 1-3 digits, any number of " ddd" thousands groups, and an
// optional decimal part introduced by ',' or '.'.
//
//	"45,00" "300" "1 200" "1 200,50" "0.5"   numeric
//	"1200" "1 20" "-5" "45 €" "B4" ",50"     not numeric
//
// Only ASCII digits and a single ASCII space between groups are accepted.
func IsNumeric(tok string) bool {
	s := strings.TrimSpace(tok)

	i := digitRun(s, 0)
	if i == 0 || i > 3 {
		return false
	}
	for i < len(s) && s[i] == ' ' {
		n := digitRun(s, i+1)
		if n != 3 {
			return false
		}
		i += 1 + n
	}
	if i == len(s) {
		return true
	}
	if s[i] != ',' && s[i] != '.' {
		return false
	}
	n := digitRun(s, i+1)
	return n > 0 && i+1+n == len(s)
}

// IsDecimal reports whether tok is numeric and carries a decimal separator.
func IsDecimal(tok string) bool {
	return IsNumeric(tok) && strings.ContainsAny(tok, ",.")
}

// IsVolumeCount reports whether tok is a bare digit sequence, optionally
// followed by " +" (a cell like "20\n+" after cleaning).
func IsVolumeCount(tok string) bool {
	s := strings.TrimSpace(tok)
	n := digitRun(s, 0)
	if n == 0 {
		return false
	}
	rest := s[n:]
	return rest == "" || rest == " +"
}

func digitRun(s string, from int) int {
	n := 0
	for from+n < len(s) && isDigit(s[from+n]) {
		n++
	}
	return n
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
