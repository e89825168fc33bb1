package filter

import (
	"strings"

	"golang.org/x/text/cases"
)

var unicodeFold = cases.Fold()

// normalize applies the requested collation. "i;unicode-casemap" uses
// golang.org/x/text's Unicode case folding (cases.Fold); every other
// collation, "i;ascii-casemap" included, uses strings.ToLower, which
// lowercases non-ASCII letters too.
func normalize(collation, s string) string {
	if collation == "i;unicode-casemap" {
		return unicodeFold.String(s)
	}
	return strings.ToLower(s)
}

// MatchText evaluates a single text-match against a candidate string.
func MatchText(tm *TextMatch, candidate string) bool {
	if tm == nil {
		return true
	}
	a := normalize(tm.Collation, candidate)
	b := normalize(tm.Collation, tm.Value)
	var m bool
	switch tm.MatchType {
	case "equals":
		m = a == b
	case "starts-with":
		m = strings.HasPrefix(a, b)
	case "ends-with":
		m = strings.HasSuffix(a, b)
	default: // "contains"
		m = strings.Contains(a, b)
	}
	if tm.Negate {
		return !m
	}
	return m
}
