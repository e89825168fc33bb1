package filter

import govcard "github.com/emersion/go-vcard"

// MatchesCard evaluates an addressbook-query filter (a flat prop-filter
// list plus a test attribute) against card. test is "anyof" (default,
// logical OR) or "allof" (logical AND) per spec.md §4.1.
func MatchesCard(pfs []PropFilter, test string, card govcard.Card) bool {
	if len(pfs) == 0 {
		return true
	}
	if test == "allof" {
		for _, pf := range pfs {
			if !matchCardPropFilter(pf, card) {
				return false
			}
		}
		return true
	}
	for _, pf := range pfs {
		if matchCardPropFilter(pf, card) {
			return true
		}
	}
	return false
}

func matchCardPropFilter(pf PropFilter, card govcard.Card) bool {
	fields := card[pf.Name]
	if pf.IsNotDefined {
		return len(fields) == 0
	}
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if pf.TextMatch != nil && !MatchText(pf.TextMatch, f.Value) {
			continue
		}
		if !matchCardParamFilters(pf.ParamFilters, f) {
			continue
		}
		return true
	}
	return false
}

func matchCardParamFilters(pfs []ParamFilter, f *govcard.Field) bool {
	for _, pf := range pfs {
		val := f.Params.Get(pf.Name)
		if pf.IsNotDefined {
			if val != "" {
				return false
			}
			continue
		}
		if val == "" {
			return false
		}
		if pf.TextMatch != nil && !MatchText(pf.TextMatch, val) {
			return false
		}
	}
	return true
}
