package filter

import (
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/caldavd/caldavd/internal/item/ical"
)

// MatchesComponent evaluates cf (the VCALENDAR comp-filter) against cal,
// expanding recurrences to test time-range against concrete occurrences
// (spec.md §4.1: time-range against a recurring VEVENT enumerates
// DTSTART/DTEND after RRULE/RDATE/EXDATE expansion, including overridden
// recurrences). Evaluation is bottom-up: a comp-filter with nested
// constraints matches iff at least one matching child component exists.
func MatchesComponent(cf *CompFilter, cal *goical.Calendar, expander *ical.Expander) (bool, error) {
	if cf == nil {
		return true, nil
	}
	if cf.IsNotDefined {
		return false, nil
	}
	for _, nested := range cf.Children {
		for _, child := range cal.Children {
			if child.Name != nested.Name {
				continue
			}
			ok, err := matchComponent(&nested, cal, child, expander)
			if err != nil {
				return false, err
			}
			if nested.IsNotDefined {
				ok = !ok
			}
			if ok {
				return true, nil
			}
		}
		if nested.IsNotDefined {
			hasAny := false
			for _, child := range cal.Children {
				if child.Name == nested.Name {
					hasAny = true
					break
				}
			}
			if !hasAny {
				return true, nil
			}
		}
	}
	return len(cf.Children) == 0, nil
}

func matchComponent(cf *CompFilter, cal *goical.Calendar, comp *goical.Component, expander *ical.Expander) (bool, error) {
	if cf.TimeRange != nil {
		ok, err := matchesTimeRange(cal, comp, cf.TimeRange, expander)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	for _, pf := range cf.PropFilters {
		if !matchPropFilter(pf, comp) {
			return false, nil
		}
	}
	for _, nested := range cf.Children {
		found := false
		for _, sub := range comp.Children {
			if sub.Name != nested.Name {
				continue
			}
			ok, err := matchComponent(&nested, cal, sub, expander)
			if err != nil {
				return false, err
			}
			if nested.IsNotDefined {
				ok = !ok
			}
			if ok {
				found = true
				break
			}
		}
		if nested.IsNotDefined && !found {
			found = true
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

func matchesTimeRange(cal *goical.Calendar, comp *goical.Component, tr *TimeRange, expander *ical.Expander) (bool, error) {
	start, end := tr.Start, tr.End
	if start.IsZero() {
		start = time.Unix(-1<<62, 0)
	}
	if end.IsZero() {
		end = time.Unix(1<<62, 0)
	}
	if comp.Name != goical.CompEvent {
		// VTODO/VJOURNAL: compare DTSTART/DUE/COMPLETED directly, no
		// recurrence expansion (RRULE expansion only applies to VEVENT
		// per spec.md §4.1).
		s, hasS := propTime(comp, goical.PropDateTimeStart)
		e, hasE := propTime(comp, "DUE")
		if !hasE {
			e, hasE = propTime(comp, "COMPLETED")
		}
		if !hasS && !hasE {
			return false, nil
		}
		if !hasE {
			e = s
		}
		if !hasS {
			s = e
		}
		return s.Before(end) && e.After(start), nil
	}
	occs, err := expander.Expand(cal, start, end)
	if err != nil {
		return false, err
	}
	return len(occs) > 0, nil
}

func propTime(comp *goical.Component, name string) (time.Time, bool) {
	p := comp.Props.Get(name)
	if p == nil {
		return time.Time{}, false
	}
	t, _, err := ical.ParseDateTime(p.Value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func matchPropFilter(pf PropFilter, comp *goical.Component) bool {
	props := comp.Props.Values(pf.Name)
	if pf.IsNotDefined {
		return len(props) == 0
	}
	if len(props) == 0 {
		return false
	}
	for _, p := range props {
		if pf.TimeRange != nil {
			t, _, err := ical.ParseDateTime(p.Value)
			if err != nil || t.Before(pf.TimeRange.Start) || (!pf.TimeRange.End.IsZero() && !t.Before(pf.TimeRange.End)) {
				continue
			}
		}
		if pf.TextMatch != nil && !MatchText(pf.TextMatch, p.Value) {
			continue
		}
		if !matchParamFilters(pf.ParamFilters, p) {
			continue
		}
		return true
	}
	return false
}

func matchParamFilters(pfs []ParamFilter, p goical.Prop) bool {
	for _, pf := range pfs {
		val := p.Params.Get(pf.Name)
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
