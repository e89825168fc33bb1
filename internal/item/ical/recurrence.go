package ical

import (
	"bytes"
	"errors"
	"sort"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// ErrTooManyOccurrences is returned when expanding a recurrence rule would
// exceed the configured cap; spec.md §4.1: respond 403 with
// max-resource-size when this happens.
var ErrTooManyOccurrences = errors.New("ical: recurrence expansion exceeds maximum occurrence count")

// Occurrence is one materialized instance of a recurring (or plain)
// VEVENT within a requested window.
type Occurrence struct {
	Start     time.Time
	End       time.Time
	Component *goical.Component // the override component when one applies, else the master
	Override  bool
}

// Expander materializes recurring VEVENTs into concrete instances,
// honoring RRULE/RDATE/EXDATE and RECURRENCE-ID overrides, grounded on the
// teacher's pkg/ical/recurrence.go (same rrule-go dependency), generalized
// to operate on emersion/go-ical components directly instead of a
// parallel Event struct so overrides can be returned verbatim.
type Expander struct {
	MaxOccurrences int
}

func NewExpander(maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = 10000
	}
	return &Expander{MaxOccurrences: maxOccurrences}
}

// Expand returns every VEVENT occurrence overlapping [rangeStart, rangeEnd).
func (ex *Expander) Expand(cal *goical.Calendar, rangeStart, rangeEnd time.Time) ([]Occurrence, error) {
	var master *goical.Component
	overrides := map[string]*goical.Component{} // RECURRENCE-ID (UTC key) -> component
	for _, child := range cal.Children {
		if child.Name != goical.CompEvent {
			continue
		}
		if recID := child.Props.Get(goical.PropRecurrenceID); recID != nil {
			t, _, err := ParseDateTime(recID.Value)
			if err == nil {
				overrides[t.UTC().Format(time.RFC3339)] = child
			}
			continue
		}
		master = child
	}
	if master == nil {
		return nil, errors.New("ical: no master VEVENT to expand")
	}

	start, _, err := dtstart(master)
	if err != nil {
		return nil, err
	}
	end, hasDur := dtend(master, start)

	rruleProp := master.Props.Get(goical.PropRecurrenceRule)
	var rdates, exdates []time.Time
	for _, p := range master.Props.Values(goical.PropRecurrenceDates) {
		ds, err := parseDateList(p.Value)
		if err == nil {
			rdates = append(rdates, ds...)
		}
	}
	for _, p := range master.Props.Values(goical.PropExceptionDates) {
		ds, err := parseDateList(p.Value)
		if err == nil {
			exdates = append(exdates, ds...)
		}
	}

	var instanceStarts []time.Time
	if rruleProp != nil {
		rule, err := rrule.StrToRRule("DTSTART:" + start.UTC().Format("20060102T150405Z") + "\nRRULE:" + rruleProp.Value)
		if err != nil {
			return nil, err
		}
		duration := end.Sub(start)
		occs := rule.Between(rangeStart.Add(-duration), rangeEnd, true)
		if len(occs)+len(rdates) > ex.MaxOccurrences {
			return nil, ErrTooManyOccurrences
		}
		instanceStarts = append(instanceStarts, occs...)
	}
	instanceStarts = append(instanceStarts, rdates...)
	if rruleProp == nil && len(rdates) == 0 {
		instanceStarts = append(instanceStarts, start)
	}
	if len(instanceStarts) > ex.MaxOccurrences {
		return nil, ErrTooManyOccurrences
	}

	exKey := map[string]bool{}
	for _, d := range exdates {
		exKey[d.UTC().Format(time.RFC3339)] = true
	}

	duration := time.Duration(0)
	if hasDur {
		duration = end.Sub(start)
	}

	seen := map[string]bool{}
	var out []Occurrence
	for _, s := range instanceStarts {
		key := s.UTC().Format(time.RFC3339)
		if seen[key] || exKey[key] {
			continue
		}
		seen[key] = true
		if ov, ok := overrides[key]; ok {
			ovStart, _, err := dtstart(ov)
			if err != nil {
				continue
			}
			ovEnd, _ := dtend(ov, ovStart)
			if overlaps(ovStart, ovEnd, rangeStart, rangeEnd) {
				out = append(out, Occurrence{Start: ovStart, End: ovEnd, Component: ov, Override: true})
			}
			continue
		}
		e := s.Add(duration)
		if overlaps(s, e, rangeStart, rangeEnd) {
			out = append(out, Occurrence{Start: s, End: e, Component: master})
		}
	}
	// Overrides whose RECURRENCE-ID falls outside the RRULE expansion
	// window (e.g. moved far forward) still replace/add an instance if
	// their own new time overlaps the requested range.
	for key, ov := range overrides {
		if seen[key] {
			continue
		}
		ovStart, _, err := dtstart(ov)
		if err != nil {
			continue
		}
		ovEnd, _ := dtend(ov, ovStart)
		if overlaps(ovStart, ovEnd, rangeStart, rangeEnd) {
			out = append(out, Occurrence{Start: ovStart, End: ovEnd, Component: ov, Override: true})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func overlaps(s, e, rangeStart, rangeEnd time.Time) bool {
	if e.Equal(s) {
		// zero-duration events match an instant inside the window
		return !s.Before(rangeStart) && s.Before(rangeEnd)
	}
	return s.Before(rangeEnd) && e.After(rangeStart)
}

func dtstart(c *goical.Component) (time.Time, bool, error) {
	p := c.Props.Get(goical.PropDateTimeStart)
	if p == nil {
		return time.Time{}, false, errors.New("ical: missing DTSTART")
	}
	return ParseDateTime(p.Value)
}

func dtend(c *goical.Component, start time.Time) (time.Time, bool) {
	if p := c.Props.Get(goical.PropDateTimeEnd); p != nil {
		if t, _, err := ParseDateTime(p.Value); err == nil {
			return t, true
		}
	}
	if p := c.Props.Get(goical.PropDuration); p != nil {
		if d, err := parseDuration(p.Value); err == nil {
			return start.Add(d), true
		}
	}
	return start, false
}

// ParseDateTime parses a DATE or DATE-TIME value, returning whether it was
// an all-day DATE value.
func ParseDateTime(v string) (time.Time, bool, error) {
	switch len(v) {
	case 8:
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		return t, true, err
	case 15:
		t, err := time.ParseInLocation("20060102T150405", v, time.Local)
		return t, false, err
	case 16:
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	default:
		t, err := time.Parse(time.RFC3339, v)
		return t, false, err
	}
}

func parseDateList(v string) ([]time.Time, error) {
	var out []time.Time
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				if t, _, err := ParseDateTime(v[start:i]); err == nil {
					out = append(out, t)
				}
			}
			start = i + 1
		}
	}
	return out, nil
}

// EncodeExpanded serializes a set of materialized occurrences as a single
// VCALENDAR, one VEVENT per occurrence with RRULE/RDATE/EXDATE stripped
// and DTSTART/DTEND rewritten to the concrete instance time, per RFC 4791
// §9.6.5's CALDAV:expand semantics (spec.md §4.1 "Expansion").
func EncodeExpanded(occs []Occurrence, prodID string) ([]byte, error) {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropProductID, prodID)
	cal.Props.SetText(goical.PropVersion, "2.0")
	for _, occ := range occs {
		comp := cloneComponent(occ.Component)
		comp.Props.SetDateTime(goical.PropDateTimeStart, occ.Start)
		comp.Props.SetDateTime(goical.PropDateTimeEnd, occ.End)
		comp.Props.Del(goical.PropRecurrenceRule)
		comp.Props.Del(goical.PropRecurrenceDates)
		comp.Props.Del(goical.PropExceptionDates)
		if !occ.Override {
			recID := goical.NewProp(goical.PropRecurrenceID)
			recID.Value = occ.Start.UTC().Format("20060102T150405Z")
			comp.Props.Set(recID)
		}
		cal.Children = append(cal.Children, comp)
	}
	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cloneComponent(src *goical.Component) *goical.Component {
	dst := &goical.Component{Name: src.Name, Props: goical.Props{}}
	for name, vals := range src.Props {
		cp := make([]goical.Prop, len(vals))
		copy(cp, vals)
		dst.Props[name] = cp
	}
	return dst
}
