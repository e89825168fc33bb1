package ical

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	goical "github.com/emersion/go-ical"
)

// Interval is a busy period used by free-busy aggregation (spec.md §4.1).
type Interval struct{ Start, End time.Time }

// MergeIntervals coalesces overlapping/adjacent busy intervals, grounded
// on the teacher's MergeIntervalsFB helper.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })
	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// BuildFreeBusy emits a single VFREEBUSY component aggregating busy, capped
// at maxOccurrences entries (spec.md §4.1's max_freebusy_occurrences).
func BuildFreeBusy(start, end time.Time, busy []Interval, prodID string, maxOccurrences int) []byte {
	cal := &goical.Calendar{Component: &goical.Component{Name: goical.CompCalendar, Props: goical.Props{}}}
	cal.Props.SetText(goical.PropProductID, prodID)
	cal.Props.SetText(goical.PropVersion, "2.0")

	fb := &goical.Component{Name: goical.CompFreeBusy, Props: goical.Props{}}
	fb.Props.SetDateTime(goical.PropDateTimeStart, start.UTC())
	fb.Props.SetDateTime(goical.PropDateTimeEnd, end.UTC())

	merged := MergeIntervals(busy)
	if maxOccurrences > 0 && len(merged) > maxOccurrences {
		merged = merged[:maxOccurrences]
	}
	for _, iv := range merged {
		prop := goical.NewProp(goical.PropFreeBusy)
		prop.Params.Set("FBTYPE", "BUSY")
		prop.Value = fmt.Sprintf("%s/%s", iv.Start.UTC().Format("20060102T150405Z"), iv.End.UTC().Format("20060102T150405Z"))
		fb.Props.Add(prop)
	}
	cal.Children = []*goical.Component{fb}

	var buf bytes.Buffer
	_ = goical.NewEncoder(&buf).Encode(cal)
	return buf.Bytes()
}
