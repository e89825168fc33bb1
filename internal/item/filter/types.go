// Package filter evaluates the CalDAV/CardDAV REPORT filter grammar
// (comp-filter / prop-filter / param-filter / text-match / time-range) of
// spec.md §4.1. The tree shape is grounded field-for-field on
// cyp0633-libcaldora's server/storage.Filter/PropFilter/ParamFilter/
// TextMatch/TimeRange types; evaluation is new code since the pack has no
// reference evaluator.
package filter

import "time"

// TextMatch is a <text-match> constraint.
type TextMatch struct {
	Value     string
	Collation string // "i;ascii-casemap" (default) or "i;unicode-casemap"
	Negate    bool
	MatchType string // "equals", "contains" (default), "starts-with", "ends-with"
}

// ParamFilter is a <param-filter>, nested inside a PropFilter.
type ParamFilter struct {
	Name         string
	IsNotDefined bool
	TextMatch    *TextMatch
}

// PropFilter is a <prop-filter>, nested inside a CompFilter (iCalendar) or
// directly under <filter> (vCard).
type PropFilter struct {
	Name         string
	IsNotDefined bool
	TimeRange    *TimeRange
	TextMatch    *TextMatch
	ParamFilters []ParamFilter
}

// TimeRange is a <time-range>; either bound may be zero meaning unbounded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// CompFilter is a <comp-filter>, the iCalendar-only top-level node.
type CompFilter struct {
	Name         string
	IsNotDefined bool
	TimeRange    *TimeRange
	PropFilters  []PropFilter
	Children     []CompFilter
}
