package filter

import (
	"time"

	"github.com/beevik/etree"
)

// findChild/childrenNamed ignore namespace prefixes the way cyp0633-
// libcaldora's getElementsIgnoreNS/findElementIgnoreNS do, since a client
// may legally bind the CalDAV/CardDAV namespace to any prefix.
func childrenNamed(parent *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, child := range parent.ChildElements() {
		if child.Tag == local {
			out = append(out, child)
		}
	}
	return out
}

func findChild(parent *etree.Element, local string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}

// ParseCalendarFilter parses the <C:filter> element of a calendar-query
// REPORT into its top-level comp-filter (conventionally named VCALENDAR).
func ParseCalendarFilter(filterElem *etree.Element) (*CompFilter, error) {
	if filterElem == nil {
		return nil, nil
	}
	comps := childrenNamed(filterElem, "comp-filter")
	if len(comps) == 0 {
		return nil, nil
	}
	cf := parseCompFilter(comps[0])
	return &cf, nil
}

func parseCompFilter(el *etree.Element) CompFilter {
	cf := CompFilter{Name: el.SelectAttrValue("name", "")}
	if findChild(el, "is-not-defined") != nil {
		cf.IsNotDefined = true
		return cf
	}
	if tr := findChild(el, "time-range"); tr != nil {
		cf.TimeRange = parseTimeRange(tr)
	}
	for _, pf := range childrenNamed(el, "prop-filter") {
		cf.PropFilters = append(cf.PropFilters, parsePropFilter(pf))
	}
	for _, nested := range childrenNamed(el, "comp-filter") {
		cf.Children = append(cf.Children, parseCompFilter(nested))
	}
	return cf
}

func parsePropFilter(el *etree.Element) PropFilter {
	pf := PropFilter{Name: el.SelectAttrValue("name", "")}
	if findChild(el, "is-not-defined") != nil {
		pf.IsNotDefined = true
		return pf
	}
	if tr := findChild(el, "time-range"); tr != nil {
		pf.TimeRange = parseTimeRange(tr)
	}
	if tm := findChild(el, "text-match"); tm != nil {
		pf.TextMatch = parseTextMatch(tm)
	}
	for _, pfilt := range childrenNamed(el, "param-filter") {
		pf.ParamFilters = append(pf.ParamFilters, parseParamFilter(pfilt))
	}
	return pf
}

func parseParamFilter(el *etree.Element) ParamFilter {
	p := ParamFilter{Name: el.SelectAttrValue("name", "")}
	if findChild(el, "is-not-defined") != nil {
		p.IsNotDefined = true
		return p
	}
	if tm := findChild(el, "text-match"); tm != nil {
		p.TextMatch = parseTextMatch(tm)
	}
	return p
}

func parseTextMatch(el *etree.Element) *TextMatch {
	return &TextMatch{
		Collation: el.SelectAttrValue("collation", "i;ascii-casemap"),
		MatchType: el.SelectAttrValue("match-type", "contains"),
		Negate:    el.SelectAttrValue("negate-condition", "no") == "yes",
		Value:     el.Text(),
	}
}

func parseTimeRange(el *etree.Element) *TimeRange {
	tr := &TimeRange{}
	if s := el.SelectAttrValue("start", ""); s != "" {
		if t, err := time.Parse("20060102T150405Z", s); err == nil {
			tr.Start = t
		}
	}
	if e := el.SelectAttrValue("end", ""); e != "" {
		if t, err := time.Parse("20060102T150405Z", e); err == nil {
			tr.End = t
		}
	}
	return tr
}

// ParseAddressbookFilter parses the <CARD:filter> element of an
// addressbook-query REPORT: a flat list of prop-filter plus a top-level
// test attribute ("anyof", default, or "allof").
func ParseAddressbookFilter(filterElem *etree.Element) (pfs []PropFilter, test string, err error) {
	if filterElem == nil {
		return nil, "anyof", nil
	}
	test = filterElem.SelectAttrValue("test", "anyof")
	for _, pf := range childrenNamed(filterElem, "prop-filter") {
		pfs = append(pfs, parsePropFilter(pf))
	}
	return pfs, test, nil
}

// ParseXML reads data into an etree document. It applies no depth or
// element-count limits of its own (unlike xmlutil.Decode); the whole
// body is read into memory.
func ParseXML(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	return doc, nil
}
