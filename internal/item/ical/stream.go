package ical

import (
	"bytes"
	"fmt"

	goical "github.com/emersion/go-ical"
)

// ErrDuplicateUID is returned by ParseStream when a whole-collection
// upload carries two independent items (not recurrence overrides) with
// the same UID, spec.md §4.6: "Duplicate UIDs across the upload are
// rejected."
var ErrDuplicateUID = fmt.Errorf("ical: duplicate uid within upload")

// ParseStream decodes a multi-component iCalendar stream into one Parsed
// per distinct UID, the whole-collection upload path of spec.md §4.6
// (PUT targeting a leaf collection rather than a single item). Children
// without a UID are synthesized one deterministically from their own
// bytes, same as Parse.
func ParseStream(raw []byte) ([]*Parsed, error) {
	clean := stripControlChars(raw)
	cal, err := goical.NewDecoder(bytes.NewReader(clean)).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}

	groups := map[string]*goical.Calendar{}
	masters := map[string]bool{}
	order := []string{}
	for _, child := range cal.Children {
		if _, ok := supportedKinds[child.Name]; !ok {
			continue
		}
		u := child.Props.Get(goical.PropUID)
		uid := ""
		if u != nil {
			uid = u.Value
		}
		if uid == "" {
			var buf bytes.Buffer
			enc := goical.NewEncoder(&buf)
			single := goical.NewCalendar()
			single.Children = []*goical.Component{child}
			if err := enc.Encode(single); err == nil {
				uid = SynthesizeUID(buf.Bytes())
			}
			prop := goical.NewProp(goical.PropUID)
			prop.Value = uid
			child.Props.Set(prop)
		}
		if child.Props.Get(goical.PropRecurrenceID) == nil {
			if masters[uid] {
				return nil, ErrDuplicateUID
			}
			masters[uid] = true
		}
		g, ok := groups[uid]
		if !ok {
			g = goical.NewCalendar()
			g.Props = cal.Props
			groups[uid] = g
			order = append(order, uid)
		}
		g.Children = append(g.Children, child)
	}

	out := make([]*Parsed, 0, len(order))
	for _, uid := range order {
		g := groups[uid]
		var kind Kind
		for _, c := range g.Children {
			if k, ok := supportedKinds[c.Name]; ok {
				kind = k
				break
			}
		}
		out = append(out, &Parsed{Kind: kind, UID: uid, Cal: g})
	}
	return out, nil
}
