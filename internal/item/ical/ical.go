// Package ical implements the iCalendar (RFC 5545) half of the item model:
// parsing, canonical serialization, UID handling and free-busy aggregation.
// Grounded on the teacher's pkg/ical, built on github.com/emersion/go-ical.
package ical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
)

// Kind is the calendar component kind an item carries.
type Kind string

const (
	KindEvent   Kind = "VEVENT"
	KindTodo    Kind = "VTODO"
	KindJournal Kind = "VJOURNAL"
)

var supportedKinds = map[string]Kind{
	string(goical.CompEvent):   KindEvent,
	string(goical.CompToDo):    KindTodo,
	string(goical.CompJournal): KindJournal,
}

// ErrInvalidItem is returned when the top-level object lacks a component
// this server understands, per spec.md §4.1.
var ErrInvalidItem = errors.New("ical: invalid item")

// Parsed is one parsed item: its primary component kind, UID, and the
// decoded calendar (which may carry overridden recurrences sharing the UID).
type Parsed struct {
	Kind Kind
	UID  string
	Cal  *goical.Calendar
}

// stripControlChars removes control characters (other than TAB/LF/CR) from
// raw input before parsing, spec.md §4.1: "Strips unexpected control
// characters before parsing."
func stripControlChars(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\t' || b == '\n' || b == '\r' || b >= 0x20 {
			out = append(out, b)
		}
	}
	return out
}

// Parse decodes a single-component iCalendar item (a VCALENDAR wrapping one
// VEVENT/VTODO/VJOURNAL, plus any RECURRENCE-ID overrides sharing its UID).
func Parse(raw []byte) (*Parsed, error) {
	clean := stripControlChars(raw)
	cal, err := goical.NewDecoder(bytes.NewReader(clean)).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}

	var kind Kind
	var uid string
	for _, child := range cal.Children {
		k, ok := supportedKinds[child.Name]
		if !ok {
			continue
		}
		if kind == "" {
			kind = k
		} else if kind != k {
			return nil, fmt.Errorf("%w: mixed component kinds in one item", ErrInvalidItem)
		}
		u := child.Props.Get(goical.PropUID)
		if u == nil {
			continue
		}
		if uid == "" {
			uid = u.Value
		} else if uid != u.Value {
			return nil, fmt.Errorf("%w: recurrence override UID mismatch", ErrInvalidItem)
		}
	}
	if kind == "" {
		return nil, fmt.Errorf("%w: no supported component found", ErrInvalidItem)
	}
	if uid == "" {
		uid = SynthesizeUID(clean)
		setUIDOnAllComponents(cal, uid)
	}
	return &Parsed{Kind: kind, UID: uid, Cal: cal}, nil
}

func setUIDOnAllComponents(cal *goical.Calendar, uid string) {
	for _, child := range cal.Children {
		if _, ok := supportedKinds[child.Name]; !ok {
			continue
		}
		prop := goical.NewProp(goical.PropUID)
		prop.Value = uid
		child.Props.Set(prop)
	}
}

// SynthesizeUID deterministically derives a UID from the bytes it is given
// (Parse passes the control-character-stripped upload), spec.md §3: "the server synthesizes them deterministically
// from a hash of the component." Re-uploading byte-identical content yields
// the same UID (spec.md §8 scenario 6).
func SynthesizeUID(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return "synth-" + hex.EncodeToString(sum[:16]) + "@caldavd"
}

// ProdID is this server's PRODID, always emitted on serialization instead
// of whatever the client or decoder defaulted to (spec.md §4.1).
func ProdID(company, product, version, language string) string {
	return fmt.Sprintf("-//%s//%s %s//%s", company, product, version, strings.ToUpper(language))
}

// Canonicalize re-serializes cal with PRODID set to prodID and VERSION
// added as 2.0 when missing; UIDs are left as they are,
// preserving property order as emersion/go-ical already does on Encode.
func Canonicalize(cal *goical.Calendar, prodID string) ([]byte, error) {
	prop := goical.NewProp(goical.PropProductID)
	prop.Value = prodID
	cal.Props.Set(prop)
	if cal.Props.Get(goical.PropVersion) == nil {
		vprop := goical.NewProp(goical.PropVersion)
		vprop.Value = "2.0"
		cal.Props.Set(vprop)
	}

	var buf bytes.Buffer
	enc := goical.NewEncoder(&buf)
	if err := enc.Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Bounds returns the component's DTSTART/DTEND (or DTSTART+DURATION) span,
// used by storage to populate the time_index cache entry (spec.md §4.2).
// For recurring items this is the first occurrence's span; REPORT-time
// filtering re-expands via Expander for the actual time-range match.
func Bounds(p *Parsed) (start, end *time.Time) {
	for _, child := range p.Cal.Children {
		if _, ok := supportedKinds[child.Name]; !ok {
			continue
		}
		dtstart := child.Props.Get(goical.PropDateTimeStart)
		if dtstart == nil {
			continue
		}
		s, err := dtstart.DateTime(time.UTC)
		if err != nil {
			continue
		}
		start = &s
		if dtend := child.Props.Get(goical.PropDateTimeEnd); dtend != nil {
			if e, err := dtend.DateTime(time.UTC); err == nil {
				end = &e
			}
		} else if dur := child.Props.Get(goical.PropDuration); dur != nil {
			if d, err := parseDuration(dur.Value); err == nil {
				e := s.Add(d)
				end = &e
			}
		}
		return
	}
	return nil, nil
}

func parseDuration(v string) (time.Duration, error) {
	// iCalendar DURATION (RFC 5545 3.3.6) is not Go's time.Duration syntax.
	neg := strings.HasPrefix(v, "-P")
	v = strings.TrimPrefix(v, "-")
	v = strings.TrimPrefix(v, "P")
	var d time.Duration
	var num int
	inTime := false
	for _, r := range v {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
		case r == 'W':
			d += time.Duration(num) * 7 * 24 * time.Hour
			num = 0
		case r == 'D':
			d += time.Duration(num) * 24 * time.Hour
			num = 0
		case r == 'H' && inTime:
			d += time.Duration(num) * time.Hour
			num = 0
		case r == 'M' && inTime:
			d += time.Duration(num) * time.Minute
			num = 0
		case r == 'S' && inTime:
			d += time.Duration(num) * time.Second
			num = 0
		}
	}
	if neg {
		d = -d
	}
	return d, nil
}
