package xmlutil

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
)

// MultiStatus is the RFC 4918 <multistatus> response body used by
// PROPFIND, PROPPATCH and every REPORT. Grounded on the teacher's
// common.MultiStatus/Response/PropStat shape, generalized so one
// <propstat> groups every property sharing a status (spec.md §4.5:
// "a single propstat per status code").
type MultiStatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []Response `xml:"response"`
	SyncToken string     `xml:"DAV: sync-token,omitempty"`
}

type Response struct {
	Href      string     `xml:"href"`
	Status    string     `xml:"status,omitempty"` // set for whole-response failures (e.g. 404)
	PropStats []PropStat `xml:"propstat,omitempty"`
}

// PropStat implements xml.Marshaler itself, so its struct tags are unused.
type PropStat struct {
	Props  []RawProp
	Status string
}

// MarshalXML writes <prop> with each RawProp as a direct child, since
// encoding/xml cannot express "inline a slice of heterogeneous elements"
// via struct tags alone.
func (p PropStat) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "propstat"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	propStart := xml.StartElement{Name: xml.Name{Local: "prop"}}
	if err := e.EncodeToken(propStart); err != nil {
		return err
	}
	for _, rp := range p.Props {
		if err := rp.encode(e); err != nil {
			return err
		}
	}
	if err := e.EncodeToken(propStart.End()); err != nil {
		return err
	}
	statusStart := xml.StartElement{Name: xml.Name{Local: "status"}}
	if err := e.EncodeElement(p.Status, statusStart); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// RawProp is one <prop> child: either plain text content, or a nested tree
// of child elements (for structured properties like resourcetype or acl).
type RawProp struct {
	Name     Name
	Text     string
	Children []RawProp
	// SelfClosingChildren lets a structured property declare bare marker
	// children (e.g. resourcetype's <collection/>) without text or nesting.
	SelfClosingChildren []Name
}

func Text(name Name, text string) RawProp { return RawProp{Name: name, Text: text} }

func Nested(name Name, children ...RawProp) RawProp {
	return RawProp{Name: name, Children: children}
}

func Markers(name Name, markers ...Name) RawProp {
	return RawProp{Name: name, SelfClosingChildren: markers}
}

func (rp RawProp) xmlName() xml.Name {
	if rp.Name.Space == "" {
		return xml.Name{Local: rp.Name.Local}
	}
	return xml.Name{Space: rp.Name.Space, Local: rp.Name.Local}
}

func (rp RawProp) encode(e *xml.Encoder) error {
	start := xml.StartElement{Name: rp.xmlName()}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if rp.Text != "" {
		if err := e.EncodeToken(xml.CharData(rp.Text)); err != nil {
			return err
		}
	}
	for _, m := range rp.SelfClosingChildren {
		ms := xml.StartElement{Name: xml.Name{Space: m.Space, Local: m.Local}}
		if err := e.EncodeToken(ms); err != nil {
			return err
		}
		if err := e.EncodeToken(ms.End()); err != nil {
			return err
		}
	}
	for _, child := range rp.Children {
		if err := child.encode(e); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// PropNotFound indicates a property the client requested with <propname/>
// that the resource does not have; it produces a 404 propstat bucket.
type PropNotFound struct {
	Name Name
}

// GroupByStatus assembles one Response with one PropStat per distinct
// status code, spec.md §4.5's "single propstat per status" rule.
func GroupByStatus(href string, found []RawProp, missing []Name) Response {
	resp := Response{Href: href}
	if len(found) > 0 {
		resp.PropStats = append(resp.PropStats, PropStat{Props: found, Status: "HTTP/1.1 200 OK"})
	}
	if len(missing) > 0 {
		var mp []RawProp
		for _, n := range missing {
			mp = append(mp, RawProp{Name: n})
		}
		resp.PropStats = append(resp.PropStats, PropStat{Props: mp, Status: "HTTP/1.1 404 Not Found"})
	}
	return resp
}

// WriteMultiStatus serializes ms as a 207 Multi-Status response.
func WriteMultiStatus(w http.ResponseWriter, ms MultiStatus) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(ms); err != nil {
		return fmt.Errorf("xmlutil: encode multistatus: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusMultiStatus)
	_, err := w.Write(buf.Bytes())
	return err
}
