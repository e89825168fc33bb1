// Package xmlutil holds the DAV namespace constants, the multistatus
// writer used by internal/dav, and a hardened encoding/xml decoder.
package xmlutil

// Canonical namespace set understood by the server. Unknown namespaces are
// preserved on round-trip but never interpreted.
const (
	NSDAV      = "DAV:"
	NSCalDAV   = "urn:ietf:params:xml:ns:caldav"
	NSCardDAV  = "urn:ietf:params:xml:ns:carddav"
	NSAppleIC  = "http://apple.com/ns/ical/"
	NSCS       = "http://calendarserver.org/ns/"
	NSRadicale = "http://radicale.org/ns/"
)

// Name is a namespace-qualified XML element or attribute name, used as the
// key for a collection's open-ended property map (spec: "unknown
// properties round-trip").
type Name struct {
	Space string
	Local string
}

func (n Name) String() string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + n.Local
}
