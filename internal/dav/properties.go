package dav

import (
	"context"
	"strconv"

	"github.com/caldavd/caldavd/internal/storage"
	"github.com/caldavd/caldavd/internal/xmlutil"
)

// resourceProp resolves one requested property against a collection,
// returning the RawProp to emit and whether it was found at all. Live
// properties (etag, getlastmodified, resourcetype, ...) are computed;
// everything else is looked up in the collection's dead-property map,
// grounded on the teacher's common.PropfindProps handling generalized
// from a fixed prop switch to "live first, then the open-ended map"
// (spec.md §4.6: "computing live ones ... or dead ones from storage").
func (a *App) resourceProp(ctx context.Context, coll *storage.Collection, name xmlutil.Name) (xmlutil.RawProp, bool) {
	if name.Space == xmlutil.NSDAV {
		switch name.Local {
		case "resourcetype":
			return resourceType(coll), true
		case "getetag":
			return xmlutil.Text(name, coll.ETag), true
		case "getlastmodified":
			return xmlutil.Text(name, ""), true
		case "displayname":
			if v, ok := coll.Properties[name]; ok {
				return xmlutil.Text(name, v), true
			}
			return xmlutil.RawProp{}, false
		case "current-user-principal":
			return xmlutil.Nested(name, xmlutil.Text(xmlutil.Name{Space: xmlutil.NSDAV, Local: "href"}, "/"+UserFromContext(ctx)+"/")), true
		case "owner":
			return xmlutil.Nested(name, xmlutil.Text(xmlutil.Name{Space: xmlutil.NSDAV, Local: "href"}, "/"+ownerSegment(coll.Path)+"/")), true
		case "supported-report-set":
			return supportedReportSet(coll), true
		case "sync-token":
			return xmlutil.Text(name, coll.SyncToken), true
		case "principal-URL":
			return xmlutil.Nested(name, xmlutil.Text(xmlutil.Name{Space: xmlutil.NSDAV, Local: "href"}, "/"+ownerSegment(coll.Path)+"/")), true
		}
	}
	if v, ok := coll.Properties[name]; ok {
		return xmlutil.Text(name, v), true
	}
	return xmlutil.RawProp{}, false
}

func ownerSegment(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return path
}

func resourceType(coll *storage.Collection) xmlutil.RawProp {
	name := xmlutil.Name{Space: xmlutil.NSDAV, Local: "resourcetype"}
	markers := []xmlutil.Name{{Space: xmlutil.NSDAV, Local: "collection"}}
	switch coll.Tag {
	case storage.TagCalendar:
		markers = append(markers, xmlutil.Name{Space: xmlutil.NSCalDAV, Local: "calendar"})
	case storage.TagAddressBook:
		markers = append(markers, xmlutil.Name{Space: xmlutil.NSCardDAV, Local: "addressbook"})
	}
	return xmlutil.Markers(name, markers...)
}

func supportedReportSet(coll *storage.Collection) xmlutil.RawProp {
	name := xmlutil.Name{Space: xmlutil.NSDAV, Local: "supported-report-set"}
	reportNames := []string{"sync-collection", "expand-property"}
	switch coll.Tag {
	case storage.TagCalendar:
		reportNames = append(reportNames, "calendar-query", "calendar-multiget", "free-busy-query")
	case storage.TagAddressBook:
		reportNames = append(reportNames, "addressbook-query", "addressbook-multiget")
	}
	var children []xmlutil.RawProp
	for _, rn := range reportNames {
		ns := xmlutil.NSDAV
		if rn == "calendar-query" || rn == "calendar-multiget" || rn == "free-busy-query" {
			ns = xmlutil.NSCalDAV
		} else if rn == "addressbook-query" || rn == "addressbook-multiget" {
			ns = xmlutil.NSCardDAV
		}
		children = append(children, xmlutil.Nested(
			xmlutil.Name{Space: xmlutil.NSDAV, Local: "supported-report"},
			xmlutil.Nested(xmlutil.Name{Space: xmlutil.NSDAV, Local: "report"},
				xmlutil.Markers(xmlutil.Name{Space: ns, Local: rn})),
		))
	}
	return xmlutil.Nested(name, children...)
}

// itemProp resolves a requested property against a single item (its
// getetag/getcontenttype/getlastmodified/resourcetype are the only live
// ones; items carry no dead properties of their own).
func itemProp(it *storage.Item, name xmlutil.Name) (xmlutil.RawProp, bool) {
	switch {
	case name.Space == xmlutil.NSCalDAV && name.Local == "calendar-data":
		return xmlutil.Text(name, string(it.Payload)), true
	case name.Space == xmlutil.NSCardDAV && name.Local == "address-data":
		return xmlutil.Text(name, string(it.Payload)), true
	case name.Space != xmlutil.NSDAV:
		return xmlutil.RawProp{}, false
	}
	switch name.Local {
	case "getetag":
		return xmlutil.Text(name, it.ETag), true
	case "getcontenttype":
		return xmlutil.Text(name, contentTypeForKind(it.Kind)), true
	case "getlastmodified":
		return xmlutil.Text(name, it.LastModified.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")), true
	case "resourcetype":
		return xmlutil.RawProp{Name: name}, true
	case "getcontentlength":
		return xmlutil.Text(name, strconv.Itoa(len(it.Payload))), true
	}
	return xmlutil.RawProp{}, false
}
