package dav

import (
	"net/http"

	"github.com/beevik/etree"

	"github.com/caldavd/caldavd/internal/xmlutil"
)

// parseExtendedMkcolBody reads an extended-MKCOL body (RFC 5689), namely
// <mkcol><set><prop>...</prop></set></mkcol>, or a bare MKCALENDAR body
// of the same shape, into a property map. A body-less request (plain
// MKCOL) yields an empty map and no error.
func parseExtendedMkcolBody(r *http.Request) (map[xmlutil.Name]string, error) {
	props := map[xmlutil.Name]string{}
	if r.ContentLength == 0 {
		return props, nil
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r.Body); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return props, nil
	}

	setEl := root
	if s := findChildIgnoreNS(root, "set"); s != nil {
		setEl = s
	}
	propEl := findChildIgnoreNS(setEl, "prop")
	if propEl == nil {
		return props, nil
	}
	for _, child := range propEl.ChildElements() {
		props[xmlutil.Name{Space: child.NamespaceURI(), Local: child.Tag}] = child.Text()
	}
	return props, nil
}

func findChildIgnoreNS(parent *etree.Element, local string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}
