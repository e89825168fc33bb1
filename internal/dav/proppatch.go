package dav

import (
	"io"
	"net/http"

	"github.com/beevik/etree"

	"github.com/caldavd/caldavd/internal/rights"
	"github.com/caldavd/caldavd/internal/xmlutil"
)

// handleProppatch applies every <set>/<remove> in document order to one
// property map, then emits a single <propstat> per status (spec.md
// §4.6), grounded on the teacher's proppatch handling in router.go,
// generalized from the teacher's fixed displayname/description props to
// the open-ended property map spec.md §3 describes.
func (a *App) handleProppatch(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	p := a.pathFromRequest(r)

	if !a.checkRights(r.Context(), user, p, rights.PermWriteNonLeaf) && !a.checkRights(r.Context(), user, p, rights.PermWriteLeaf) {
		writeError(w, errDenied)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	sets, removes, names, err := parseProppatch(body)
	if err != nil {
		writeError(w, err)
		return
	}

	coll, err := a.Store.PatchCollectionProps(r.Context(), p, sets, removes)
	if err != nil {
		writeError(w, err)
		return
	}

	var found []xmlutil.RawProp
	for _, n := range names {
		if v, ok := coll.Properties[n]; ok {
			found = append(found, xmlutil.Text(n, v))
		} else {
			found = append(found, xmlutil.RawProp{Name: n})
		}
	}
	writeMultiStatus(w, []xmlutil.Response{xmlutil.GroupByStatus("/"+p+"/", found, nil)})
}

// parseProppatch reads a <propertyupdate> body into sets/removes maps plus
// the ordered list of every property name touched, so the response can
// echo them back in document order.
func parseProppatch(body []byte) (sets map[xmlutil.Name]string, removes []xmlutil.Name, order []xmlutil.Name, err error) {
	sets = map[xmlutil.Name]string{}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, nil, nil, err
	}
	root := doc.Root()
	if root == nil {
		return sets, removes, order, nil
	}
	for _, child := range root.ChildElements() {
		propEl := findChildIgnoreNS(child, "prop")
		if propEl == nil {
			continue
		}
		switch child.Tag {
		case "set":
			for _, prop := range propEl.ChildElements() {
				name := xmlutil.Name{Space: prop.NamespaceURI(), Local: prop.Tag}
				sets[name] = prop.Text()
				order = append(order, name)
			}
		case "remove":
			for _, prop := range propEl.ChildElements() {
				name := xmlutil.Name{Space: prop.NamespaceURI(), Local: prop.Tag}
				removes = append(removes, name)
				order = append(order, name)
			}
		}
	}
	return sets, removes, order, nil
}
