package dav

import (
	"context"
	"io"
	"net/http"
	"path"

	"github.com/beevik/etree"

	"github.com/caldavd/caldavd/internal/rights"
	"github.com/caldavd/caldavd/internal/storage"
	"github.com/caldavd/caldavd/internal/xmlutil"
)

// propfindBody is the parsed <propfind> request: either allprop, propname,
// or an explicit list of properties, grounded on the teacher's
// common.ParsePropfind.
type propfindBody struct {
	AllProp  bool
	PropName bool
	Props    []xmlutil.Name
}

func parsePropfind(r *http.Request) (propfindBody, error) {
	if r.ContentLength == 0 {
		return propfindBody{AllProp: true}, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return propfindBody{}, err
	}
	if len(body) == 0 {
		return propfindBody{AllProp: true}, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return propfindBody{}, err
	}
	root := doc.Root()
	if root == nil {
		return propfindBody{AllProp: true}, nil
	}
	if findChildIgnoreNS(root, "allprop") != nil {
		return propfindBody{AllProp: true}, nil
	}
	if findChildIgnoreNS(root, "propname") != nil {
		return propfindBody{PropName: true}, nil
	}
	propEl := findChildIgnoreNS(root, "prop")
	if propEl == nil {
		return propfindBody{AllProp: true}, nil
	}
	var pb propfindBody
	for _, child := range propEl.ChildElements() {
		pb.Props = append(pb.Props, xmlutil.Name{Space: child.NamespaceURI(), Local: child.Tag})
	}
	return pb, nil
}

// allPropNames lists the properties returned for an <allprop/> request:
// the live set plus every dead property actually set on the collection,
// mirroring the teacher's "allprop never includes sync-token" carve-out
// (sync-token is only returned when explicitly requested, RFC 6578 §3.3).
func allPropNames(coll *storage.Collection) []xmlutil.Name {
	names := []xmlutil.Name{
		{Space: xmlutil.NSDAV, Local: "resourcetype"},
		{Space: xmlutil.NSDAV, Local: "getetag"},
		{Space: xmlutil.NSDAV, Local: "getlastmodified"},
		{Space: xmlutil.NSDAV, Local: "displayname"},
		{Space: xmlutil.NSDAV, Local: "owner"},
		{Space: xmlutil.NSDAV, Local: "current-user-principal"},
		{Space: xmlutil.NSDAV, Local: "supported-report-set"},
	}
	for k := range coll.Properties {
		dup := false
		for _, n := range names {
			if n == k {
				dup = true
				break
			}
		}
		if !dup {
			names = append(names, k)
		}
	}
	return names
}

// handlePropfind implements PROPFIND over a collection subtree, depth
// 0/1/infinity (capped), per spec.md §4.6.
func (a *App) handlePropfind(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	p := a.pathFromRequest(r)
	depth := r.Header.Get("Depth")

	pb, err := parsePropfind(r)
	if err != nil {
		writeError(w, err)
		return
	}

	collPath, name := splitPath(p)
	if coll, cerr := a.Store.GetCollection(r.Context(), p); cerr == nil {
		if !a.checkRights(r.Context(), user, p, permForCollection(coll, false)) {
			writeError(w, errDenied)
			return
		}
		resps := a.propfindCollection(r.Context(), coll, pb, depth, 0)
		writeMultiStatus(w, resps)
		return
	}

	if !a.checkRights(r.Context(), user, collPath, rights.PermReadLeaf) {
		writeError(w, errDenied)
		return
	}
	item, ierr := a.Store.GetItem(r.Context(), collPath, name)
	if ierr != nil {
		writeError(w, ierr)
		return
	}
	writeMultiStatus(w, []xmlutil.Response{a.propfindItem(p, item, pb)})
}

func (a *App) propfindCollection(ctx context.Context, coll *storage.Collection, pb propfindBody, depth string, level int) []xmlutil.Response {
	resps := []xmlutil.Response{a.oneResourcePropfind(ctx, coll, pb)}

	if depth == "0" || coll.Tag != storage.TagNone {
		if coll.Tag != storage.TagNone && (depth == "1" || depth == "infinity") {
			items, err := a.Store.ListItems(ctx, coll.Path)
			if err == nil {
				for _, it := range items {
					resps = append(resps, a.propfindItem(path.Join(coll.Path, it.Name), it, pb))
				}
			}
		}
		return resps
	}

	children, err := a.Store.ListChildren(ctx, coll.Path)
	if err != nil {
		return resps
	}
	for _, childPath := range children {
		child, err := a.Store.GetCollection(ctx, childPath)
		if err != nil {
			continue
		}
		nextDepth := depth
		if depth == "1" {
			nextDepth = "0"
		}
		if depth == "infinity" && level >= maxInfinityDepth {
			continue
		}
		resps = append(resps, a.propfindCollection(ctx, child, pb, nextDepth, level+1)...)
	}
	return resps
}

// maxInfinityDepth bounds Depth:infinity recursion, spec.md §8: "terminates
// within timeout or returns 508" — capping recursion is the simpler half
// of that guarantee; the timeout half is enforced by net/http.Server's
// WriteTimeout on the surrounding connection.
const maxInfinityDepth = 64

func (a *App) oneResourcePropfind(ctx context.Context, coll *storage.Collection, pb propfindBody) xmlutil.Response {
	href := "/" + coll.Path + "/"
	if pb.PropName {
		var found []xmlutil.RawProp
		for _, n := range allPropNames(coll) {
			found = append(found, xmlutil.RawProp{Name: n})
		}
		return xmlutil.GroupByStatus(href, found, nil)
	}
	names := pb.Props
	if pb.AllProp {
		names = allPropNames(coll)
	}
	var found []xmlutil.RawProp
	var missing []xmlutil.Name
	for _, n := range names {
		rp, ok := a.resourceProp(ctx, coll, n)
		if ok {
			found = append(found, rp)
		} else {
			missing = append(missing, n)
		}
	}
	return xmlutil.GroupByStatus(href, found, missing)
}

func (a *App) propfindItem(itemPath string, it *storage.Item, pb propfindBody) xmlutil.Response {
	href := "/" + itemPath
	if pb.PropName {
		var found []xmlutil.RawProp
		for _, n := range []string{"getetag", "getcontenttype", "getlastmodified", "resourcetype", "getcontentlength"} {
			found = append(found, xmlutil.RawProp{Name: xmlutil.Name{Space: xmlutil.NSDAV, Local: n}})
		}
		return xmlutil.GroupByStatus(href, found, nil)
	}
	names := pb.Props
	if pb.AllProp {
		names = []xmlutil.Name{
			{Space: xmlutil.NSDAV, Local: "getetag"},
			{Space: xmlutil.NSDAV, Local: "getcontenttype"},
			{Space: xmlutil.NSDAV, Local: "getlastmodified"},
			{Space: xmlutil.NSDAV, Local: "resourcetype"},
			{Space: xmlutil.NSDAV, Local: "getcontentlength"},
		}
		if it.Kind == storage.KindCard {
			names = append(names, xmlutil.Name{Space: xmlutil.NSCardDAV, Local: "address-data"})
		} else {
			names = append(names, xmlutil.Name{Space: xmlutil.NSCalDAV, Local: "calendar-data"})
		}
	}
	var found []xmlutil.RawProp
	var missing []xmlutil.Name
	for _, n := range names {
		rp, ok := itemProp(it, n)
		if ok {
			found = append(found, rp)
		} else {
			missing = append(missing, n)
		}
	}
	return xmlutil.GroupByStatus(href, found, missing)
}

func writeMultiStatus(w http.ResponseWriter, resps []xmlutil.Response) {
	ms := xmlutil.MultiStatus{Responses: resps}
	if err := xmlutil.WriteMultiStatus(w, ms); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
