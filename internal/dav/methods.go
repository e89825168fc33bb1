package dav

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/caldavd/caldavd/internal/item/ical"
	"github.com/caldavd/caldavd/internal/item/vcard"
	"github.com/caldavd/caldavd/internal/rights"
	"github.com/caldavd/caldavd/internal/storage"
	"github.com/caldavd/caldavd/internal/xmlutil"
)

func splitPath(p string) (collPath, itemName string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// handleGet serves both GET and HEAD: on a leaf collection it
// concatenates every item into one iCalendar/vCard stream (adding
// X-WR-CALNAME/X-WR-CALDESC), on an item it returns the raw payload
// (spec.md §4.6).
func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	p := a.pathFromRequest(r)

	if coll, err := a.Store.GetCollection(r.Context(), p); err == nil {
		if !a.checkRights(r.Context(), user, p, permForCollection(coll, false)) {
			writeError(w, errDenied)
			return
		}
		a.serveWholeCollection(w, r, coll)
		return
	}

	collPath, name := splitPath(p)
	if !a.checkRights(r.Context(), user, collPath, rights.PermReadLeaf) {
		writeError(w, errDenied)
		return
	}
	item, err := a.Store.GetItem(r.Context(), collPath, name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", item.ETag)
	w.Header().Set("Content-Type", contentTypeForKind(item.Kind))
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(item.Payload)))
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(item.Payload)
}

func permForCollection(c *storage.Collection, write bool) rights.Permission {
	leaf := c.Tag != storage.TagNone
	switch {
	case leaf && write:
		return rights.PermWriteLeaf
	case leaf:
		return rights.PermReadLeaf
	case write:
		return rights.PermWriteNonLeaf
	default:
		return rights.PermReadNonLeaf
	}
}

func contentTypeForKind(k storage.ComponentKind) string {
	if k == storage.KindCard {
		return "text/vcard; charset=utf-8"
	}
	return "text/calendar; charset=utf-8"
}

func (a *App) serveWholeCollection(w http.ResponseWriter, r *http.Request, coll *storage.Collection) {
	items, err := a.Store.ListItems(r.Context(), coll.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", coll.ETag)

	if coll.Tag == storage.TagAddressBook {
		w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
		for _, it := range items {
			_, _ = w.Write(it.Payload)
		}
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:%s\r\n", ical.ProdID("caldavd", "caldavd", "1.0", "EN"))
	if name := coll.Properties[xmlutil.Name{Space: xmlutil.NSDAV, Local: "displayname"}]; name != "" {
		fmt.Fprintf(w, "X-WR-CALNAME:%s\r\n", name)
	}
	if desc := coll.Properties[xmlutil.Name{Space: xmlutil.NSCalDAV, Local: "calendar-description"}]; desc != "" {
		fmt.Fprintf(w, "X-WR-CALDESC:%s\r\n", desc)
	}
	for _, it := range items {
		body := stripVCalendarWrapper(it.Payload)
		w.Write(body)
	}
	fmt.Fprint(w, "END:VCALENDAR\r\n")
}

// stripVCalendarWrapper removes the outer BEGIN/END:VCALENDAR and
// PRODID/VERSION lines from one item's payload so its components can be
// re-wrapped inside the aggregate stream written by serveWholeCollection.
func stripVCalendarWrapper(payload []byte) []byte {
	lines := bytes.Split(payload, []byte("\n"))
	var out [][]byte
	for _, line := range lines {
		trimmed := bytes.TrimRight(line, "\r")
		up := bytes.ToUpper(trimmed)
		switch {
		case bytes.Equal(up, []byte("BEGIN:VCALENDAR")), bytes.Equal(up, []byte("END:VCALENDAR")):
			continue
		case bytes.HasPrefix(up, []byte("PRODID:")), bytes.HasPrefix(up, []byte("VERSION:")):
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

// handlePut implements PUT: precondition checks, whole-collection upload
// detection, parse/validate, write, cache invalidation, sync advance.
func (a *App) handlePut(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	p := a.pathFromRequest(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, a.Config.MaxContentLength+1))
	if err != nil {
		writeError(w, err)
		return
	}
	if a.Config.MaxContentLength > 0 && int64(len(body)) > a.Config.MaxContentLength {
		writeError(w, errTooLarge)
		return
	}

	if coll, err := a.Store.GetCollection(r.Context(), p); err == nil {
		a.handleWholeCollectionPut(w, r, coll, body)
		return
	}

	collPath, name := splitPath(p)
	if !a.checkRights(r.Context(), user, collPath, rights.PermWriteLeaf) {
		writeError(w, errDenied)
		return
	}

	ifMatch := r.Header.Get("If-Match")
	ifNoneMatchStar := r.Header.Get("If-None-Match") == "*"

	item, err := a.Store.PutItem(r.Context(), collPath, name, body, ifMatch, ifNoneMatchStar)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", item.ETag)
	w.WriteHeader(http.StatusCreated)
}

func (a *App) handleWholeCollectionPut(w http.ResponseWriter, r *http.Request, coll *storage.Collection, body []byte) {
	user := UserFromContext(r.Context())
	if !a.checkRights(r.Context(), user, coll.Path, rights.PermWriteLeaf) {
		writeError(w, errDenied)
		return
	}

	var names []string
	var payloads [][]byte
	var err error
	if coll.Tag == storage.TagAddressBook {
		var cards []*vcard.Parsed
		cards, err = vcard.ParseStream(body)
		if err == nil {
			seen := map[string]bool{}
			for _, c := range cards {
				if seen[c.UID] {
					err = vcard.ErrInvalidItem
					break
				}
				seen[c.UID] = true
				canon, cerr := vcard.Canonicalize(c.Card)
				if cerr != nil {
					err = cerr
					break
				}
				names = append(names, c.UID+".vcf")
				payloads = append(payloads, canon)
			}
		}
	} else {
		var items []*ical.Parsed
		items, err = ical.ParseStream(body)
		if err == nil {
			seen := map[string]bool{}
			for _, it := range items {
				if seen[it.UID] {
					err = ical.ErrDuplicateUID
					break
				}
				seen[it.UID] = true
				canon, cerr := ical.Canonicalize(it.Cal, ical.ProdID("caldavd", "caldavd", "1.0", "EN"))
				if cerr != nil {
					err = cerr
					break
				}
				names = append(names, it.UID+".ics")
				payloads = append(payloads, canon)
			}
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	for i, name := range names {
		if _, err := a.Store.PutItem(r.Context(), coll.Path, name, payloads[i], "", false); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	p := a.pathFromRequest(r)

	if coll, err := a.Store.GetCollection(r.Context(), p); err == nil {
		leaf := coll.Tag != storage.TagNone
		if !a.checkRights(r.Context(), user, p, permForCollection(coll, true)) {
			writeError(w, errDenied)
			return
		}
		opts := coll.Properties[radicaleRightsKey]
		if !a.Config.PermitDeleteCollection && !rights.AllowsDelete(opts, leaf) {
			writeError(w, errDenied)
			return
		}
		if err := a.Store.DeleteCollection(r.Context(), p); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	collPath, name := splitPath(p)
	if !a.checkRights(r.Context(), user, collPath, rights.PermWriteLeaf) {
		writeError(w, errDenied)
		return
	}
	if err := a.Store.DeleteItem(r.Context(), collPath, name, r.Header.Get("If-Match")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleMkcol(w http.ResponseWriter, r *http.Request, calendar bool) {
	user := UserFromContext(r.Context())
	p := a.pathFromRequest(r)
	collPath, _ := splitPath(p)
	if !a.checkRights(r.Context(), user, collPath, rights.PermWriteNonLeaf) {
		writeError(w, errDenied)
		return
	}

	tag := storage.TagNone
	if calendar {
		tag = storage.TagCalendar
	}
	props, err := parseExtendedMkcolBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if tag == storage.TagNone {
		if t, ok := props[xmlutil.Name{Space: xmlutil.NSCardDAV, Local: "addressbook"}]; ok && t == "1" {
			tag = storage.TagAddressBook
		}
	}

	if _, err := a.Store.CreateCollection(r.Context(), p, tag, props); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *App) handleMove(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	src := a.pathFromRequest(r)
	dest := destFromHeader(r, a.basePrefix())
	overwrite := r.Header.Get("Overwrite") != "F"

	if !a.checkRights(r.Context(), user, src, rights.PermWriteNonLeaf) {
		writeError(w, errDenied)
		return
	}
	if !a.checkRights(r.Context(), user, dest, rights.PermWriteNonLeaf) {
		writeError(w, errDenied)
		return
	}
	if overwrite {
		if destColl, err := a.Store.GetCollection(r.Context(), dest); err == nil {
			opts := destColl.Properties[radicaleRightsKey]
			if !a.Config.PermitOverwriteCollection && !rights.AllowsOverwrite(opts, destColl.Tag != storage.TagNone) {
				overwrite = false
			}
		}
	}
	if err := a.Store.MoveCollection(r.Context(), src, dest, overwrite); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func destFromHeader(r *http.Request, base string) string {
	d := r.Header.Get("Destination")
	d = strings.TrimPrefix(d, base)
	return strings.Trim(d, "/")
}

