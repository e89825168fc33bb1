package dav

import (
	"errors"
	"net/http"

	"github.com/caldavd/caldavd/internal/item/ical"
	"github.com/caldavd/caldavd/internal/item/vcard"
	"github.com/caldavd/caldavd/internal/storage"
)

// errDenied is returned by the rights check, distinct from storage.ErrNotFound
// so the caller can choose between 403 and 404 per spec.md §7.
var errDenied = errors.New("dav: access denied")

// errUnsupportedReport signals a REPORT body naming a report this
// collection does not advertise.
var errUnsupportedReport = errors.New("dav: unsupported report")

// errTooLarge is the request-body size guard of spec.md §4.5.
var (
	errTooLarge = errors.New("dav: request body exceeds max_content_length")
)

// toStatus maps an error from the storage/item layers onto the HTTP
// status spec.md §7 names. This centralizes what the teacher scatters as
// individual http.Error calls across methods.go/reports.go.
func toStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errDenied):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrEtagMismatch):
		return http.StatusPreconditionFailed
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotLeaf), errors.Is(err, storage.ErrNotEmpty):
		return http.StatusConflict
	case errors.Is(err, storage.ErrKindMismatch), errors.Is(err, storage.ErrDuplicateUID):
		return http.StatusBadRequest
	case errors.Is(err, ical.ErrInvalidItem), errors.Is(err, vcard.ErrInvalidItem), errors.Is(err, ical.ErrDuplicateUID):
		return http.StatusBadRequest
	case errors.Is(err, ical.ErrTooManyOccurrences):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrTooManyResults):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrSyncTokenExpired):
		return http.StatusForbidden
	case errors.Is(err, errUnsupportedReport):
		return http.StatusForbidden
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ical.ErrTooManyOccurrences) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>` +
			`<D:error xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav"><C:max-resource-size/></D:error>`))
		return
	}
	http.Error(w, err.Error(), toStatus(err))
}
