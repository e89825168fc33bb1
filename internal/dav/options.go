package dav

import "net/http"

func (a *App) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DAV", davCapabilities)
	w.Header().Set("Allow", "OPTIONS, GET, HEAD, PUT, DELETE, MKCOL, MKCALENDAR, PROPFIND, PROPPATCH, REPORT, MOVE")
	w.WriteHeader(http.StatusOK)
}
