package dav

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// authenticate extracts Basic or Bearer credentials and runs them
// through the configured auth pipeline, grounded on the teacher's
// router.Router.authenticate (which prefers Bearer when present, else
// Basic).
func (a *App) authenticate(r *http.Request) (string, bool) {
	if a.AuthPipeline == nil {
		return "", false
	}
	authz := r.Header.Get("Authorization")
	source := realIP(r)

	lower := strings.ToLower(authz)
	switch {
	case strings.HasPrefix(lower, "bearer "):
		token := strings.TrimSpace(authz[len("Bearer "):])
		return a.AuthPipeline.Authenticate(source, "", token)
	case strings.HasPrefix(lower, "basic "):
		user, pass, ok := decodeBasic(authz)
		if !ok {
			return "", false
		}
		return a.AuthPipeline.Authenticate(source, user, pass)
	default:
		return "", false
	}
}

func decodeBasic(header string) (user, pass string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len("Basic "):]))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
