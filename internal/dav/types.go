// Package dav is the protocol engine: a single dispatcher handling every
// method of spec.md §4.6 against a storage.Store, generalized from the
// teacher's router.Router.routeDAVMethod + caldav.Handlers/carddav.Handlers
// split. Because spec.md's collections are generic (tag decides leaf
// kind, not a fixed "caldav vs carddav service"), there is one handler set
// instead of two parallel ones.
package dav

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldavd/caldavd/internal/auth"
	"github.com/caldavd/caldavd/internal/rights"
	"github.com/caldavd/caldavd/internal/storage"
)

// userKey is the context key under which the authenticated principal is
// stored, mirroring the teacher's auth.WithPrincipal/CurrentUser pattern.
type userKey struct{}

func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

// Config holds the operational limits and toggles spec.md §4.1/§4.2/§6
// names.
type Config struct {
	BasePath              string // must start with "/", must not end with "/"
	MaxDepthInfinity       bool
	MaxRecurrenceExpansion int
	MaxFreeBusyOccurrences int
	MaxSyncTokenAge        time.Duration
	MaxContentLength       int64
	XMLMaxDepth            int
	XMLMaxElements         int
	PermitDeleteCollection bool
	PermitOverwriteCollection bool
}

// App is the single HTTP dispatcher for the DAV protocol.
type App struct {
	Store   storage.Store
	Rights  rights.Policy
	AuthPipeline *auth.Pipeline
	Config  Config
	Log     zerolog.Logger
}

func (a *App) basePrefix() string {
	b := a.Config.BasePath
	if b == "" || b[0] != '/' {
		b = "/dav"
	}
	return strings.TrimSuffix(b, "/")
}

// pathFromRequest strips the base prefix and X-Script-Name (reverse-proxy
// integration, spec.md §4.6), returning the storage-relative collection
// path.
func (a *App) pathFromRequest(r *http.Request) string {
	p := r.URL.Path
	if script := r.Header.Get("X-Script-Name"); script != "" {
		p = strings.TrimPrefix(p, script)
	}
	p = strings.TrimPrefix(p, a.basePrefix())
	return strings.Trim(p, "/")
}
