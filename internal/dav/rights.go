package dav

import (
	"context"

	"github.com/caldavd/caldavd/internal/rights"
	"github.com/caldavd/caldavd/internal/xmlutil"
)

// radicaleRightsKey is the property carrying a collection's own D/d/O/o
// opt-in letters, namespaced under the Radicale-compatible extension set
// (spec.md §4.3's "Additional per-collection opt-ins").
var radicaleRightsKey = xmlutil.Name{Space: xmlutil.NSRadicale, Local: "rights"}

// checkRights applies the configured policy, passing along the target
// collection's D/d/O/o opt-in letters when path is a collection; the
// AllowsDelete/AllowsOverwrite opt-ins themselves are checked by the
// DELETE and MOVE handlers.
func (a *App) checkRights(ctx context.Context, user, path string, perm rights.Permission) bool {
	if a.Rights == nil {
		return false
	}
	opts := ""
	if coll, err := a.Store.GetCollection(ctx, path); err == nil {
		opts = coll.Properties[radicaleRightsKey]
	}
	return a.Rights.Authorize(rights.Request{User: user, Path: path, Permission: perm, CollectionOpts: opts})
}
