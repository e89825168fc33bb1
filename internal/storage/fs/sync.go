package fs

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/caldavd/caldavd/internal/storage"
)

// advanceSyncHistory issues a new sync-token after a write or delete:
// it appends a history record for name, snapshots the collection's
// current (name, etag) set under the new token, and updates
// .Radicale.props with the new token (spec.md §4.2's "Sync tokens"
// section). A random 128-bit token matches the spec's wording exactly;
// google/uuid gives that without hand-rolling crypto/rand plus encoding.
func (s *Store) advanceSyncHistory(p, name, etag string, removed bool) error {
	cp, err := s.loadProps(p)
	if err != nil {
		return err
	}
	token := uuid.NewString()

	rec := historyRecord{Token: token, ETag: etag, Removed: removed}
	if err := writeJSONAtomic(s.historyDir(p)+"/"+name, s.historyDir(p)+"/"+name+"/"+token, rec, false); err != nil {
		return err
	}

	items, err := s.listItemsRaw(p)
	if err != nil {
		return err
	}
	snap := make([]syncSnapshotEntry, 0, len(items))
	for _, it := range items {
		snap = append(snap, syncSnapshotEntry{Name: it.Name, ETag: it.ETag})
	}
	if err := writeJSONAtomic(s.cacheRoot(p)+"/"+tokenDir, s.tokenPath(p, token), snap, false); err != nil {
		return err
	}

	cp.SyncSeq++
	cp.SyncToken = token
	return writeJSONAtomic(s.collDir(p), s.propsPath(p), *cp, false)
}

// listItemsRaw lists the items of p with a background context, for the
// snapshot written on every mutation; it is a plain ListItems call.
func (s *Store) listItemsRaw(p string) ([]*storage.Item, error) {
	return s.ListItems(context.Background(), p)
}

func (s *Store) readSnapshot(p, token string) ([]syncSnapshotEntry, error) {
	var snap []syncSnapshotEntry
	path := s.tokenPath(p, token)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, storage.ErrSyncTokenExpired
	}
	if age := time.Since(fi.ModTime()); s.maxSyncTokenAge > 0 && age > s.maxSyncTokenAge {
		return nil, storage.ErrSyncTokenExpired
	}
	if err := readJSON(path, &snap); err != nil {
		return nil, storage.ErrSyncTokenExpired
	}
	return snap, nil
}

// Sync diffs clientToken's snapshot against the collection's current
// state. An empty clientToken means "everything is new" (initial sync),
// per spec.md §4.2.
func (s *Store) Sync(ctx context.Context, p string, clientToken string, maxTokenAge time.Duration) (*storage.SyncDiff, error) {
	p = clean(p)
	cp, err := s.loadProps(p)
	if err != nil {
		return nil, err
	}
	current, err := s.listItemsRaw(p)
	if err != nil {
		return nil, err
	}
	currentByName := make(map[string]string, len(current))
	for _, it := range current {
		currentByName[it.Name] = it.ETag
	}

	var old map[string]string
	if clientToken != "" {
		snap, err := s.readSnapshot(p, clientToken)
		if err != nil {
			return nil, err
		}
		old = make(map[string]string, len(snap))
		for _, e := range snap {
			old[e.Name] = e.ETag
		}
	}

	var changes []storage.Change
	for name, etag := range currentByName {
		if oldEtag, ok := old[name]; !ok || oldEtag != etag {
			changes = append(changes, storage.Change{Name: name, ETag: etag})
		}
	}
	for name := range old {
		if _, ok := currentByName[name]; !ok {
			changes = append(changes, storage.Change{Name: name, Removed: true})
		}
	}

	newToken := cp.SyncToken
	if newToken == "" || clientToken == newToken {
		// No mutation happened since the last issued token; still hand
		// back a usable token for the next round.
		newToken = cp.SyncToken
	}
	return &storage.SyncDiff{Changes: changes, NewToken: newToken}, nil
}
