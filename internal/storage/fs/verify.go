package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caldavd/caldavd/internal/item/ical"
	"github.com/caldavd/caldavd/internal/item/vcard"
	"github.com/caldavd/caldavd/internal/storage"
)

// Verify walks the whole tree, parses every item, and checks the
// invariants of spec.md §3: leaf collections only hold items whose kind
// matches the collection's tag, UIDs are unique within a collection, and
// no collection has both child collections and items. skipFsync disables
// fsync on any cache rebuild it triggers, per spec.md §4.2's
// "verify-storage... disables fsync to accelerate".
func (s *Store) Verify(ctx context.Context, skipFsync bool) ([]string, error) {
	var issues []string
	root := s.collDir("")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			rel = ""
		}
		rel = filepath.ToSlash(rel)
		if _, statErr := os.Stat(filepath.Join(path, propsFile)); statErr != nil {
			return nil // intermediate/untagged node without a leaf below; fine
		}
		cp, err := s.loadProps(rel)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: unreadable properties: %v", rel, err))
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", rel, err))
			return nil
		}
		hasChildColl, hasItems := false, false
		itemCount := 0
		seenUIDs := map[string]string{}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".Radicale") {
				continue
			}
			if e.IsDir() {
				hasChildColl = true
				continue
			}
			hasItems = true
			itemCount++
			data, rerr := os.ReadFile(filepath.Join(path, e.Name()))
			if rerr != nil {
				issues = append(issues, fmt.Sprintf("%s/%s: %v", rel, e.Name(), rerr))
				continue
			}
			uid, kind, verr := verifyPayload(data)
			if verr != nil {
				issues = append(issues, fmt.Sprintf("%s/%s: %v", rel, e.Name(), verr))
				continue
			}
			if !kindMatchesTag(storage.ComponentKind(kind), storage.Tag(cp.Tag)) {
				issues = append(issues, fmt.Sprintf("%s/%s: kind %s does not match collection tag", rel, e.Name(), kind))
			}
			if other, dup := seenUIDs[uid]; dup {
				issues = append(issues, fmt.Sprintf("%s: duplicate uid %s in %s and %s", rel, uid, other, e.Name()))
			} else {
				seenUIDs[uid] = e.Name()
			}
			if _, err := s.loadOrRebuildCache(rel, e.Name(), data, skipFsync); err != nil {
				issues = append(issues, fmt.Sprintf("%s/%s: cache rebuild failed: %v", rel, e.Name(), err))
			}
		}
		if hasChildColl && hasItems {
			issues = append(issues, fmt.Sprintf("%s: has both child collections and items", rel))
		}
		if s.index != nil && hasItems {
			if n, cerr := s.index.Count(ctx, rel); cerr == nil && n != itemCount {
				issues = append(issues, fmt.Sprintf("%s: cacheindex has %d rows, directory has %d items (stale index, will self-heal on next write)", rel, n, itemCount))
			}
		}
		return nil
	})
	return issues, err
}

func verifyPayload(data []byte) (uid, kind string, err error) {
	if p, perr := ical.Parse(data); perr == nil {
		return p.UID, string(p.Kind), nil
	}
	v, verr := vcard.Parse(data)
	if verr != nil {
		return "", "", verr
	}
	return v.UID, "VCARD", nil
}
