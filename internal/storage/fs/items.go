package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caldavd/caldavd/internal/item/ical"
	"github.com/caldavd/caldavd/internal/item/vcard"
	"github.com/caldavd/caldavd/internal/storage"
	"github.com/caldavd/caldavd/internal/storage/cacheindex"
)

func (s *Store) GetItem(ctx context.Context, p, name string) (*storage.Item, error) {
	p = clean(p)
	data, err := os.ReadFile(s.itemPath(p, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	entry, err := s.loadOrRebuildCache(p, name, data, false)
	if err != nil {
		return nil, err
	}
	fi, _ := os.Stat(s.itemPath(p, name))
	var mtime time.Time
	if fi != nil {
		mtime = fi.ModTime()
	}
	return &storage.Item{
		Name:         name,
		UID:          entry.UID,
		Kind:         storage.ComponentKind(entry.Kind),
		Payload:      data,
		ETag:         entry.ETag,
		LastModified: mtime,
	}, nil
}

func (s *Store) ListItems(ctx context.Context, p string) ([]*storage.Item, error) {
	p = clean(p)
	dir := s.collDir(p)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var out []*storage.Item
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".Radicale") {
			continue
		}
		it, err := s.GetItem(ctx, p, e.Name())
		if err != nil {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// computeCacheKey returns the identity used to detect a stale cache entry,
// per the configured CacheKeyMode (spec.md §4.2: "Lookup key is either the
// SHA-256 of the payload or (mtime_ns, size) depending on configuration").
func (s *Store) computeCacheKey(data []byte, fi os.FileInfo) (hash string, modNS, size int64) {
	if s.cacheKeyMode == CacheKeyHash {
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), 0, 0
	}
	if fi != nil {
		return "", fi.ModTime().UnixNano(), fi.Size()
	}
	return "", 0, int64(len(data))
}

func (s *Store) loadOrRebuildCache(p, name string, data []byte, skipFsync bool) (*itemCacheEntry, error) {
	fi, _ := os.Stat(s.itemPath(p, name))
	hash, modNS, size := s.computeCacheKey(data, fi)

	var entry itemCacheEntry
	if err := readJSON(s.itemCachePath(p, name), &entry); err == nil {
		stale := false
		if s.cacheKeyMode == CacheKeyHash {
			stale = entry.Hash != hash
		} else {
			stale = entry.ModTimeNS != modNS || entry.Size != size
		}
		if !stale {
			return &entry, nil
		}
	}
	// Cache missing, unreadable, or stale: rebuild transparently (spec.md
	// §4.2: "When cache is unreadable it is transparently rebuilt").
	return s.rebuildCache(p, name, data, hash, modNS, size, skipFsync)
}

func (s *Store) rebuildCache(p, name string, data []byte, hash string, modNS, size int64, skipFsync bool) (*itemCacheEntry, error) {
	etag, uid, kind, textIdx, start, end, err := indexPayload(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrKindMismatch, err)
	}
	entry := &itemCacheEntry{
		ETag:      etag,
		UID:       uid,
		Kind:      kind,
		TextIndex: textIdx,
		TimeStart: start,
		TimeEnd:   end,
		ModTimeNS: modNS,
		Size:      size,
		Hash:      hash,
	}
	_ = writeJSONAtomic(s.cacheRoot(p)+"/"+itemCache, s.itemCachePath(p, name), entry, skipFsync)
	return entry, nil
}

// indexPayload parses data as either iCalendar or vCard (whichever
// decodes) and derives the cache fields spec.md §4.2 names.
func indexPayload(data []byte) (etag, uid, kind, textIndex string, start, end *time.Time, err error) {
	if p, perr := ical.Parse(data); perr == nil {
		s, e := ical.Bounds(p)
		canon, cerr := ical.Canonicalize(p.Cal, ical.ProdID("caldavd", "caldavd", "1.0", "EN"))
		if cerr != nil {
			return "", "", "", "", nil, nil, cerr
		}
		sum := sha256.Sum256(canon)
		return `"` + hex.EncodeToString(sum[:16]) + `"`, p.UID, string(p.Kind), p.UID, s, e, nil
	}
	v, verr := vcard.Parse(data)
	if verr != nil {
		return "", "", "", "", nil, nil, verr
	}
	canon, cerr := vcard.Canonicalize(v.Card)
	if cerr != nil {
		return "", "", "", "", nil, nil, cerr
	}
	sum := sha256.Sum256(canon)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, v.UID, "VCARD", v.UID, nil, nil, nil
}

func (s *Store) PutItem(ctx context.Context, p, name string, payload []byte, ifMatch string, ifNoneMatchStar bool) (*storage.Item, error) {
	p = clean(p)
	cp, err := s.loadProps(p)
	if err != nil {
		return nil, err
	}
	existing, existErr := s.GetItem(ctx, p, name)
	exists := existErr == nil
	if ifNoneMatchStar && exists {
		return nil, storage.ErrAlreadyExists
	}
	if ifMatch != "" {
		if !exists {
			return nil, storage.ErrNotFound
		}
		if existing.ETag != ifMatch {
			return nil, storage.ErrEtagMismatch
		}
	}

	etag, uid, kind, textIdx, start, end, err := indexPayload(payload)
	if err != nil {
		return nil, err
	}
	if !kindMatchesTag(storage.ComponentKind(kind), storage.Tag(cp.Tag)) {
		return nil, storage.ErrKindMismatch
	}
	if dup, derr := s.uidUsedByAnother(ctx, p, name, uid); derr == nil && dup {
		return nil, storage.ErrDuplicateUID
	}

	if err := writeFileAtomic(s.collDir(p), s.itemPath(p, name), payload, false); err != nil {
		return nil, err
	}
	fi, _ := os.Stat(s.itemPath(p, name))
	hash, modNS, size := s.computeCacheKey(payload, fi)
	entry := &itemCacheEntry{ETag: etag, UID: uid, Kind: kind, TextIndex: textIdx, TimeStart: start, TimeEnd: end, ModTimeNS: modNS, Size: size, Hash: hash}
	if err := writeJSONAtomic(s.cacheRoot(p)+"/"+itemCache, s.itemCachePath(p, name), entry, false); err != nil {
		return nil, err
	}
	if err := s.advanceSyncHistory(p, name, etag, false); err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := s.index.Upsert(ctx, cacheindex.Record{
			CollectionPath: p, Name: name, UID: uid, ETag: etag,
			ComponentKind: kind, TextIndex: textIdx, TimeStart: start, TimeEnd: end,
		}); err != nil {
			s.log.Warn().Err(err).Str("path", p).Str("name", name).Msg("cacheindex upsert failed")
		}
	}
	if s.hook != nil {
		s.hook.Run(ctx, "PUT", p)
	}

	var mtime time.Time
	if fi != nil {
		mtime = fi.ModTime()
	}
	return &storage.Item{Name: name, UID: uid, Kind: storage.ComponentKind(kind), Payload: payload, ETag: etag, LastModified: mtime}, nil
}

func kindMatchesTag(k storage.ComponentKind, tag storage.Tag) bool {
	switch tag {
	case storage.TagCalendar:
		return k == storage.KindEvent || k == storage.KindTodo || k == storage.KindJournal
	case storage.TagAddressBook:
		return k == storage.KindCard
	default:
		return false
	}
}

func (s *Store) uidUsedByAnother(ctx context.Context, p, name, uid string) (bool, error) {
	items, err := s.ListItems(ctx, p)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.Name != name && it.UID == uid {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteItem(ctx context.Context, p, name, ifMatch string) error {
	p = clean(p)
	if ifMatch != "" {
		existing, err := s.GetItem(ctx, p, name)
		if err != nil {
			return err
		}
		if existing.ETag != ifMatch {
			return storage.ErrEtagMismatch
		}
	}
	if err := removeCrashSafe(s.collDir(p), s.itemPath(p, name)); err != nil {
		return err
	}
	_ = os.Remove(s.itemCachePath(p, name))
	if err := s.advanceSyncHistory(p, name, "", true); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, p, name); err != nil {
			s.log.Warn().Err(err).Str("path", p).Str("name", name).Msg("cacheindex delete failed")
		}
	}
	if s.hook != nil {
		s.hook.Run(ctx, "DELETE", p)
	}
	return nil
}
