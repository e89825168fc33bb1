package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caldavd/caldavd/internal/storage"
	"github.com/caldavd/caldavd/internal/xmlutil"
)

func propKey(n xmlutil.Name) string { return "{" + n.Space + "}" + n.Local }

func parsePropKey(k string) xmlutil.Name {
	if strings.HasPrefix(k, "{") {
		if i := strings.Index(k, "}"); i >= 0 {
			return xmlutil.Name{Space: k[1:i], Local: k[i+1:]}
		}
	}
	return xmlutil.Name{Local: k}
}

func (s *Store) loadProps(p string) (*collProps, error) {
	var cp collProps
	if err := readJSON(s.propsPath(p), &cp); err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &cp, nil
}

func (s *Store) GetCollection(ctx context.Context, p string) (*storage.Collection, error) {
	p = clean(p)
	cp, err := s.loadProps(p)
	if err != nil {
		return nil, err
	}
	items, _ := s.ListItems(ctx, p)
	return s.toCollection(p, cp, items), nil
}

func (s *Store) toCollection(p string, cp *collProps, items []*storage.Item) *storage.Collection {
	props := make(map[xmlutil.Name]string, len(cp.Properties))
	for k, v := range cp.Properties {
		props[parsePropKey(k)] = v
	}
	etag := computeCollectionETag(cp.Properties, items)
	return &storage.Collection{
		Path:       p,
		Tag:        storage.Tag(cp.Tag),
		Properties: props,
		ETag:       etag,
		SyncToken:  cp.SyncToken,
	}
}

// computeCollectionETag hashes the ordered set of (name, etag) pairs plus
// a digest of the property map, so it changes iff children or properties
// change, matching spec.md §3's definition exactly.
func computeCollectionETag(props map[string]string, items []*storage.Item) string {
	h := sha256.New()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "p:%s=%s;", k, props[k])
	}
	names := make([]string, len(items))
	byName := make(map[string]*storage.Item, len(items))
	for i, it := range items {
		names[i] = it.Name
		byName[it.Name] = it
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(h, "i:%s=%s;", n, byName[n].ETag)
	}
	return `"` + hex.EncodeToString(h.Sum(nil))[:32] + `"`
}

func (s *Store) ListChildren(ctx context.Context, p string) ([]string, error) {
	p = clean(p)
	dir := s.collDir(p)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".Radicale") {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), propsFile)); err != nil {
			continue
		}
		out = append(out, path.Join(p, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateCollection(ctx context.Context, p string, tag storage.Tag, props map[xmlutil.Name]string) (*storage.Collection, error) {
	p = clean(p)
	if p != "" {
		parent := path.Dir(p)
		if parent == "." {
			parent = ""
		}
		pc, err := s.loadProps(parent)
		if err != nil {
			return nil, storage.ErrNotFound
		}
		if storage.Tag(pc.Tag) != storage.TagNone {
			return nil, storage.ErrNotLeaf
		}
	}
	if _, err := s.loadProps(p); err == nil {
		return nil, storage.ErrAlreadyExists
	}
	ser := make(map[string]string, len(props))
	for k, v := range props {
		ser[propKey(k)] = v
	}
	cp := collProps{Tag: int(tag), Properties: ser}
	dir := s.collDir(p)
	if err := writeJSONAtomic(dir, s.propsPath(p), cp, false); err != nil {
		return nil, err
	}
	return s.toCollection(p, &cp, nil), nil
}

func (s *Store) PatchCollectionProps(ctx context.Context, p string, sets map[xmlutil.Name]string, removes []xmlutil.Name) (*storage.Collection, error) {
	p = clean(p)
	cp, err := s.loadProps(p)
	if err != nil {
		return nil, err
	}
	if cp.Properties == nil {
		cp.Properties = map[string]string{}
	}
	for k, v := range sets {
		cp.Properties[propKey(k)] = v
	}
	for _, k := range removes {
		delete(cp.Properties, propKey(k))
	}
	if err := writeJSONAtomic(s.collDir(p), s.propsPath(p), *cp, false); err != nil {
		return nil, err
	}
	items, _ := s.ListItems(ctx, p)
	return s.toCollection(p, cp, items), nil
}

func (s *Store) DeleteCollection(ctx context.Context, p string) error {
	p = clean(p)
	if p == "" {
		return fmt.Errorf("fs: refusing to delete storage root")
	}
	parentDir := filepath.Dir(s.collDir(p))
	if err := removeCrashSafe(parentDir, s.collDir(p)); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteCollection(ctx, p); err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("cacheindex delete-collection failed")
		}
	}
	return nil
}

func (s *Store) MoveCollection(ctx context.Context, p, dest string, overwrite bool) error {
	p, dest = clean(p), clean(dest)
	src := s.collDir(p)
	dst := s.collDir(dest)
	if _, err := os.Stat(dst); err == nil {
		if !overwrite {
			return storage.ErrAlreadyExists
		}
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}
	if err := ensureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteCollection(ctx, p); err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("cacheindex delete-collection failed")
		}
	}
	return nil
}

func clean(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}
