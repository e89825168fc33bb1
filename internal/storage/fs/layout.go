// Package fs implements storage.Store over a plain directory tree,
// grounded on the teacher's internal/storage/filestore package: one
// directory per collection, JSON property sidecars, and a
// temp-then-rename write pattern generalized from the teacher's
// writeJSON into fsync-then-rename for item payloads.
package fs

import (
	"os"
	"path/filepath"
)

const (
	propsFile  = ".Radicale.props"
	lockFile   = ".Radicale.lock"
	cacheDir   = ".Radicale.cache"
	itemCache  = "item"
	historyDir = "history"
	tokenDir   = "sync-token"
)

// collDir returns the on-disk directory for the collection at path,
// rooted under <root>/collection-root/.
func (s *Store) collDir(path string) string {
	return filepath.Join(s.root, "collection-root", filepath.FromSlash(path))
}

func (s *Store) propsPath(path string) string {
	return filepath.Join(s.collDir(path), propsFile)
}

func (s *Store) itemPath(path, name string) string {
	return filepath.Join(s.collDir(path), name)
}

func (s *Store) cacheRoot(path string) string {
	if s.cacheRootOverride != "" {
		return filepath.Join(s.cacheRootOverride, filepath.FromSlash(path), cacheDir)
	}
	return filepath.Join(s.collDir(path), cacheDir)
}

func (s *Store) itemCachePath(path, name string) string {
	return filepath.Join(s.cacheRoot(path), itemCache, name)
}

func (s *Store) historyDir(path string) string {
	return filepath.Join(s.cacheRoot(path), historyDir)
}

func (s *Store) tokenPath(path, token string) string {
	return filepath.Join(s.cacheRoot(path), tokenDir, token)
}

// lockPath is the single process-wide lock file, rooted directly under
// <root> (not under collection-root), matching spec.md §4.2's layout.
func (s *Store) lockPath() string {
	return filepath.Join(s.root, lockFile)
}

// tmpPath returns a fresh crash-recognizable temp path in the same
// directory as target, so rename stays within one filesystem.
func (s *Store) tmpPath(dir string) string {
	return filepath.Join(dir, ".Radicale.tmp-"+randHex(8))
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
