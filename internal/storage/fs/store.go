package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldavd/caldavd/internal/storage"
	"github.com/caldavd/caldavd/internal/storage/cacheindex"
)

// CacheKeyMode selects how the item cache detects a stale entry.
type CacheKeyMode int

const (
	// CacheKeyHash hashes the payload (SHA-256) on every read, at the
	// cost of a full read; correct even across mtime-losing filesystem
	// moves/restores.
	CacheKeyHash CacheKeyMode = iota
	// CacheKeyMtimeSize trusts (mtime_ns, size), avoiding a re-read; the
	// default, since item files are only ever replaced via this
	// package's own atomic rename.
	CacheKeyMtimeSize
)

// Options configures a Store.
type Options struct {
	Root              string
	CacheRoot         string // optional, relocates .Radicale.cache/{item,history,sync-token}
	CacheKeyMode      CacheKeyMode
	MaxSyncTokenAge   time.Duration
	MaxRecurrence     int
	MaxFreeBusyOccur  int
	Hook              string
	Logger            zerolog.Logger
	// EnableCacheIndex opens the internal/storage/cacheindex accelerator
	// at <cache root>/.Radicale.cache/index.sqlite3. Disabled by default:
	// the index is a pure accelerator, never a source of truth, so a
	// deployment with no need for it can skip the sqlite dependency
	// entirely.
	EnableCacheIndex bool
}

// Store implements storage.Store over a plain directory tree. One
// rootLock protects the whole tree, matching spec.md §4.2's single
// process-wide reader/writer lock; per-collection locks are not needed
// because callers (internal/dav) already serialize through that lock
// before calling into Store.
type Store struct {
	root              string
	cacheRootOverride string
	cacheKeyMode      CacheKeyMode
	maxSyncTokenAge   time.Duration
	maxRecurrence     int
	maxFreeBusyOccur  int
	log               zerolog.Logger
	hook              *hookRunner
	index             *cacheindex.Index

	mu   sync.Mutex
	lock *rootLock
}

var _ storage.Store = (*Store)(nil)

// New opens (creating if absent) the storage root, the root collection's
// property file, and its process-wide lock file.
func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("fs: root must not be empty")
	}
	if err := ensureDir(opts.Root); err != nil {
		return nil, err
	}
	s := &Store{
		root:              opts.Root,
		cacheRootOverride: opts.CacheRoot,
		cacheKeyMode:      opts.CacheKeyMode,
		maxSyncTokenAge:   opts.MaxSyncTokenAge,
		maxRecurrence:     opts.MaxRecurrence,
		maxFreeBusyOccur:  opts.MaxFreeBusyOccur,
		log:               opts.Logger,
	}
	if opts.Hook != "" {
		s.hook = newHookRunner(opts.Hook, opts.Root, opts.Logger)
	}
	if err := ensureDir(s.collDir("")); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.propsPath("")); os.IsNotExist(err) {
		if err := writeJSONAtomic(s.collDir(""), s.propsPath(""), collProps{}, false); err != nil {
			return nil, err
		}
	}
	lk, err := openRootLock(s.lockPath())
	if err != nil {
		return nil, err
	}
	s.lock = lk

	if opts.EnableCacheIndex {
		cacheRoot := s.cacheRoot("")
		if err := ensureDir(cacheRoot); err != nil {
			return nil, err
		}
		idx, err := cacheindex.Open(filepath.Join(cacheRoot, "index.sqlite3"), opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("fs: cacheindex: %w", err)
		}
		s.index = idx
	}
	return s, nil
}

// AcquireShared/AcquireExclusive implement storage.Store's locking
// contract over the process-wide flock-backed rootLock.
func (s *Store) AcquireShared() (func() error, error)    { return s.lock.Shared() }
func (s *Store) AcquireExclusive() (func() error, error) { return s.lock.Exclusive() }

func (s *Store) Close() error {
	if s.hook != nil {
		s.hook.Shutdown()
	}
	if s.index != nil {
		_ = s.index.Close()
	}
	return s.lock.Close()
}
