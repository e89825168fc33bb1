// Package storage defines the collection/item domain model and the Store
// contract that every backend (internal/storage/fs, and its
// internal/storage/cacheindex accelerator) implements. The shapes are
// grounded on the teacher's internal/storage.Store, generalized from the
// teacher's fixed Calendar/Object/Addressbook/Contact split to a single
// tagged Collection/Item pair, since spec.md §3 models both kinds of leaf
// collection uniformly.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/caldavd/caldavd/internal/item/filter"
	"github.com/caldavd/caldavd/internal/xmlutil"
)

// Tag identifies what kind of leaf (if any) a collection is.
type Tag int

const (
	TagNone Tag = iota
	TagCalendar
	TagAddressBook
)

// ComponentKind is the kind of object an Item's payload holds.
type ComponentKind string

const (
	KindEvent      ComponentKind = "VEVENT"
	KindTodo       ComponentKind = "VTODO"
	KindJournal    ComponentKind = "VJOURNAL"
	KindCard       ComponentKind = "VCARD"
	KindCollection ComponentKind = "" // collections have no component kind
)

var (
	ErrNotFound        = errors.New("storage: not found")
	ErrAlreadyExists   = errors.New("storage: already exists")
	ErrEtagMismatch    = errors.New("storage: etag precondition failed")
	ErrNotLeaf         = errors.New("storage: not a leaf collection")
	ErrNotEmpty        = errors.New("storage: collection not empty")
	ErrKindMismatch    = errors.New("storage: component kind does not match collection tag")
	ErrDuplicateUID    = errors.New("storage: duplicate uid within collection")
	ErrSyncTokenExpired = errors.New("storage: sync-token evicted")
	ErrTooManyResults  = errors.New("storage: result set exceeds configured limit")
)

// Collection is a node in the tree rooted at "/".
type Collection struct {
	Path       string // slash-separated, no leading/trailing slash; "" is root
	Tag        Tag
	Properties map[xmlutil.Name]string
	ETag       string
	SyncToken  string
}

// Item is a single VEVENT/VTODO/VJOURNAL/VCARD stored in exactly one leaf
// collection. Recurrence overrides of the same UID live inside Payload as
// additional components, not as separate Items.
type Item struct {
	Name          string
	UID           string
	Kind          ComponentKind
	Payload       []byte
	ETag          string
	LastModified  time.Time
}

// Change describes one entry of a sync-collection diff.
type Change struct {
	Name     string
	ETag     string // empty when Removed
	Removed  bool
}

// SyncDiff is the result of comparing a client sync-token against the
// collection's current state.
type SyncDiff struct {
	Changes  []Change
	NewToken string
}

// Store is the storage-layer contract. Every method that mutates or lists
// state is expected to run under the caller's already-held process-wide
// lock (internal/dav acquires it for each request, per spec.md §5); Store
// implementations do not re-acquire it internally.
type Store interface {
	// GetCollection returns the collection at path, or ErrNotFound.
	GetCollection(ctx context.Context, path string) (*Collection, error)
	// ListChildren lists the immediate child collection paths of path.
	ListChildren(ctx context.Context, path string) ([]string, error)
	// CreateCollection creates path with the given tag and properties.
	// Fails with ErrNotFound if the parent is missing, ErrAlreadyExists if
	// path exists, ErrNotLeaf if the parent is itself a leaf.
	CreateCollection(ctx context.Context, path string, tag Tag, props map[xmlutil.Name]string) (*Collection, error)
	// PatchCollectionProps applies sets, then deletes the names listed in
	// removes, writes the result in one property-file update, and returns
	// the updated collection.
	PatchCollectionProps(ctx context.Context, path string, sets map[xmlutil.Name]string, removes []xmlutil.Name) (*Collection, error)
	// DeleteCollection removes path and everything beneath it.
	DeleteCollection(ctx context.Context, path string) error
	// MoveCollection renames path to dest. overwrite controls whether an
	// existing dest is replaced (exchange where supported) or rejected.
	MoveCollection(ctx context.Context, path, dest string, overwrite bool) error

	// GetItem returns item name within collection path.
	GetItem(ctx context.Context, path, name string) (*Item, error)
	// ListItems returns every item in the leaf collection at path.
	ListItems(ctx context.Context, path string) ([]*Item, error)
	// PutItem writes payload as item name within collection path,
	// enforcing the etag precondition ifMatch (empty = no precondition)
	// and ifNoneMatchStar (true = item must not already exist). Returns
	// the stored Item with its computed UID/ETag.
	PutItem(ctx context.Context, path, name string, payload []byte, ifMatch string, ifNoneMatchStar bool) (*Item, error)
	// DeleteItem removes item name, enforcing ifMatch if non-empty.
	DeleteItem(ctx context.Context, path, name, ifMatch string) error

	// QueryItems evaluates a comp-filter (calendars) returning items that
	// match, expanding recurrences against the optional time-range nodes
	// in cf using maxOccurrences as the expansion cap.
	QueryItems(ctx context.Context, path string, cf *filter.CompFilter, maxOccurrences int) ([]*Item, error)
	// QueryCards evaluates a flat prop-filter list (address books).
	QueryCards(ctx context.Context, path string, pfs []filter.PropFilter, test string) ([]*Item, error)

	// Sync computes the diff between clientToken (empty = full listing)
	// and the collection's current state.
	Sync(ctx context.Context, path string, clientToken string, maxTokenAge time.Duration) (*SyncDiff, error)

	// Verify walks the entire tree, parsing every item and checking the
	// invariants of spec.md §3, returning the issues it finds. skipFsync
	// disables fsync while doing so (verify-storage mode).
	Verify(ctx context.Context, skipFsync bool) ([]string, error)

	// AcquireShared/AcquireExclusive implement the single process-wide
	// reader/writer lock of spec.md §4.2/§5. internal/dav acquires one of
	// them once per request before dispatch and releases it via the
	// returned unlock func, deferred immediately; a request whose user has
	// no principal collection yet first takes the exclusive lock briefly
	// to create it.
	AcquireShared() (unlock func() error, err error)
	AcquireExclusive() (unlock func() error, err error)
}
