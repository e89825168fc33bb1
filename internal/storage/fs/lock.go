package fs

import (
	"os"

	"golang.org/x/sys/unix"
)

// rootLock is the single process-wide reader/writer lock of spec.md §4.2,
// backed by a real advisory flock(2) on .Radicale.lock rather than the
// teacher's in-process channel stub (internal/storage/filestore/helpers.go's
// withCalLock): a channel only serializes goroutines inside one process,
// which breaks as soon as --verify-storage or --export-storage run as a
// separate process against the same root while the server is live.
type rootLock struct {
	f *os.File
}

func openRootLock(path string) (*rootLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &rootLock{f: f}, nil
}

func (l *rootLock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}

// Shared acquires the lock for read-only operations (GET, HEAD, PROPFIND,
// REPORT, OPTIONS).
func (l *rootLock) Shared() (unlock func() error, err error) {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_SH); err != nil {
		return nil, err
	}
	return func() error { return unix.Flock(int(l.f.Fd()), unix.LOCK_UN) }, nil
}

// Exclusive acquires the lock for mutating operations (PUT, DELETE,
// MKCOL, MKCALENDAR, MOVE, PROPPATCH, and storage-hook execution).
func (l *rootLock) Exclusive() (unlock func() error, err error) {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX); err != nil {
		return nil, err
	}
	return func() error { return unix.Flock(int(l.f.Fd()), unix.LOCK_UN) }, nil
}
