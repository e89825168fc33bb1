// Package cacheindex is an optional, disposable accelerator over
// internal/storage/fs's per-item JSON cache: a small embedded SQLite table
// (uid, etag, component_kind, text_index, time_start/time_end) that lets a
// Store answer "which items are near this time range" without opening
// every cache file, per SPEC_FULL.md's item cache indexing addendum.
//
// Grounded on the teacher's internal/storage/sqlite.Store: same
// database/sql + golang-migrate/v4 + ncruces/go-sqlite3 stack, same
// single-connection WAL pragmas and iofs-embedded migration runner
// (internal/storage/sqlite/sqlite.go), generalized from the teacher's
// calendars/addressbooks/objects tables to one flat items table keyed by
// (collection_path, name) since this project's cache already carries the
// full record shape per item.
//
// The index is disposable: it never holds state the filesystem store
// doesn't also have. Open creates and migrates a missing file but does
// not repopulate it from disk; rows are added only as items are written.
package cacheindex

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Record is one item's indexed fields, mirroring the teacher's
// internal/storage/fs itemCacheEntry shape closely enough to be built
// straight from it.
type Record struct {
	CollectionPath string
	Name           string
	UID            string
	ETag           string
	ComponentKind  string
	TextIndex      string
	TimeStart      *time.Time
	TimeEnd        *time.Time
}

// Index wraps the embedded SQLite database.
type Index struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating and migrating if absent) the index database at
// path.
func Open(path string, logger zerolog.Logger) (*Index, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("cacheindex: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(path, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db, logger: logger}, nil
}

func configurePragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("cacheindex: %s: %w", pragma, err)
		}
	}
	return nil
}

func runMigrations(path string, logger zerolog.Logger) error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return fmt.Errorf("cacheindex: open for migration: %w", err)
	}
	defer db.Close()

	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("cacheindex: migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("cacheindex: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("cacheindex: migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("cacheindex: migrate up: %w", err)
	}
	logger.Debug().Str("path", path).Msg("cacheindex migrated")
	return nil
}

// Upsert records or replaces one item's indexed fields.
func (idx *Index) Upsert(ctx context.Context, r Record) error {
	var start, end *int64
	if r.TimeStart != nil {
		v := r.TimeStart.UnixNano()
		start = &v
	}
	if r.TimeEnd != nil {
		v := r.TimeEnd.UnixNano()
		end = &v
	}
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO items (collection_path, name, uid, etag, component_kind, text_index, time_start, time_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_path, name) DO UPDATE SET
			uid = excluded.uid,
			etag = excluded.etag,
			component_kind = excluded.component_kind,
			text_index = excluded.text_index,
			time_start = excluded.time_start,
			time_end = excluded.time_end
	`, r.CollectionPath, r.Name, r.UID, r.ETag, r.ComponentKind, r.TextIndex, start, end)
	return err
}

// Delete removes one item's index row.
func (idx *Index) Delete(ctx context.Context, collectionPath, name string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM items WHERE collection_path = ? AND name = ?`, collectionPath, name)
	return err
}

// DeleteCollection removes every row under collectionPath, for a
// recursive DeleteCollection/MoveCollection.
func (idx *Index) DeleteCollection(ctx context.Context, collectionPath string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM items WHERE collection_path = ? OR (collection_path >= ? AND collection_path < ?)`,
		collectionPath, collectionPath+"/", collectionPath+"0")
	return err
}

// Count returns how many rows are indexed under collectionPath, used by
// Store.Verify as a cheap cross-check against the directory listing.
func (idx *Index) Count(ctx context.Context, collectionPath string) (int, error) {
	var n int
	err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE collection_path = ?`, collectionPath).Scan(&n)
	return n, err
}

// QueryTimeRange returns the names of items under collectionPath whose
// indexed [time_start, time_end) overlaps [start, end), or every name with
// a NULL time range (the index was never given bounds for the component,
// e.g. VTODOs without DTSTART/DUE — these must fall through to the exact
// matcher rather than be silently dropped).
func (idx *Index) QueryTimeRange(ctx context.Context, collectionPath string, start, end time.Time) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT name FROM items
		WHERE collection_path = ?
		  AND (time_start IS NULL OR time_end IS NULL OR (time_start < ? AND time_end > ?))
	`, collectionPath, end.UnixNano(), start.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SearchText returns item names under collectionPath whose text_index
// contains needle (case-insensitive substring), a coarse pre-filter ahead
// of the exact TextMatch evaluation in internal/item/filter.
func (idx *Index) SearchText(ctx context.Context, collectionPath, needle string) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT name FROM items
		WHERE collection_path = ? AND text_index LIKE '%' || ? || '%' COLLATE NOCASE
	`, collectionPath, needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
