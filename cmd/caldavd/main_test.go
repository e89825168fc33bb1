package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldavd/caldavd/internal/config"
	"github.com/caldavd/caldavd/internal/httpserver"
	"github.com/caldavd/caldavd/internal/storage"
)

func TestFlagValueSpaceSeparated(t *testing.T) {
	v, ok := flagValue([]string{"--export-storage", "/tmp/out"}, "export-storage")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/out", v)
}

func TestFlagValueEqualsSeparated(t *testing.T) {
	v, ok := flagValue([]string{"--export-storage=/tmp/out"}, "export-storage")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/out", v)
}

func TestFlagValueBareSwitch(t *testing.T) {
	v, ok := flagValue([]string{"--verify-storage"}, "verify-storage")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestFlagValueAbsent(t *testing.T) {
	_, ok := flagValue([]string{"--other"}, "verify-storage")
	assert.False(t, ok)
}

func TestFlagValueDoesNotConsumeNextFlagAsValue(t *testing.T) {
	v, ok := flagValue([]string{"--verify-storage", "--debug"}, "verify-storage")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestHasFlag(t *testing.T) {
	assert.True(t, hasFlag([]string{"--debug"}, "debug"))
	assert.False(t, hasFlag([]string{"--other"}, "debug"))
}

func newCollectionStore(t *testing.T) (storage.Store, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.FilesystemFolder = t.TempDir()
	store, err := httpserver.BuildStore(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { closeStore(store) })
	return store, cfg.Storage.FilesystemFolder
}

func TestExportCollectionWritesItemsToDestTree(t *testing.T) {
	store, _ := newCollectionStore(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "alice", storage.TagNone, nil)
	require.NoError(t, err)
	_, err = store.CreateCollection(ctx, "alice/cal", storage.TagCalendar, nil)
	require.NoError(t, err)
	_, err = store.PutItem(ctx, "alice/cal", "e1.ics", []byte(testEventBody), "", false)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, exportCollection(ctx, store, "", dest))

	data, err := os.ReadFile(filepath.Join(dest, "alice", "cal", "e1.ics"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "UID:e1@example.com")
}

func TestRunVerifyReportsCleanTree(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.FilesystemFolder = t.TempDir()
	code := runVerify(cfg, zerolog.Nop())
	assert.Equal(t, exitOK, code)
}

func TestRunVerifyFailsOnUnknownStorageType(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "bogus"
	code := runVerify(cfg, zerolog.Nop())
	assert.Equal(t, exitConfigError, code)
}

func TestRunExportWritesFilesAndReturnsOK(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.FilesystemFolder = t.TempDir()
	dest := t.TempDir()
	code := runExport(cfg, zerolog.Nop(), dest)
	assert.Equal(t, exitOK, code)
}

const testEventBody = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:e1@example.com
DTSTART:20240105T100000Z
DTEND:20240105T110000Z
SUMMARY:Standup
END:VEVENT
END:VCALENDAR
`
