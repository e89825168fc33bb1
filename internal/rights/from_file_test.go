package rights

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRulesFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rights.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFromFileFirstMatchWins(t *testing.T) {
	path := writeRulesFile(t, `
[owner]
user: ^(.+)$
collection: ^{0}(/.*)?$
permissions: RrWw

[root]
user: ^.*$
collection: ^$
permissions: R
`)
	p, err := New("from_file", map[string]string{"file": path})
	require.NoError(t, err)

	assert.True(t, p.Authorize(Request{User: "alice", Path: "alice/cal", Permission: PermWriteLeaf}))
	assert.False(t, p.Authorize(Request{User: "alice", Path: "bob/cal", Permission: PermReadLeaf}))
}

func TestFromFileUserCaptureSubstitution(t *testing.T) {
	path := writeRulesFile(t, `
[owner]
user: ^([a-z]+)$
collection: ^{0}/.*$
permissions: Rr
`)
	p, err := New("from_file", map[string]string{"file": path})
	require.NoError(t, err)

	assert.True(t, p.Authorize(Request{User: "alice", Path: "alice/cal", Permission: PermReadLeaf}))
	assert.False(t, p.Authorize(Request{User: "alice", Path: "alice/cal", Permission: PermWriteLeaf}))
}

func TestFromFileRequiresFileOption(t *testing.T) {
	_, err := New("from_file", nil)
	assert.Error(t, err)
}

func TestFromFileMissingUserPatternFails(t *testing.T) {
	path := writeRulesFile(t, `
[broken]
collection: ^.*$
permissions: R
`)
	_, err := New("from_file", map[string]string{"file": path})
	assert.Error(t, err)
}
