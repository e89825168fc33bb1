package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"0.0.0.0:5232"}, cfg.Server.Hosts)
	assert.Equal(t, "/dav", cfg.Server.BasePath)
	assert.Equal(t, "none", cfg.Auth.Type)
	assert.Equal(t, "owner_only", cfg.Rights.Type)
	assert.Equal(t, "multifilesystem", cfg.Storage.Type)
	assert.Equal(t, 10000, cfg.Storage.MaxRecurrenceExpansion)
	assert.True(t, cfg.Storage.FilesystemFsync)
	assert.True(t, cfg.Rights.PermitDeleteCollection)
	assert.False(t, cfg.Rights.PermitOverwriteCollection)
}

func TestDefaultReadsEnvOverrides(t *testing.T) {
	t.Setenv("CALDAVD_SERVER_BASE_PATH", "/caldav")
	t.Setenv("CALDAVD_STORAGE_MAX_RECURRENCE_EXPANSION", "500")
	t.Setenv("CALDAVD_STORAGE_FILESYSTEM_FSYNC", "false")

	cfg := Default()
	assert.Equal(t, "/caldav", cfg.Server.BasePath)
	assert.Equal(t, 500, cfg.Storage.MaxRecurrenceExpansion)
	assert.False(t, cfg.Storage.FilesystemFsync)
}

func TestLoadAppliesCLIFlagOverrides(t *testing.T) {
	cfg, err := Load([]string{"--server-base-path", "/x", "--auth-type", "htpasswd", "--rights-permit-delete-collection=false"})
	require.NoError(t, err)
	assert.Equal(t, "/x", cfg.Server.BasePath)
	assert.Equal(t, "htpasswd", cfg.Auth.Type)
	assert.False(t, cfg.Rights.PermitDeleteCollection)
}

func TestLoadAppliesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caldavd.ini")
	contents := "[server]\nbase-path = /fromfile\n\n[storage]\nmax-recurrence-expansion = 42\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "/fromfile", cfg.Server.BasePath)
	assert.Equal(t, 42, cfg.Storage.MaxRecurrenceExpansion)
}

func TestLoadConfigFileThenCLIFlagsBothApplyCLILast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caldavd.ini")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nbase-path = /fromfile\n"), 0o644))

	cfg, err := Load([]string{"--config", path, "--server-base-path", "/fromflag"})
	require.NoError(t, err)
	assert.Equal(t, "/fromflag", cfg.Server.BasePath)
}

func TestLoadOptionalConfigFileMissingIsIgnored(t *testing.T) {
	cfg, err := Load([]string{"--config", "?/does/not/exist.ini"})
	require.NoError(t, err)
	assert.Equal(t, Default().Server.BasePath, cfg.Server.BasePath)
}

func TestLoadRequiredConfigFileMissingErrors(t *testing.T) {
	_, err := Load([]string{"--config", "/does/not/exist.ini"})
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--bogus-flag", "value"})
	assert.Error(t, err)
}

func TestLoadRejectsInvalidIntegerValue(t *testing.T) {
	_, err := Load([]string{"--server-max-connections", "notanumber"})
	assert.Error(t, err)
}

func TestLoadParsesHeaderOverridesByPrefix(t *testing.T) {
	cfg, err := Load([]string{"--headers-X-Custom", "value"})
	require.NoError(t, err)
	assert.Equal(t, "value", cfg.Headers["X-Custom"])
}

func TestLoadBooleanSwitchesDoNotConsumeFollowingArg(t *testing.T) {
	cfg, err := Load([]string{"--debug", "--server-base-path", "/after"})
	require.NoError(t, err)
	assert.Equal(t, "/after", cfg.Server.BasePath)
}

func TestLoadMultipleConfigPathsSeparatedByColon(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.ini")
	p2 := filepath.Join(dir, "b.ini")
	require.NoError(t, os.WriteFile(p1, []byte("[server]\nbase-path = /a\n"), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte("[storage]\nmax-recurrence-expansion = 7\n"), 0o644))

	cfg, err := Load([]string{"--config", p1 + ":" + p2})
	require.NoError(t, err)
	assert.Equal(t, "/a", cfg.Server.BasePath)
	assert.Equal(t, 7, cfg.Storage.MaxRecurrenceExpansion)
}

func TestSetDurationParsesGoDurationSyntax(t *testing.T) {
	var d time.Duration
	require.NoError(t, setDuration(&d, "90s"))
	assert.Equal(t, 90*time.Second, d)
	assert.Error(t, setDuration(&d, "not-a-duration"))
}
