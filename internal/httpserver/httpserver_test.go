package httpserver

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldavd/caldavd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.FilesystemFolder = t.TempDir()
	cfg.Server.Hosts = []string{"127.0.0.1:0"}
	return cfg
}

func TestNewServerBuildsFromDefaultConfig(t *testing.T) {
	cfg := testConfig(t)
	srv, cleanup, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()
	require.Len(t, srv.servers, 1)
	assert.Equal(t, "127.0.0.1:0", srv.servers[0].Addr)
	assert.Nil(t, srv.servers[0].TLSConfig)
}

func TestNewServerRejectsUnknownStorageType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "bogus"
	_, _, err := NewServer(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewServerRejectsUnknownRightsType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rights.Type = "bogus"
	_, _, err := NewServer(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewServerRejectsUnknownAuthType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Type = "bogus"
	_, _, err := NewServer(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewServerSSLWithMissingCertificateFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.SSL = true
	cfg.Server.Certificate = "/does/not/exist.pem"
	cfg.Server.Key = "/does/not/exist.key"
	_, _, err := NewServer(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewServerMultipleHostsProduceMultipleListeners(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Hosts = []string{"127.0.0.1:0", "[::1]:0"}
	srv, cleanup, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()
	assert.Len(t, srv.servers, 2)
}

func TestBuildStoreCreatesFilesystemRoot(t *testing.T) {
	cfg := testConfig(t)
	store, err := BuildStore(cfg, zerolog.Nop())
	require.NoError(t, err)
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	assert.NotNil(t, store)
}
