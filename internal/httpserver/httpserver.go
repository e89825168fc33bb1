// Package httpserver assembles storage, rights, auth and the dav protocol
// engine into one net/http.Server, grounded on the teacher's
// internal/httpserver.NewServer (storage/auth/dav wiring plus a cleanup
// closure), generalized from its postgres/filestore storage switch and
// LDAP-only auth chain to this project's pluggable storage.Type/auth.Type/
// rights.Type factories.
package httpserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldavd/caldavd/internal/auth"
	"github.com/caldavd/caldavd/internal/config"
	"github.com/caldavd/caldavd/internal/dav"
	"github.com/caldavd/caldavd/internal/rights"
	"github.com/caldavd/caldavd/internal/storage"
	"github.com/caldavd/caldavd/internal/storage/fs"
)

// Server wraps the listening *http.Server(s); TLS and plaintext hosts
// both fall out of cfg.Server.Hosts/SSL, mirroring the teacher's single
// http.Server built from cfg.HTTP.Addr.
type Server struct {
	servers []*http.Server
	log     zerolog.Logger
}

// BuildStore opens the configured storage.Store, the one piece main and
// --verify-storage/--export-storage share.
func BuildStore(cfg *config.Config, log zerolog.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "multifilesystem", "filesystem", "":
		cacheMode := fs.CacheKeyMtimeSize
		if !cfg.Storage.UseMtimeAndSizeForItemCache {
			cacheMode = fs.CacheKeyHash
		}
		return fs.New(fs.Options{
			Root:             cfg.Storage.FilesystemFolder,
			CacheRoot:        cfg.Storage.FilesystemCacheFolder,
			CacheKeyMode:     cacheMode,
			MaxSyncTokenAge:  cfg.Storage.MaxSyncTokenAge,
			MaxRecurrence:    cfg.Storage.MaxRecurrenceExpansion,
			MaxFreeBusyOccur: cfg.Storage.MaxFreeBusyOccurrences,
			Hook:             cfg.Storage.Hook,
			Logger:           log,
			EnableCacheIndex: cfg.Storage.EnableCacheIndex,
		})
	default:
		return nil, fmt.Errorf("httpserver: unknown storage type %q", cfg.Storage.Type)
	}
}

// buildRights constructs the configured rights.Policy.
func buildRights(cfg *config.Config) (rights.Policy, error) {
	opts := map[string]string{"file": cfg.Rights.File}
	return rights.New(cfg.Rights.Type, opts)
}

// buildAuth constructs the configured auth backend and wraps it in the
// rate-limiting/normalization Pipeline, grounded on the teacher's
// auth.NewChain, generalized from a fixed LDAP chain to this project's
// single pluggable Backend plus Normalization struct (spec.md §4.4).
func buildAuth(cfg *config.Config, log zerolog.Logger) (*auth.Pipeline, error) {
	backend, err := auth.New(auth.Options{
		Type:             cfg.Auth.Type,
		HtpasswdFile:     cfg.Auth.HtpasswdFilename,
		RemoteUserEnvVar: cfg.Auth.RemoteUserEnvVar,
		HeaderEnabled:    cfg.Auth.HeaderEnabled,
		LDAP: auth.LDAPConfig{
			URL:                cfg.Auth.LDAP.URL,
			BindDN:             cfg.Auth.LDAP.BindDN,
			BindPassword:       cfg.Auth.LDAP.BindPassword,
			UserBaseDN:         cfg.Auth.LDAP.UserBaseDN,
			UserFilter:         cfg.Auth.LDAP.UserFilter,
			DisplayNameAttr:    cfg.Auth.LDAP.DisplayNameAttr,
			RequireTLS:         cfg.Auth.LDAP.RequireTLS,
			InsecureSkipVerify: cfg.Auth.LDAP.InsecureSkipVerify,
			Timeout:            cfg.Auth.LDAP.Timeout,
		},
		JWT: auth.JWTConfig{
			JWKSURL:   cfg.Auth.JWT.JWKSURL,
			Issuer:    cfg.Auth.JWT.Issuer,
			Audience:  cfg.Auth.JWT.Audience,
			KeysetTTL: cfg.Auth.JWT.KeysetTTL,
		},
	}, log)
	if err != nil {
		return nil, err
	}

	norm := auth.Normalization{
		URLDecode:   cfg.Auth.URLDecodeUsername,
		StripDomain: cfg.Auth.StripDomain,
		Lower:       cfg.Auth.LCUsername,
		Upper:       cfg.Auth.UCUsername,
	}
	successTTL := time.Duration(0)
	if cfg.Auth.CacheLogins {
		successTTL = cfg.Auth.CacheSuccessfulLoginsExpiry
	}
	const maxFailsBeforeBackoff = 3
	return auth.NewPipeline(backend, norm, cfg.Auth.Delay, maxFailsBeforeBackoff, successTTL), nil
}

// NewServer builds the full App plus its listeners. The returned cleanup
// closure releases the storage lock; callers should defer it after
// checking the error, matching the teacher's NewServer(cfg, logger)
// (*Server, func(), error) shape.
func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, func(), error) {
	store, err := BuildStore(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if closer, ok := store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}

	policy, err := buildRights(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	pipeline, err := buildAuth(cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	app := &dav.App{
		Store:        store,
		Rights:       policy,
		AuthPipeline: pipeline,
		Config: dav.Config{
			BasePath:                  cfg.Server.BasePath,
			MaxDepthInfinity:          true,
			MaxRecurrenceExpansion:    cfg.Storage.MaxRecurrenceExpansion,
			MaxFreeBusyOccurrences:    cfg.Storage.MaxFreeBusyOccurrences,
			MaxSyncTokenAge:           cfg.Storage.MaxSyncTokenAge,
			MaxContentLength:          cfg.Server.MaxContentLength,
			XMLMaxDepth:               64,
			XMLMaxElements:            20000,
			PermitDeleteCollection:    cfg.Rights.PermitDeleteCollection,
			PermitOverwriteCollection: cfg.Rights.PermitOverwriteCollection,
		},
		Log: log,
	}

	var tlsConfig *tls.Config
	if cfg.Server.SSL {
		cert, err := tls.LoadX509KeyPair(cfg.Server.Certificate, cfg.Server.Key)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("httpserver: loading TLS certificate: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	srv := &Server{log: log}
	for _, host := range cfg.Server.Hosts {
		h := &http.Server{
			Addr:         host,
			Handler:      app,
			ReadTimeout:  cfg.Server.Timeout,
			WriteTimeout: 2 * cfg.Server.Timeout,
			IdleTimeout:  120 * time.Second,
			TLSConfig:    tlsConfig,
		}
		srv.servers = append(srv.servers, h)
	}

	log.Info().Strs("hosts", cfg.Server.Hosts).Str("storage", cfg.Storage.Type).Bool("tls", cfg.Server.SSL).Msg("server configured")
	return srv, cleanup, nil
}

// Start runs every configured listener, blocking until the first one
// returns an error (including a clean Shutdown, which returns
// http.ErrServerClosed).
func (s *Server) Start() error {
	errCh := make(chan error, len(s.servers))
	for _, h := range s.servers {
		h := h
		go func() {
			var err error
			if h.TLSConfig != nil {
				err = h.ListenAndServeTLS("", "")
			} else {
				err = h.ListenAndServe()
			}
			errCh <- err
		}()
	}
	return <-errCh
}

// Shutdown gracefully stops every listener, giving in-flight requests up
// to ctx's deadline to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var first error
	for _, h := range s.servers {
		if err := h.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
