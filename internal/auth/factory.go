package auth

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Options carries every field any backend type might need; New picks the
// subset the requested Type uses, mirroring the teacher's storage.Type/
// auth.Type switch in internal/httpserver/httpserver.go.
type Options struct {
	Type string

	HtpasswdFile string

	RemoteUserEnvVar string

	HeaderEnabled bool

	LDAP LDAPConfig
	JWT  JWTConfig
}

// New builds the configured Backend.
func New(opts Options, log zerolog.Logger) (Backend, error) {
	switch opts.Type {
	case "", "none":
		log.Warn().Msg("auth backend is unconfigured; all requests will be denied (spec.md §4.4)")
		return NoneBackend{}, nil
	case "htpasswd":
		return LoadHtpasswd(opts.HtpasswdFile)
	case "remote_user":
		if opts.RemoteUserEnvVar == "" {
			opts.RemoteUserEnvVar = "REMOTE_USER"
		}
		return RemoteUserBackend{EnvVar: opts.RemoteUserEnvVar}, nil
	case "http_header":
		return HeaderBackend{Enabled: opts.HeaderEnabled}, nil
	case "ldap_bind":
		return NewLDAPBackend(opts.LDAP, log), nil
	case "bearer_jwt":
		return NewJWTBackend(opts.JWT, log), nil
	default:
		return nil, fmt.Errorf("auth: unknown backend type %q", opts.Type)
	}
}
