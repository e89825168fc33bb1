package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

// LDAPConfig configures LDAPBackend, adapted from the teacher's
// config.LDAPConfig (internal/directory/ldapclient.go's reason for
// existing) down to the fields a bind-only credential check needs.
type LDAPConfig struct {
	URL                string
	BindDN             string
	BindPassword       string
	UserBaseDN         string
	UserFilter         string // e.g. "(|(uid=%s)(mail=%s))"
	DisplayNameAttr    string
	RequireTLS         bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// LDAPBackend authenticates by searching for the user's DN with a
// service bind, then re-binding as that DN with the supplied password —
// the same two-step dance as the teacher's LDAPClient.BindUser, adapted
// to return a normalized username instead of a *directory.User (this
// server has no group/ACL directory layer, only the credential check).
type LDAPBackend struct {
	cfg LDAPConfig
	log zerolog.Logger
}

func NewLDAPBackend(cfg LDAPConfig, log zerolog.Logger) *LDAPBackend {
	return &LDAPBackend{cfg: cfg, log: log}
}

func (b *LDAPBackend) Authenticate(user, password string) (string, bool) {
	if password == "" {
		return "", false
	}
	conn, err := dialLDAP(b.cfg)
	if err != nil {
		b.log.Error().Err(err).Str("url", b.cfg.URL).Msg("ldap_bind: dial failed")
		return "", false
	}
	defer conn.Close()

	if b.cfg.BindDN != "" {
		if err := conn.Bind(b.cfg.BindDN, b.cfg.BindPassword); err != nil {
			b.log.Error().Err(err).Msg("ldap_bind: service bind failed")
			return "", false
		}
	}

	req := ldap.NewSearchRequest(
		b.cfg.UserBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, int(b.cfg.Timeout.Seconds()), false,
		fmt.Sprintf(b.cfg.UserFilter, ldap.EscapeFilter(user), ldap.EscapeFilter(user)),
		[]string{"dn", b.cfg.DisplayNameAttr, "mail", "uid"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil || len(res.Entries) == 0 {
		b.log.Debug().Str("user", user).Msg("ldap_bind: user not found")
		return "", false
	}
	userDN := res.Entries[0].DN

	userConn, err := dialLDAP(b.cfg)
	if err != nil {
		return "", false
	}
	defer userConn.Close()
	if err := userConn.Bind(userDN, password); err != nil {
		b.log.Debug().Err(err).Str("user_dn", userDN).Msg("ldap_bind: user bind failed")
		return "", false
	}
	return user, true
}

func dialLDAP(cfg LDAPConfig) (*ldap.Conn, error) {
	u := strings.TrimSpace(cfg.URL)
	if u == "" {
		return nil, errors.New("auth: ldap_bind url is empty")
	}
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "ldaps://"):
		tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
		if host, _, err := net.SplitHostPort(strings.TrimPrefix(u, "ldaps://")); err == nil {
			tlsCfg.ServerName = host
		}
		return ldap.DialURL(u, ldap.DialWithTLSConfig(tlsCfg))
	case strings.HasPrefix(lower, "ldap://"):
		conn, err := ldap.DialURL(u)
		if err != nil {
			return nil, err
		}
		if cfg.RequireTLS {
			tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
			if host, _, err := net.SplitHostPort(strings.TrimPrefix(u, "ldap://")); err == nil {
				tlsCfg.ServerName = host
			}
			if err := conn.StartTLS(tlsCfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("auth: ldap_bind starttls: %w", err)
			}
		}
		return conn, nil
	default:
		return nil, errors.New("auth: ldap_bind url must start with ldap:// or ldaps://")
	}
}
