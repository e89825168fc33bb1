package auth

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// NoneBackend always denies; spec.md §4.4 requires a startup warning when
// auth is left unconfigured, logged by the caller that wires this in.
type NoneBackend struct{}

func (NoneBackend) Authenticate(user, password string) (string, bool) { return "", false }

// RemoteUserBackend trusts a process environment variable set by a
// CGI-style front end ahead of this process, never the password.
type RemoteUserBackend struct {
	EnvVar string
}

func (b RemoteUserBackend) Authenticate(user, password string) (string, bool) {
	if v := os.Getenv(b.EnvVar); v != "" {
		return v, true
	}
	return "", false
}

// HeaderBackend trusts an HTTP header value the caller has already
// extracted, only when explicitly enabled — grounded on the teacher's
// router.go comment that X-Remote-User must never be trusted unless the
// deployment is known to strip it from client input upstream.
type HeaderBackend struct {
	Enabled bool
}

func (b HeaderBackend) Authenticate(headerValue, password string) (string, bool) {
	if !b.Enabled || headerValue == "" {
		return "", false
	}
	return headerValue, true
}

// HtpasswdEntry is one parsed "user:hash" line.
type HtpasswdEntry struct {
	User string
	Hash string
}

// HtpasswdBackend verifies against an Apache-style htpasswd file,
// autodetecting plain/sha1/ssha/md5/bcrypt hash formats. crypt(3)
// entries ($1$, $5$, $6$) are recognized but never verify.
type HtpasswdBackend struct {
	entries map[string]string // user -> hash
}

func LoadHtpasswd(path string) (*HtpasswdBackend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		entries[parts[0]] = parts[1]
	}
	return &HtpasswdBackend{entries: entries}, nil
}

func (b *HtpasswdBackend) Authenticate(user, password string) (string, bool) {
	hash, ok := b.entries[user]
	if !ok {
		return "", false
	}
	if verifyHtpasswd(hash, password) {
		return user, true
	}
	return "", false
}

func verifyHtpasswd(hash, password string) bool {
	switch {
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	case strings.HasPrefix(hash, "{SHA}"):
		sum := sha1.Sum([]byte(password))
		want := base64.StdEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(hash[len("{SHA}"):]), []byte(want)) == 1
	case strings.HasPrefix(hash, "{SSHA}"):
		return verifySSHA(hash[len("{SSHA}"):], password)
	case strings.HasPrefix(hash, "$1$"), strings.HasPrefix(hash, "$5$"), strings.HasPrefix(hash, "$6$"):
		// crypt(3)-style digests: not reproducible with stdlib alone, and
		// no ecosystem crypt(3) implementation is in the retrieved pack;
		// entries using it are treated as unsupported rather than
		// silently accepted.
		return false
	case len(hash) == 32 && isHex(hash):
		sum := md5.Sum([]byte(password))
		return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(hash)) == 1
	default:
		// Plain-text fallback.
		return subtle.ConstantTimeCompare([]byte(hash), []byte(password)) == 1
	}
}

func verifySSHA(encoded, password string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) <= sha1.Size {
		return false
	}
	digest, salt := raw[:sha1.Size], raw[sha1.Size:]
	h := sha1.New()
	h.Write([]byte(password))
	h.Write(salt)
	return subtle.ConstantTimeCompare(h.Sum(nil), digest) == 1
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
