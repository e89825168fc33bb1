package auth

import (
	"context"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/caldavd/caldavd/internal/cache"
)

// JWTConfig configures JWTBackend, adapted from the teacher's
// config.AuthConfig JWKS fields (internal/auth/bearer.go).
type JWTConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	KeysetTTL time.Duration
}

// JWTBackend validates an Authorization: Bearer token against a JWKS
// endpoint, the way the teacher's BearerAuth does, but exposed through
// this server's plain user/password Backend contract: the "password"
// argument carries the raw bearer token, and the username argument is
// ignored (spec.md's auth pipeline hands whatever credential the request
// carried to the configured backend; for bearer_jwt that credential is
// the token itself, extracted by the caller from the Authorization
// header before the pipeline runs).
type JWTBackend struct {
	cfg JWTConfig
	log zerolog.Logger

	keyset jwk.Set
	ksAt   time.Time

	verCache *cache.Cache[string, string]
}

func NewJWTBackend(cfg JWTConfig, log zerolog.Logger) *JWTBackend {
	if cfg.KeysetTTL <= 0 {
		cfg.KeysetTTL = 10 * time.Minute
	}
	return &JWTBackend{
		cfg:      cfg,
		log:      log,
		verCache: cache.New[string, string](2 * time.Minute),
	}
}

func (b *JWTBackend) Authenticate(_ string, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	if sub, ok := b.verCache.Get(token); ok {
		return sub, true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	set := b.keyset
	if set == nil || time.Since(b.ksAt) > b.cfg.KeysetTTL {
		fetched, err := jwk.Fetch(ctx, b.cfg.JWKSURL)
		if err != nil {
			b.log.Error().Err(err).Str("jwks_url", b.cfg.JWKSURL).Msg("bearer_jwt: jwks fetch failed")
			return "", false
		}
		set = fetched
		b.keyset = set
		b.ksAt = time.Now()
	}

	tok, err := jwt.Parse([]byte(token), jwt.WithKeySet(set), jwt.WithValidate(true))
	if err != nil {
		b.log.Debug().Err(err).Msg("bearer_jwt: verification failed")
		return "", false
	}
	if b.cfg.Issuer != "" && tok.Issuer() != b.cfg.Issuer {
		return "", false
	}
	if b.cfg.Audience != "" {
		found := false
		for _, a := range tok.Audience() {
			if a == b.cfg.Audience {
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	sub := tok.Subject()
	if sub == "" {
		return "", false
	}
	b.verCache.Set(token, sub, time.Now().Add(2*time.Minute))
	return sub, true
}
