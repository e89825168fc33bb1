// Package auth implements the pluggable credential pipeline of spec.md
// §4.4, grounded on the teacher's auth.Chain/BasicAuth/BearerAuth split
// (internal/auth/middleware.go, basic.go, bearer.go).
package auth

import (
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/caldavd/caldavd/internal/cache"
)

// Backend is the abstract per-credential contract: authenticate(user,
// password) -> normalized_user, or "" on failure.
type Backend interface {
	Authenticate(user, password string) (normalizedUser string, ok bool)
}

// Normalization describes the pipeline steps applied before the backend
// ever sees the username (spec.md §4.4).
type Normalization struct {
	URLDecode  bool
	StripDomain bool
	Lower      bool
	Upper      bool
}

func (n Normalization) Apply(user string) string {
	if n.URLDecode {
		if decoded, err := url.QueryUnescape(user); err == nil {
			user = decoded
		}
	}
	if n.StripDomain {
		if i := strings.IndexByte(user, '@'); i >= 0 {
			user = user[:i]
		}
		if i := strings.IndexByte(user, '\\'); i >= 0 {
			user = user[i+1:]
		}
	}
	switch {
	case n.Lower:
		user = strings.ToLower(user)
	case n.Upper:
		user = strings.ToUpper(user)
	}
	return user
}

// Pipeline wraps a Backend with normalization, rate-limiting, and
// success/failure caching.
type Pipeline struct {
	backend    Backend
	norm       Normalization
	delay      time.Duration
	maxFails   int
	successTTL time.Duration

	attempts *cache.Cache[string, int]
	success  *cache.Cache[string, string]
	sleep    func(time.Duration)
}

// NewPipeline builds the pipeline. delay is the base rate-limit delay
// (default 1s); maxFails is how many consecutive failures from one
// source trigger the randomized backoff.
func NewPipeline(backend Backend, norm Normalization, delay time.Duration, maxFails int, successTTL time.Duration) *Pipeline {
	if delay <= 0 {
		delay = time.Second
	}
	return &Pipeline{
		backend:    backend,
		norm:       norm,
		delay:      delay,
		maxFails:   maxFails,
		successTTL: successTTL,
		attempts:   cache.New[string, int](10 * time.Minute),
		success:    cache.New[string, string](successTTL),
		sleep:      time.Sleep,
	}
}

// Authenticate runs the full pipeline for a request from source (used as
// the rate-limit key, typically the client IP).
func (p *Pipeline) Authenticate(source, user, password string) (normalizedUser string, ok bool) {
	user = p.norm.Apply(user)

	if cached, found := p.success.Get(cacheKey(source, user, password)); found {
		return cached, true
	}

	if fails, found := p.attempts.Get(source); found && fails >= p.maxFails {
		jitter := 0.5 + rand.Float64()
		p.sleep(time.Duration(float64(p.delay) * jitter))
	}

	normalized, ok := p.backend.Authenticate(user, password)
	if !ok {
		fails, _ := p.attempts.Get(source)
		p.attempts.Set(source, fails+1, time.Now().Add(10*time.Minute))
		return "", false
	}
	p.attempts.Set(source, 0, time.Now().Add(10*time.Minute))
	if p.successTTL > 0 {
		p.success.Set(cacheKey(source, user, password), normalized, time.Now().Add(p.successTTL))
	}
	return normalized, true
}

func cacheKey(source, user, password string) string {
	return source + "\x00" + user + "\x00" + password
}
