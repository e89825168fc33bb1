package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizationURLDecode(t *testing.T) {
	n := Normalization{URLDecode: true}
	assert.Equal(t, "alice bob", n.Apply("alice+bob"))
}

func TestNormalizationStripDomain(t *testing.T) {
	n := Normalization{StripDomain: true}
	assert.Equal(t, "alice", n.Apply("alice@example.com"))
	assert.Equal(t, "alice", n.Apply(`EXAMPLE\alice`))
}

func TestNormalizationCaseFolding(t *testing.T) {
	assert.Equal(t, "alice", Normalization{Lower: true}.Apply("ALICE"))
	assert.Equal(t, "ALICE", Normalization{Upper: true}.Apply("alice"))
}

type fakeBackend struct {
	calls int
	allow map[string]string // user -> password that succeeds
}

func (b *fakeBackend) Authenticate(user, password string) (string, bool) {
	b.calls++
	if want, ok := b.allow[user]; ok && want == password {
		return user, true
	}
	return "", false
}

func TestPipelineAuthenticatesAndNormalizes(t *testing.T) {
	backend := &fakeBackend{allow: map[string]string{"alice": "password"}}
	p := NewPipeline(backend, Normalization{Lower: true}, time.Millisecond, 100, time.Minute)
	p.sleep = func(time.Duration) {}

	user, ok := p.Authenticate("127.0.0.1", "ALICE", "password")
	assert.True(t, ok)
	assert.Equal(t, "alice", user)
}

func TestPipelineRejectsBadPassword(t *testing.T) {
	backend := &fakeBackend{allow: map[string]string{"alice": "password"}}
	p := NewPipeline(backend, Normalization{}, time.Millisecond, 100, time.Minute)
	p.sleep = func(time.Duration) {}

	_, ok := p.Authenticate("127.0.0.1", "alice", "wrong")
	assert.False(t, ok)
}

func TestPipelineRateLimitsAfterRepeatedFailures(t *testing.T) {
	backend := &fakeBackend{allow: map[string]string{"alice": "password"}}
	p := NewPipeline(backend, Normalization{}, time.Millisecond, 2, time.Minute)
	var slept time.Duration
	p.sleep = func(d time.Duration) { slept += d }

	for i := 0; i < 2; i++ {
		_, ok := p.Authenticate("10.0.0.1", "alice", "wrong")
		assert.False(t, ok)
	}
	// Third failed attempt from the same source should trigger the
	// randomized backoff sleep.
	_, ok := p.Authenticate("10.0.0.1", "alice", "wrong")
	assert.False(t, ok)
	assert.Greater(t, slept, time.Duration(0))
}

func TestPipelineCachesSuccessfulLogins(t *testing.T) {
	backend := &fakeBackend{allow: map[string]string{"alice": "password"}}
	p := NewPipeline(backend, Normalization{}, time.Millisecond, 100, time.Minute)
	p.sleep = func(time.Duration) {}

	_, ok := p.Authenticate("127.0.0.1", "alice", "password")
	require.True(t, ok)
	callsAfterFirst := backend.calls

	_, ok = p.Authenticate("127.0.0.1", "alice", "password")
	assert.True(t, ok)
	assert.Equal(t, callsAfterFirst, backend.calls, "second call should be served from the success cache")
}

func TestNewPipelineDefaultsDelay(t *testing.T) {
	backend := &fakeBackend{allow: map[string]string{}}
	p := NewPipeline(backend, Normalization{}, 0, 1, time.Minute)
	assert.Equal(t, time.Second, p.delay)
}
