package rights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonePolicyDeniesUnauthenticated(t *testing.T) {
	p, err := New("none", nil)
	require.NoError(t, err)
	assert.False(t, p.Authorize(Request{User: "", Path: "alice/cal", Permission: PermReadLeaf}))
	assert.True(t, p.Authorize(Request{User: "alice", Path: "bob/cal", Permission: PermWriteLeaf}))
}

func TestAuthenticatedPolicyAllowsAnyAuthenticatedUser(t *testing.T) {
	p, err := New("authenticated", nil)
	require.NoError(t, err)
	assert.True(t, p.Authorize(Request{User: "alice", Path: "bob/cal", Permission: PermWriteLeaf}))
	assert.False(t, p.Authorize(Request{User: "", Path: "bob/cal", Permission: PermReadLeaf}))
}

func TestOwnerOnlyPolicyRestrictsToOwnPrincipal(t *testing.T) {
	p, err := New("owner_only", nil)
	require.NoError(t, err)
	assert.True(t, p.Authorize(Request{User: "alice", Path: "alice/cal", Permission: PermReadLeaf}))
	assert.False(t, p.Authorize(Request{User: "alice", Path: "bob/cal", Permission: PermReadLeaf}))
}

func TestOwnerWritePolicyAllowsReadEverywhereButWritesOnlyUnderOwnPrincipal(t *testing.T) {
	p, err := New("owner_write", nil)
	require.NoError(t, err)
	assert.True(t, p.Authorize(Request{User: "alice", Path: "bob/cal", Permission: PermReadLeaf}))
	assert.False(t, p.Authorize(Request{User: "alice", Path: "bob/cal", Permission: PermWriteLeaf}))
	assert.True(t, p.Authorize(Request{User: "alice", Path: "alice/cal", Permission: PermWriteLeaf}))
	assert.False(t, p.Authorize(Request{User: "", Path: "alice/cal", Permission: PermReadLeaf}))
}

func TestNewUnknownPolicyType(t *testing.T) {
	_, err := New("does-not-exist", nil)
	assert.Error(t, err)
	var unknown ErrUnknownPolicy
	assert.ErrorAs(t, err, &unknown)
}

func TestAllowsDeleteAndOverwriteOptIns(t *testing.T) {
	assert.True(t, AllowsDelete("d", true))
	assert.False(t, AllowsDelete("d", false))
	assert.True(t, AllowsDelete("D", false))
	assert.True(t, AllowsOverwrite("Oo", true))
	assert.True(t, AllowsOverwrite("Oo", false))
	assert.False(t, AllowsOverwrite("", true))
}
