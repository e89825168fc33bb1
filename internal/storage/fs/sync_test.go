package fs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldavd/caldavd/internal/storage"
)

func TestSyncInitialReturnsFullListing(t *testing.T) {
	s := newTestStore(t)
	mustCreateCalendar(t, s, "alice/cal")
	ctx := context.Background()

	_, err := s.PutItem(ctx, "alice/cal", "e1.ics", []byte(testEvent), "", false)
	require.NoError(t, err)

	diff, err := s.Sync(ctx, "alice/cal", "", 0)
	require.NoError(t, err)
	require.Len(t, diff.Changes, 1)
	assert.Equal(t, "e1.ics", diff.Changes[0].Name)
	assert.False(t, diff.Changes[0].Removed)
	assert.NotEmpty(t, diff.NewToken)
}

func TestSyncReturnsSymmetricDifferenceBetweenTokens(t *testing.T) {
	s := newTestStore(t)
	mustCreateCalendar(t, s, "alice/cal")
	ctx := context.Background()

	_, err := s.PutItem(ctx, "alice/cal", "e1.ics", []byte(testEvent), "", false)
	require.NoError(t, err)

	first, err := s.Sync(ctx, "alice/cal", "", 0)
	require.NoError(t, err)
	token1 := first.NewToken
	require.NotEmpty(t, token1)

	require.NoError(t, s.DeleteItem(ctx, "alice/cal", "e1.ics", ""))

	second, err := s.Sync(ctx, "alice/cal", token1, 0)
	require.NoError(t, err)
	require.Len(t, second.Changes, 1)
	assert.Equal(t, "e1.ics", second.Changes[0].Name)
	assert.True(t, second.Changes[0].Removed)
}

func TestSyncExpiredTokenReturnsError(t *testing.T) {
	s := newTestStore(t)
	mustCreateCalendar(t, s, "alice/cal")
	ctx := context.Background()

	_, err := s.Sync(ctx, "alice/cal", "some-unknown-token", 0)
	assert.ErrorIs(t, err, storage.ErrSyncTokenExpired)
}

func TestSyncTokenAgedOutSurfacesEviction(t *testing.T) {
	s := newTestStore(t)
	s.maxSyncTokenAge = time.Nanosecond
	mustCreateCalendar(t, s, "alice/cal")
	ctx := context.Background()

	_, err := s.PutItem(ctx, "alice/cal", "e1.ics", []byte(testEvent), "", false)
	require.NoError(t, err)
	first, err := s.Sync(ctx, "alice/cal", "", 0)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	_, err = s.Sync(ctx, "alice/cal", first.NewToken, 0)
	assert.ErrorIs(t, err, storage.ErrSyncTokenExpired)
}
