package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGetRoundTrip(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1, time.Now().Add(time.Hour))

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestGetMissingKeyReturnsZeroValue(t *testing.T) {
	c := New[string, int](time.Minute)
	v, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestGetExpiredEntryIsNotReturned(t *testing.T) {
	c := New[string, string](time.Minute)
	c.Set("k", "v", time.Now().Add(-time.Second))

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestSetOverwritesExistingEntry(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1, time.Now().Add(time.Hour))
	c.Set("a", 2, time.Now().Add(time.Hour))

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
