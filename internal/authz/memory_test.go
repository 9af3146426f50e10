package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "authz:a7:capps:read:-:-")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "authz:a7:capps:read:-:-", true, time.Minute))
	require.NoError(t, c.Set(ctx, "authz:a7:capps:write:-:-", false, time.Minute))

	v, ok, err := c.Get(ctx, "authz:a7:capps:read:-:-")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, v)

	v, ok, err = c.Get(ctx, "authz:a7:capps:write:-:-")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, v, "a cached denial is still a hit")
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", true, time.Minute))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, c.Len(), "expired entry is dropped on read")
}

func TestMemoryCacheDeleteMatch(t *testing.T) {
	ctx := context.Background()
	keys := []string{
		cacheKey(7, "apps:read", Scope{}),
		cacheKey(7, "apps:read", TeamScope(5)),
		cacheKey(7, "apps:write", TeamScope(5)),
		cacheKey(8, "apps:read", TeamScope(5)),
		cacheKey(7, "problems:read", RecordScope(RecordRef{Type: "app", ID: 3})),
		cacheKey(8, "problems:read", RecordScope(RecordRef{Type: "app", ID: 3})),
		cacheKey(8, "problems:read", RecordScope(RecordRef{Type: "app", ID: 4})),
	}

	fill := func() *MemoryCache {
		c := NewMemoryCache()
		for _, k := range keys {
			require.NoError(t, c.Set(ctx, k, true, time.Minute))
		}
		return c
	}

	c := fill()
	require.NoError(t, c.DeleteMatch(ctx, actorPattern(7)))
	require.Equal(t, 3, c.Len(), "only actor 8 entries survive")

	c = fill()
	require.NoError(t, c.DeleteMatch(ctx, capabilityPattern(7, "apps:read")))
	require.Equal(t, 5, c.Len())

	c = fill()
	require.NoError(t, c.DeleteMatch(ctx, recordPattern("app", 3)))
	require.Equal(t, 5, c.Len(), "record pattern must match across actors")
}
