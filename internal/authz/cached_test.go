package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingCache wraps a Cache and counts store round trips.
type countingCache struct {
	Cache
	gets int
	sets int
}

func (c *countingCache) Get(ctx context.Context, key string) (bool, bool, error) {
	c.gets++
	return c.Cache.Get(ctx, key)
}

func (c *countingCache) Set(ctx context.Context, key string, value bool, ttl time.Duration) error {
	c.sets++
	return c.Cache.Set(ctx, key, value, ttl)
}

// failingCache errors on every operation.
type failingCache struct{ err error }

func (c failingCache) Get(context.Context, string) (bool, bool, error) { return false, false, c.err }
func (c failingCache) Set(context.Context, string, bool, time.Duration) error {
	return c.err
}
func (c failingCache) DeleteMatch(context.Context, string) error { return c.err }

type cachedFixture struct {
	memberships *stubMemberships
	overrides   *stubOverrides
	cache       *MemoryCache
	cached      *CachedResolver
}

func newCachedFixture(t *testing.T) *cachedFixture {
	t.Helper()
	memberships := newStubMemberships()
	overrides := newStubOverrides()
	cache := NewMemoryCache()
	resolver := newTestResolver(memberships, overrides)
	return &cachedFixture{
		memberships: memberships,
		overrides:   overrides,
		cache:       cache,
		cached:      NewCachedResolver(resolver, cache, time.Minute, nil, nil),
	}
}

func TestCachedResolverMatchesResolver(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleDeveloper)
	actor := &Actor{ID: 7}
	ctx := context.Background()

	ok, err := f.cached.CanPerform(ctx, CapAppsWrite, actor, TeamScope(5))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.cached.CanPerform(ctx, CapTeamsManage, actor, TeamScope(5))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCachedResolverCachesDenialsToo(t *testing.T) {
	f := newCachedFixture(t)
	actor := &Actor{ID: 7}
	ctx := context.Background()

	ok, err := f.cached.CanPerform(ctx, CapAppsRead, actor, TeamScope(5))
	require.NoError(t, err)
	require.False(t, ok)
	rolesAfterFirst := f.memberships.teamRolesCalls

	ok, err = f.cached.CanPerform(ctx, CapAppsRead, actor, TeamScope(5))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, rolesAfterFirst, f.memberships.teamRolesCalls, "second check should not hit the store")
}

func TestCachedResolverServesStaleUntilInvalidated(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)
	actor := &Actor{ID: 7}
	ctx := context.Background()

	ok, err := f.cached.CanPerform(ctx, CapAppsRead, actor, TeamScope(5))
	require.NoError(t, err)
	require.True(t, ok)

	// The underlying membership is gone but the cached answer survives.
	f.memberships.leave(7, 5)
	ok, err = f.cached.CanPerform(ctx, CapAppsRead, actor, TeamScope(5))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.cached.InvalidateActor(ctx, 7))
	ok, err = f.cached.CanPerform(ctx, CapAppsRead, actor, TeamScope(5))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewRecordOverrideInvisibleUntilInvalidated(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleOwner)
	record := RecordRef{Type: "app", ID: 3, TeamIDs: []int64{5}}
	actor := &Actor{ID: 7}
	ctx := context.Background()

	ok, err := f.cached.CanPerform(ctx, CapAppsDelete, actor, RecordScope(record))
	require.NoError(t, err)
	require.True(t, ok)

	// A revoking override written without the matching invalidation is
	// masked by the cached grant.
	f.overrides.setRecord(RecordOverride{ActorID: 7, CapabilityKey: CapAppsDelete, OwnerType: "app", OwnerID: 3, GrantType: Revoke})
	ok, err = f.cached.CanPerform(ctx, CapAppsDelete, actor, RecordScope(record))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.cached.InvalidateRecord(ctx, "app", 3))
	ok, err = f.cached.CanPerform(ctx, CapAppsDelete, actor, RecordScope(record))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidateCapabilityLeavesOthers(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)
	actor := &Actor{ID: 7}
	ctx := context.Background()

	mustPerform := func(key string) {
		t.Helper()
		ok, err := f.cached.CanPerform(ctx, key, actor, TeamScope(5))
		require.NoError(t, err)
		require.True(t, ok)
	}
	mustPerform(CapAppsRead)
	mustPerform(CapProblemsRead)

	require.NoError(t, f.cached.InvalidateCapability(ctx, 7, CapAppsRead))
	require.Equal(t, 1, f.cache.Len(), "only the problems:read entry should survive")
}

func TestInvalidateActorLeavesOtherActors(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)
	f.memberships.join(8, 5, RoleViewer)
	ctx := context.Background()

	for _, id := range []int64{7, 8} {
		_, err := f.cached.CanPerform(ctx, CapAppsRead, &Actor{ID: id}, TeamScope(5))
		require.NoError(t, err)
	}
	require.Equal(t, 2, f.cache.Len())

	require.NoError(t, f.cached.InvalidateActor(ctx, 7))
	require.Equal(t, 1, f.cache.Len())
}

func TestInvalidateRecordDropsAllActors(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)
	f.memberships.join(8, 5, RoleViewer)
	record := RecordRef{Type: "app", ID: 3, TeamIDs: []int64{5}}
	other := RecordRef{Type: "app", ID: 4, TeamIDs: []int64{5}}
	ctx := context.Background()

	for _, id := range []int64{7, 8} {
		_, err := f.cached.CanPerform(ctx, CapProblemsRead, &Actor{ID: id}, RecordScope(record))
		require.NoError(t, err)
		_, err = f.cached.CanPerform(ctx, CapProblemsRead, &Actor{ID: id}, RecordScope(other))
		require.NoError(t, err)
	}
	require.Equal(t, 4, f.cache.Len())

	require.NoError(t, f.cached.InvalidateRecord(ctx, "app", 3))
	require.Equal(t, 2, f.cache.Len(), "entries against app 4 must survive")
}

func TestSuperAdminNeverCached(t *testing.T) {
	f := newCachedFixture(t)
	actor := &Actor{ID: 1, SuperAdmin: true}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := f.cached.CanPerform(ctx, CapTeamsDelete, actor, Scope{})
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Zero(t, f.cache.Len())
}

func TestCachedResolverNoActor(t *testing.T) {
	f := newCachedFixture(t)

	ok, err := f.cached.CanPerform(context.Background(), CapAppsRead, nil, Scope{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, f.cache.Len())
}

func TestCacheFailureFallsThroughToResolver(t *testing.T) {
	memberships := newStubMemberships()
	memberships.join(7, 5, RoleViewer)
	resolver := newTestResolver(memberships, newStubOverrides())
	cached := NewCachedResolver(resolver, failingCache{err: errors.New("redis down")}, time.Minute, nil, nil)

	ok, err := cached.CanPerform(context.Background(), CapAppsRead, &Actor{ID: 7}, TeamScope(5))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachedResolverPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	memberships := newStubMemberships()
	memberships.err = storeErr
	resolver := newTestResolver(memberships, newStubOverrides())
	cached := NewCachedResolver(resolver, NewMemoryCache(), time.Minute, nil, nil)

	_, err := cached.CanPerform(context.Background(), CapAppsRead, &Actor{ID: 7}, Scope{})
	require.ErrorIs(t, err, storeErr)
}

func TestRequestMemoSkipsCacheStore(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)
	counting := &countingCache{Cache: f.cache}
	cached := NewCachedResolver(newTestResolver(f.memberships, f.overrides), counting, time.Minute, nil, nil)

	ctx := WithMemo(context.Background())
	actor := &Actor{ID: 7}
	for i := 0; i < 3; i++ {
		ok, err := cached.CanPerform(ctx, CapAppsRead, actor, TeamScope(5))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 1, counting.gets, "repeat checks in one request should hit the memo")
}

func TestWarmPopulatesCache(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)
	actor := &Actor{ID: 7}
	ctx := context.Background()

	record := RecordRef{Type: "app", ID: 3, TeamIDs: []int64{5}}
	scopes := []Scope{TeamScope(5), RecordScope(record)}
	require.NoError(t, f.cached.Warm(ctx, actor, []string{CapAppsRead, CapProblemsRead}, scopes))
	require.Equal(t, 4, f.cache.Len())

	// Warmed answers are served without further store reads.
	rolesAfterWarm := f.memberships.teamRolesCalls
	ok, err := f.cached.CanPerform(ctx, CapAppsRead, actor, TeamScope(5))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rolesAfterWarm, f.memberships.teamRolesCalls)
}

func TestWarmDefaultsToUnscoped(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)

	require.NoError(t, f.cached.Warm(context.Background(), &Actor{ID: 7}, []string{CapAppsRead}, nil))
	require.Equal(t, 1, f.cache.Len())
}

func TestWarmSkipsSuperAdmins(t *testing.T) {
	f := newCachedFixture(t)

	require.NoError(t, f.cached.Warm(context.Background(), &Actor{ID: 1, SuperAdmin: true}, []string{CapAppsRead}, nil))
	require.NoError(t, f.cached.Warm(context.Background(), nil, []string{CapAppsRead}, nil))
	require.Zero(t, f.cache.Len())
}

func TestCachedCombinators(t *testing.T) {
	f := newCachedFixture(t)
	f.memberships.join(7, 5, RoleViewer)
	actor := &Actor{ID: 7}
	ctx := context.Background()

	ok, err := f.cached.CanPerformAny(ctx, []string{CapTeamsDelete, CapAppsRead}, actor, TeamScope(5))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.cached.CanPerformAll(ctx, []string{CapAppsRead, CapTeamsDelete}, actor, TeamScope(5))
	require.NoError(t, err)
	require.False(t, ok)

	granted, err := f.cached.CapabilitiesFor(ctx, actor, TeamScope(5))
	require.NoError(t, err)
	require.Equal(t, []string{CapAppsRead, CapProblemsRead}, granted)
}
