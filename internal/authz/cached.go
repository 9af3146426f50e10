package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a memoized answer is trusted.
const DefaultCacheTTL = 5 * time.Minute

// CachedResolver wraps a Resolver with a TTL cache behind the same
// Checker interface. Answers are identical to the wrapped resolver's
// modulo the staleness window: any mutation to memberships or overrides
// must invoke the matching invalidation hook, or reads may see the old
// answer for up to one TTL.
type CachedResolver struct {
	resolver *Resolver
	cache    Cache
	ttl      time.Duration
	metrics  *Metrics
	logger   *slog.Logger
	group    singleflight.Group
}

// NewCachedResolver builds the decorator. A non-positive ttl falls back
// to DefaultCacheTTL.
func NewCachedResolver(resolver *Resolver, cache Cache, ttl time.Duration, metrics *Metrics, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{
		resolver: resolver,
		cache:    cache,
		ttl:      ttl,
		metrics:  metrics,
		logger:   logger,
	}
}

// Registry exposes the capability registry backing the wrapped resolver.
func (c *CachedResolver) Registry() *Registry {
	return c.resolver.Registry()
}

// CanPerform answers from the request memo, then the TTL cache, then the
// wrapped resolver. Super-admins bypass both layers so a demotion takes
// effect on the next check rather than after a TTL.
func (c *CachedResolver) CanPerform(ctx context.Context, capabilityKey string, actor *Actor, scope Scope) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.SuperAdmin {
		return c.resolver.CanPerform(ctx, capabilityKey, actor, scope)
	}

	key := cacheKey(actor.ID, capabilityKey, scope)
	memo := memoFromContext(ctx)
	if memo != nil {
		if v, ok := memo.get(key); ok {
			return v, nil
		}
	}

	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		// A broken cache store must not turn into a denial; fall through
		// to the resolver.
		c.logger.Warn("authz cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		c.metrics.recordHit(capabilityKey)
		if memo != nil {
			memo.set(key, v)
		}
		return v, nil
	}

	c.metrics.recordMiss(capabilityKey)
	v, err, _ := c.group.Do(key, func() (any, error) {
		start := time.Now()
		ok, err := c.resolver.CanPerform(ctx, capabilityKey, actor, scope)
		if err != nil {
			return false, err
		}
		c.metrics.observeResolve(capabilityKey, time.Since(start))
		if err := c.cache.Set(ctx, key, ok, c.ttl); err != nil {
			c.logger.Warn("authz cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	answer := v.(bool)
	if memo != nil {
		memo.set(key, answer)
	}
	return answer, nil
}

// CanPerformAny is true when at least one capability resolves true.
func (c *CachedResolver) CanPerformAny(ctx context.Context, capabilityKeys []string, actor *Actor, scope Scope) (bool, error) {
	return anyOf(ctx, c, capabilityKeys, actor, scope)
}

// CanPerformAll is true only when every capability resolves true.
func (c *CachedResolver) CanPerformAll(ctx context.Context, capabilityKeys []string, actor *Actor, scope Scope) (bool, error) {
	return allOf(ctx, c, capabilityKeys, actor, scope)
}

// CapabilitiesFor reports which registered capabilities pass CanPerform.
func (c *CachedResolver) CapabilitiesFor(ctx context.Context, actor *Actor, scope Scope) ([]string, error) {
	return capabilitiesOf(ctx, c, c.resolver.Registry(), actor, scope)
}

// InvalidateActor drops every cached answer for the actor. Call after a
// membership change or any bulk override edit.
func (c *CachedResolver) InvalidateActor(ctx context.Context, actorID int64) error {
	if err := c.cache.DeleteMatch(ctx, actorPattern(actorID)); err != nil {
		return fmt.Errorf("authz: invalidate actor %d: %w", actorID, err)
	}
	return nil
}

// InvalidateCapability drops the actor's cached answers for one
// capability across all scopes. Call after an actor-override change.
func (c *CachedResolver) InvalidateCapability(ctx context.Context, actorID int64, capabilityKey string) error {
	if err := c.cache.DeleteMatch(ctx, capabilityPattern(actorID, capabilityKey)); err != nil {
		return fmt.Errorf("authz: invalidate capability %s for actor %d: %w", capabilityKey, actorID, err)
	}
	return nil
}

// InvalidateRecord drops cached answers against the record for every
// actor. Call after a record-override change.
func (c *CachedResolver) InvalidateRecord(ctx context.Context, ownerType string, ownerID int64) error {
	if err := c.cache.DeleteMatch(ctx, recordPattern(ownerType, ownerID)); err != nil {
		return fmt.Errorf("authz: invalidate record %s/%d: %w", ownerType, ownerID, err)
	}
	return nil
}

// Warm pre-populates cache entries for the actor over the cross product
// of capabilities and scopes, e.g. ahead of a listing page that renders
// many conditional controls. Warming goes through the normal miss path so
// warmed entries are indistinguishable from organic ones.
func (c *CachedResolver) Warm(ctx context.Context, actor *Actor, capabilityKeys []string, scopes []Scope) error {
	if actor == nil || actor.SuperAdmin {
		return nil
	}
	if len(scopes) == 0 {
		scopes = []Scope{{}}
	}
	for _, scope := range scopes {
		for _, key := range capabilityKeys {
			if _, err := c.CanPerform(ctx, key, actor, scope); err != nil {
				return fmt.Errorf("authz: warm %s: %w", key, err)
			}
		}
	}
	return nil
}
