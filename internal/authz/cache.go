package authz

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache is the injected store behind the caching decorator. Implementations
// must be safe for concurrent use; last-writer-wins on the same key is
// acceptable because recomputation is idempotent.
type Cache interface {
	// Get returns (value, true) on a live entry, (false, false) otherwise.
	Get(ctx context.Context, key string) (bool, bool, error)
	// Set stores the value for the given TTL.
	Set(ctx context.Context, key string, value bool, ttl time.Duration) error
	// DeleteMatch removes every key matching the glob pattern.
	DeleteMatch(ctx context.Context, pattern string) error
}

const cacheKeyPrefix = "authz"

// cacheKey builds the memo key for (actor, capability, team?, owner?).
// Every segment has a fixed position so each invalidation in the contract
// is a single glob: actor → "authz:a7:*", actor+capability →
// "authz:a7:capps:read:*", record (any actor) → "authz:*:*:*:rapp.9".
func cacheKey(actorID int64, capabilityKey string, scope Scope) string {
	teamToken := "-"
	if scope.TeamID != nil {
		teamToken = fmt.Sprintf("t%d", *scope.TeamID)
	}
	recordToken := "-"
	if scope.Record != nil {
		recordToken = fmt.Sprintf("r%s.%d", scope.Record.OwnerType(), scope.Record.OwnerID())
	}
	return strings.Join([]string{
		cacheKeyPrefix,
		fmt.Sprintf("a%d", actorID),
		"c" + capabilityKey,
		teamToken,
		recordToken,
	}, ":")
}

func actorPattern(actorID int64) string {
	return fmt.Sprintf("%s:a%d:*", cacheKeyPrefix, actorID)
}

func capabilityPattern(actorID int64, capabilityKey string) string {
	return fmt.Sprintf("%s:a%d:c%s:*", cacheKeyPrefix, actorID, capabilityKey)
}

func recordPattern(ownerType string, ownerID int64) string {
	return fmt.Sprintf("%s:*:*:*:r%s.%d", cacheKeyPrefix, ownerType, ownerID)
}
