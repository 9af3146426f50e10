package authz

import "context"

// MembershipStore reads per-team role assignments. Implementations are
// read-only from the resolver's point of view; mutations go through the
// Admin service so invalidation is never skipped.
type MembershipStore interface {
	// ActorTeams returns the ids of every team the actor belongs to.
	ActorTeams(ctx context.Context, actorID int64) ([]int64, error)
	// TeamRoles returns the actor's roles across the given teams. Teams
	// the actor is not a member of are simply absent from the result.
	TeamRoles(ctx context.Context, actorID int64, teamIDs []int64) ([]Role, error)
}

// OverrideStore reads actor- and record-level overrides. Stores return
// overrides regardless of expiry; the resolver filters inactive ones so
// passive expiry behaves identically for every implementation.
type OverrideStore interface {
	// ActorOverride looks up the override for (actor, capability, team).
	// A nil teamID means the global sentinel scope. Returns nil when no
	// override exists.
	ActorOverride(ctx context.Context, actorID int64, capabilityKey string, teamID *int64) (*ActorOverride, error)
	// RecordOverride looks up the override for (actor, owner, capability).
	// Returns nil when no override exists.
	RecordOverride(ctx context.Context, actorID int64, capabilityKey, ownerType string, ownerID int64) (*RecordOverride, error)
}
