package authz

import (
	"context"
	"time"
)

// Checker is the read surface shared by the resolver and its caching
// decorator. Boolean results are authorization answers; a non-nil error
// always means the underlying store failed, never a denial.
type Checker interface {
	CanPerform(ctx context.Context, capabilityKey string, actor *Actor, scope Scope) (bool, error)
	CanPerformAny(ctx context.Context, capabilityKeys []string, actor *Actor, scope Scope) (bool, error)
	CanPerformAll(ctx context.Context, capabilityKeys []string, actor *Actor, scope Scope) (bool, error)
	CapabilitiesFor(ctx context.Context, actor *Actor, scope Scope) ([]string, error)
}

// Resolver evaluates capability checks against four authority sources in
// strict precedence order: super-admin bit, record override, actor
// override (team-scoped before global), role defaults. Every unresolvable
// case collapses to false.
type Resolver struct {
	registry    *Registry
	defaults    *RoleTable
	memberships MembershipStore
	overrides   OverrideStore
	now         func() time.Time
}

// NewResolver wires the resolver. The clock defaults to time.Now.
func NewResolver(registry *Registry, defaults *RoleTable, memberships MembershipStore, overrides OverrideStore) *Resolver {
	return &Resolver{
		registry:    registry,
		defaults:    defaults,
		memberships: memberships,
		overrides:   overrides,
		now:         time.Now,
	}
}

// WithClock swaps the time source; used by expiry tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Registry exposes the capability registry backing this resolver.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// CanPerform decides whether the actor may exercise the capability within
// the given scope. Each precedence step short-circuits on a definite
// answer.
func (r *Resolver) CanPerform(ctx context.Context, capabilityKey string, actor *Actor, scope Scope) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.SuperAdmin {
		return true, nil
	}
	if _, known := r.registry.Lookup(capabilityKey); !known {
		return false, nil
	}
	now := r.now()

	if scope.Record != nil {
		ov, err := r.overrides.RecordOverride(ctx, actor.ID, capabilityKey, scope.Record.OwnerType(), scope.Record.OwnerID())
		if err != nil {
			return false, err
		}
		if ov != nil && ov.Active(now) {
			return ov.GrantType == Grant, nil
		}
	}

	if scope.TeamID != nil {
		ov, err := r.overrides.ActorOverride(ctx, actor.ID, capabilityKey, scope.TeamID)
		if err != nil {
			return false, err
		}
		if ov != nil && ov.Active(now) {
			return ov.GrantType == Grant, nil
		}
	}
	ov, err := r.overrides.ActorOverride(ctx, actor.ID, capabilityKey, nil)
	if err != nil {
		return false, err
	}
	if ov != nil && ov.Active(now) {
		return ov.GrantType == Grant, nil
	}

	teams, err := r.relevantTeams(ctx, actor, scope)
	if err != nil {
		return false, err
	}
	if len(teams) == 0 {
		return false, nil
	}
	roles, err := r.memberships.TeamRoles(ctx, actor.ID, teams)
	if err != nil {
		return false, err
	}
	highest, ok := HighestRole(roles)
	if !ok {
		return false, nil
	}
	return r.defaults.Grants(highest, capabilityKey), nil
}

// relevantTeams picks the teams whose memberships matter for the role
// fallback: the scoped team if one was supplied, else the record's owning
// teams, else the actor's own memberships.
func (r *Resolver) relevantTeams(ctx context.Context, actor *Actor, scope Scope) ([]int64, error) {
	if scope.TeamID != nil {
		return []int64{*scope.TeamID}, nil
	}
	if scope.Record != nil {
		return scope.Record.OwningTeamIDs(), nil
	}
	return r.memberships.ActorTeams(ctx, actor.ID)
}

// CanPerformAny is true when at least one capability resolves true.
func (r *Resolver) CanPerformAny(ctx context.Context, capabilityKeys []string, actor *Actor, scope Scope) (bool, error) {
	return anyOf(ctx, r, capabilityKeys, actor, scope)
}

// CanPerformAll is true only when every capability resolves true.
func (r *Resolver) CanPerformAll(ctx context.Context, capabilityKeys []string, actor *Actor, scope Scope) (bool, error) {
	return allOf(ctx, r, capabilityKeys, actor, scope)
}

// CapabilitiesFor reports which registered capabilities pass CanPerform
// for the actor in the given scope. The registry is small and static, so
// a full scan is fine.
func (r *Resolver) CapabilitiesFor(ctx context.Context, actor *Actor, scope Scope) ([]string, error) {
	return capabilitiesOf(ctx, r, r.registry, actor, scope)
}

func anyOf(ctx context.Context, c Checker, keys []string, actor *Actor, scope Scope) (bool, error) {
	for _, key := range keys {
		ok, err := c.CanPerform(ctx, key, actor, scope)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func allOf(ctx context.Context, c Checker, keys []string, actor *Actor, scope Scope) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	for _, key := range keys {
		ok, err := c.CanPerform(ctx, key, actor, scope)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func capabilitiesOf(ctx context.Context, c Checker, registry *Registry, actor *Actor, scope Scope) ([]string, error) {
	granted := make([]string, 0, registry.Len())
	for _, cap := range registry.Capabilities() {
		ok, err := c.CanPerform(ctx, cap.Key, actor, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			granted = append(granted, cap.Key)
		}
	}
	return granted, nil
}
