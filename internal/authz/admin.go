package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnknownCapability rejects admin mutations referencing a key that was
// never registered. Checks treat unknown keys as denied; writes reject
// them outright so a typo cannot create an inert override.
var ErrUnknownCapability = errors.New("authz: unknown capability")

// ErrInvalidRole rejects membership writes with a role outside the fixed
// enumeration.
var ErrInvalidRole = errors.New("authz: invalid role")

// OverrideWriter is the write half of the override store.
type OverrideWriter interface {
	ReplaceActorOverride(ctx context.Context, ov ActorOverride) error
	RemoveActorOverride(ctx context.Context, actorID int64, capabilityKey string, teamID *int64) error
	ReplaceRecordOverride(ctx context.Context, ov RecordOverride) error
	RemoveRecordOverride(ctx context.Context, actorID int64, capabilityKey, ownerType string, ownerID int64) error
}

// MembershipWriter is the write half of the membership store.
type MembershipWriter interface {
	ReplaceMembership(ctx context.Context, m Membership) error
	RemoveMembership(ctx context.Context, actorID, teamID int64) error
}

// Invalidator is the slice of the caching decorator the admin surface
// needs. Every mutation here fires the matching invalidation, which is
// the correctness-critical contract between the engine and its write
// paths: skip it and reads may be stale for up to one TTL.
type Invalidator interface {
	InvalidateActor(ctx context.Context, actorID int64) error
	InvalidateCapability(ctx context.Context, actorID int64, capabilityKey string) error
	InvalidateRecord(ctx context.Context, ownerType string, ownerID int64) error
}

// Admin is the administrative mutation surface for memberships and
// overrides. The resolver never writes; all grants, revokes and role
// changes come through here.
type Admin struct {
	registry    *Registry
	overrides   OverrideWriter
	memberships MembershipWriter
	invalidator Invalidator
	logger      *slog.Logger
}

// NewAdmin wires the admin surface.
func NewAdmin(registry *Registry, overrides OverrideWriter, memberships MembershipWriter, invalidator Invalidator, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		registry:    registry,
		overrides:   overrides,
		memberships: memberships,
		invalidator: invalidator,
		logger:      logger,
	}
}

// SetActorOverride creates or replaces an actor-level override. A nil
// teamID makes the override global.
func (a *Admin) SetActorOverride(ctx context.Context, actorID int64, capabilityKey string, teamID *int64, grantType GrantType, grantedBy int64, expiresAt *time.Time) error {
	if _, ok := a.registry.Lookup(capabilityKey); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, capabilityKey)
	}
	err := a.overrides.ReplaceActorOverride(ctx, ActorOverride{
		ActorID:       actorID,
		CapabilityKey: capabilityKey,
		TeamID:        teamID,
		GrantType:     grantType,
		GrantedBy:     grantedBy,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return err
	}
	a.invalidateCapability(ctx, actorID, capabilityKey)
	return nil
}

// RemoveActorOverride deletes an actor-level override.
func (a *Admin) RemoveActorOverride(ctx context.Context, actorID int64, capabilityKey string, teamID *int64) error {
	if err := a.overrides.RemoveActorOverride(ctx, actorID, capabilityKey, teamID); err != nil {
		return err
	}
	a.invalidateCapability(ctx, actorID, capabilityKey)
	return nil
}

// SetRecordOverride creates or replaces a record-level override.
func (a *Admin) SetRecordOverride(ctx context.Context, actorID int64, capabilityKey string, record TeamScoped, grantType GrantType, grantedBy int64, expiresAt *time.Time) error {
	if _, ok := a.registry.Lookup(capabilityKey); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, capabilityKey)
	}
	err := a.overrides.ReplaceRecordOverride(ctx, RecordOverride{
		ActorID:       actorID,
		CapabilityKey: capabilityKey,
		OwnerType:     record.OwnerType(),
		OwnerID:       record.OwnerID(),
		GrantType:     grantType,
		GrantedBy:     grantedBy,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return err
	}
	a.invalidateRecord(ctx, record.OwnerType(), record.OwnerID())
	return nil
}

// RemoveRecordOverride deletes a record-level override.
func (a *Admin) RemoveRecordOverride(ctx context.Context, actorID int64, capabilityKey string, record TeamScoped) error {
	if err := a.overrides.RemoveRecordOverride(ctx, actorID, capabilityKey, record.OwnerType(), record.OwnerID()); err != nil {
		return err
	}
	a.invalidateRecord(ctx, record.OwnerType(), record.OwnerID())
	return nil
}

// SetMembershipRole assigns or changes the actor's role on a team.
func (a *Admin) SetMembershipRole(ctx context.Context, actorID, teamID int64, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if err := a.memberships.ReplaceMembership(ctx, Membership{ActorID: actorID, TeamID: teamID, Role: role}); err != nil {
		return err
	}
	a.invalidateActor(ctx, actorID)
	return nil
}

// RemoveMembership removes the actor from a team.
func (a *Admin) RemoveMembership(ctx context.Context, actorID, teamID int64) error {
	if err := a.memberships.RemoveMembership(ctx, actorID, teamID); err != nil {
		return err
	}
	a.invalidateActor(ctx, actorID)
	return nil
}

// Invalidation failures are logged, not returned: the write itself
// succeeded and the cache self-heals within one TTL.

func (a *Admin) invalidateActor(ctx context.Context, actorID int64) {
	if err := a.invalidator.InvalidateActor(ctx, actorID); err != nil {
		a.logger.Warn("authz invalidate actor", slog.Int64("actor_id", actorID), slog.Any("error", err))
	}
}

func (a *Admin) invalidateCapability(ctx context.Context, actorID int64, capabilityKey string) {
	if err := a.invalidator.InvalidateCapability(ctx, actorID, capabilityKey); err != nil {
		a.logger.Warn("authz invalidate capability", slog.Int64("actor_id", actorID), slog.String("capability", capabilityKey), slog.Any("error", err))
	}
}

func (a *Admin) invalidateRecord(ctx context.Context, ownerType string, ownerID int64) {
	if err := a.invalidator.InvalidateRecord(ctx, ownerType, ownerID); err != nil {
		a.logger.Warn("authz invalidate record", slog.String("owner_type", ownerType), slog.Int64("owner_id", ownerID), slog.Any("error", err))
	}
}
