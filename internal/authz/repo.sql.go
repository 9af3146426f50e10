package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/platform/db"
)

// ErrConflict indicates a concurrent writer won a unique-constraint race.
var ErrConflict = errors.New("authz: conflicting write")

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for memberships and
// overrides. It implements MembershipStore and OverrideStore for the
// resolver and carries the write methods used by the Admin service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActorTeams returns the ids of every team the actor belongs to.
func (r *Repository) ActorTeams(ctx context.Context, actorID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT team_id FROM memberships WHERE actor_id = $1 ORDER BY team_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var teams []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		teams = append(teams, id)
	}
	return teams, rows.Err()
}

// TeamRoles returns the actor's roles across the given teams.
func (r *Repository) TeamRoles(ctx context.Context, actorID int64, teamIDs []int64) ([]Role, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT role FROM memberships WHERE actor_id = $1 AND team_id = ANY($2)`, actorID, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, Role(role))
	}
	return roles, rows.Err()
}

// TeamMembers lists every membership on a team; used by cache warmup.
func (r *Repository) TeamMembers(ctx context.Context, teamID int64) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `SELECT actor_id, team_id, role, created_at FROM memberships WHERE team_id = $1 ORDER BY actor_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Membership
	for rows.Next() {
		var m Membership
		var role string
		if err := rows.Scan(&m.ActorID, &m.TeamID, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

// ActorOverride looks up the override for (actor, capability, team). A
// nil teamID selects the global sentinel row. Expired rows are returned;
// the resolver filters them.
func (r *Repository) ActorOverride(ctx context.Context, actorID int64, capabilityKey string, teamID *int64) (*ActorOverride, error) {
	const base = `
		SELECT ao.actor_id, p.key, ao.team_id, ao.grant_type, ao.granted_by, ao.expires_at, ao.created_at
		FROM actor_overrides ao
		JOIN permissions p ON p.id = ao.permission_id
		WHERE ao.actor_id = $1 AND p.key = $2`
	var row pgx.Row
	if teamID == nil {
		row = r.pool.QueryRow(ctx, base+` AND ao.team_id IS NULL`, actorID, capabilityKey)
	} else {
		row = r.pool.QueryRow(ctx, base+` AND ao.team_id = $3`, actorID, capabilityKey, *teamID)
	}
	var ov ActorOverride
	var grantType string
	err := row.Scan(&ov.ActorID, &ov.CapabilityKey, &ov.TeamID, &grantType, &ov.GrantedBy, &ov.ExpiresAt, &ov.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ov.GrantType = GrantType(grantType)
	return &ov, nil
}

// RecordOverride looks up the override for (actor, owner, capability).
func (r *Repository) RecordOverride(ctx context.Context, actorID int64, capabilityKey, ownerType string, ownerID int64) (*RecordOverride, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT ro.actor_id, p.key, ro.owner_type, ro.owner_id, ro.grant_type, ro.granted_by, ro.expires_at, ro.created_at
		FROM record_overrides ro
		JOIN permissions p ON p.id = ro.permission_id
		WHERE ro.actor_id = $1 AND p.key = $2 AND ro.owner_type = $3 AND ro.owner_id = $4`,
		actorID, capabilityKey, ownerType, ownerID)
	var ov RecordOverride
	var grantType string
	err := row.Scan(&ov.ActorID, &ov.CapabilityKey, &ov.OwnerType, &ov.OwnerID, &grantType, &ov.GrantedBy, &ov.ExpiresAt, &ov.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ov.GrantType = GrantType(grantType)
	return &ov, nil
}

// ReplaceActorOverride upserts the unique (actor, capability, team) row.
func (r *Repository) ReplaceActorOverride(ctx context.Context, ov ActorOverride) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		permID, err := capabilityID(ctx, tx, ov.CapabilityKey)
		if err != nil {
			return err
		}
		if ov.TeamID == nil {
			_, err = tx.Exec(ctx, `DELETE FROM actor_overrides WHERE actor_id = $1 AND permission_id = $2 AND team_id IS NULL`, ov.ActorID, permID)
		} else {
			_, err = tx.Exec(ctx, `DELETE FROM actor_overrides WHERE actor_id = $1 AND permission_id = $2 AND team_id = $3`, ov.ActorID, permID, *ov.TeamID)
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO actor_overrides (actor_id, permission_id, team_id, grant_type, granted_by, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ov.ActorID, permID, ov.TeamID, string(ov.GrantType), ov.GrantedBy, ov.ExpiresAt)
		return mapWriteError(err)
	})
}

// RemoveActorOverride deletes the (actor, capability, team) row if any.
func (r *Repository) RemoveActorOverride(ctx context.Context, actorID int64, capabilityKey string, teamID *int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		permID, err := capabilityID(ctx, tx, capabilityKey)
		if err != nil {
			return err
		}
		if teamID == nil {
			_, err = tx.Exec(ctx, `DELETE FROM actor_overrides WHERE actor_id = $1 AND permission_id = $2 AND team_id IS NULL`, actorID, permID)
		} else {
			_, err = tx.Exec(ctx, `DELETE FROM actor_overrides WHERE actor_id = $1 AND permission_id = $2 AND team_id = $3`, actorID, permID, *teamID)
		}
		return err
	})
}

// ReplaceRecordOverride upserts the unique (actor, owner, capability) row.
func (r *Repository) ReplaceRecordOverride(ctx context.Context, ov RecordOverride) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		permID, err := capabilityID(ctx, tx, ov.CapabilityKey)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM record_overrides
			WHERE actor_id = $1 AND permission_id = $2 AND owner_type = $3 AND owner_id = $4`,
			ov.ActorID, permID, ov.OwnerType, ov.OwnerID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO record_overrides (actor_id, permission_id, owner_type, owner_id, grant_type, granted_by, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ov.ActorID, permID, ov.OwnerType, ov.OwnerID, string(ov.GrantType), ov.GrantedBy, ov.ExpiresAt)
		return mapWriteError(err)
	})
}

// RemoveRecordOverride deletes the (actor, owner, capability) row if any.
func (r *Repository) RemoveRecordOverride(ctx context.Context, actorID int64, capabilityKey, ownerType string, ownerID int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		permID, err := capabilityID(ctx, tx, capabilityKey)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM record_overrides
			WHERE actor_id = $1 AND permission_id = $2 AND owner_type = $3 AND owner_id = $4`,
			actorID, permID, ownerType, ownerID)
		return err
	})
}

// ReplaceMembership upserts the actor's role on a team.
func (r *Repository) ReplaceMembership(ctx context.Context, m Membership) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO memberships (actor_id, team_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (actor_id, team_id) DO UPDATE SET role = EXCLUDED.role`,
		m.ActorID, m.TeamID, string(m.Role))
	return mapWriteError(err)
}

// RemoveMembership deletes the actor's membership on a team.
func (r *Repository) RemoveMembership(ctx context.Context, actorID, teamID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM memberships WHERE actor_id = $1 AND team_id = $2`, actorID, teamID)
	return err
}

// SyncRegistry writes registered capabilities to the permissions table so
// override rows can reference them. Existing rows keep their ids.
func (r *Repository) SyncRegistry(ctx context.Context, registry *Registry) error {
	for _, cap := range registry.Capabilities() {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO permissions (key, resource, action, description, system)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (key) DO UPDATE SET description = EXCLUDED.description`,
			cap.Key, cap.Resource, cap.Action, cap.Description, cap.System)
		if err != nil {
			return fmt.Errorf("authz: sync capability %s: %w", cap.Key, err)
		}
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func capabilityID(ctx context.Context, tx pgx.Tx, key string) (int64, error) {
	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM permissions WHERE key = $1`, key).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("authz: capability %q not provisioned", key)
		}
		return 0, err
	}
	return id, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
