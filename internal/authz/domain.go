package authz

import "time"

// Actor is the principal being authorized.
type Actor struct {
	ID int64
	// SuperAdmin is the platform-wide override bit, orthogonal to the
	// role system. A super-admin passes every check.
	SuperAdmin bool
}

// Role is one of the fixed, ordered team roles.
type Role string

// Roles in strictly descending authority.
const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleMember    Role = "member"
	RoleViewer    Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer:    1,
	RoleMember:    2,
	RoleDeveloper: 3,
	RoleAdmin:     4,
	RoleOwner:     5,
}

// Rank returns the role's position in the hierarchy; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRank[r]
}

// Valid reports whether r names one of the fixed roles.
func (r Role) Valid() bool {
	return roleRank[r] > 0
}

// HighestRole picks the best-ranked role from the slice.
func HighestRole(roles []Role) (Role, bool) {
	var best Role
	for _, r := range roles {
		if r.Rank() > best.Rank() {
			best = r
		}
	}
	return best, best.Rank() > 0
}

// Capability is a named, checkable permission of shape "resource:action".
type Capability struct {
	Key         string
	Resource    string
	Action      string
	Description string
	// System marks seeded capabilities as opposed to custom ones.
	System bool
}

// Membership assigns an actor exactly one role on a team.
type Membership struct {
	ActorID   int64
	TeamID    int64
	Role      Role
	CreatedAt time.Time
}

// GrantType says whether an override adds or removes a capability.
type GrantType string

const (
	Grant  GrantType = "grant"
	Revoke GrantType = "revoke"
)

// ActorOverride grants or revokes a capability for an actor, either
// globally (TeamID nil) or scoped to one team.
type ActorOverride struct {
	ActorID       int64
	CapabilityKey string
	TeamID        *int64
	GrantType     GrantType
	GrantedBy     int64
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

// Active reports whether the override is in force at the given instant.
// An expired override is inert, as if it did not exist.
func (o ActorOverride) Active(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// RecordOverride grants or revokes a capability for an actor against one
// concrete owned record.
type RecordOverride struct {
	ActorID       int64
	CapabilityKey string
	OwnerType     string
	OwnerID       int64
	GrantType     GrantType
	GrantedBy     int64
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

// Active reports whether the override is in force at the given instant.
func (o RecordOverride) Active(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// TeamScoped is implemented by owned record types that can be the subject
// of a record-scoped check. OwningTeamIDs returns the teams the record
// belongs to, resolved at load time (a problem reports its app's teams).
type TeamScoped interface {
	OwnerType() string
	OwnerID() int64
	OwningTeamIDs() []int64
}

// RecordRef is a plain TeamScoped value for callers that already know the
// owner coordinates, e.g. cache warmup payloads.
type RecordRef struct {
	Type    string
	ID      int64
	TeamIDs []int64
}

func (r RecordRef) OwnerType() string      { return r.Type }
func (r RecordRef) OwnerID() int64         { return r.ID }
func (r RecordRef) OwningTeamIDs() []int64 { return r.TeamIDs }

// Scope is the optional context of a check: a team, a record, neither,
// or both. The zero value means "no scope".
type Scope struct {
	TeamID *int64
	Record TeamScoped
}

// TeamScope builds a team-only scope.
func TeamScope(teamID int64) Scope {
	return Scope{TeamID: &teamID}
}

// RecordScope builds a record-only scope.
func RecordScope(record TeamScoped) Scope {
	return Scope{Record: record}
}
