package authz

import "sort"

// RoleTable is the static mapping from role to the capability keys the
// role grants by default. It is seed data: mutated only by administrative
// reseeding, never at check time.
//
// The "highest role wins" fallback in the resolver is only sound when the
// table is strictly nested by hierarchy rank, i.e. every capability a
// lower role grants is also granted to every higher role. That nesting is
// a modeling precondition, pinned by a regression test, not enforced here.
type RoleTable struct {
	grants map[Role]map[string]struct{}
}

// NewRoleTable builds a table from (role, capability key) pairs.
func NewRoleTable(defaults map[Role][]string) *RoleTable {
	grants := make(map[Role]map[string]struct{}, len(defaults))
	for role, keys := range defaults {
		set := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			set[key] = struct{}{}
		}
		grants[role] = set
	}
	return &RoleTable{grants: grants}
}

// Grants reports whether the role grants the capability by default.
func (t *RoleTable) Grants(role Role, key string) bool {
	_, ok := t.grants[role][key]
	return ok
}

// CapabilitiesFor returns the capability keys the role grants, sorted.
func (t *RoleTable) CapabilitiesFor(role Role) []string {
	set := t.grants[role]
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
