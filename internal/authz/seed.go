package authz

// Capability keys seeded for the platform. Custom capabilities may be
// registered alongside these at provisioning time.
const (
	CapAppsRead        = "apps:read"
	CapAppsWrite       = "apps:write"
	CapAppsDelete      = "apps:delete"
	CapProblemsRead    = "problems:read"
	CapProblemsResolve = "problems:resolve"
	CapProblemsDelete  = "problems:delete"
	CapCommentsWrite   = "comments:write"
	CapWatchersManage  = "watchers:manage"
	CapMembersManage   = "members:manage"
	CapTeamsManage     = "teams:manage"
	CapTeamsDelete     = "teams:delete"
)

// SeedRegistry returns the registry pre-populated with the platform
// capabilities.
func SeedRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(CapAppsRead, "View apps and their configuration", true)
	r.MustRegister(CapAppsWrite, "Create and edit apps", true)
	r.MustRegister(CapAppsDelete, "Delete apps", true)
	r.MustRegister(CapProblemsRead, "View problems and notices", true)
	r.MustRegister(CapProblemsResolve, "Resolve and reopen problems", true)
	r.MustRegister(CapProblemsDelete, "Delete problems", true)
	r.MustRegister(CapCommentsWrite, "Comment on problems", true)
	r.MustRegister(CapWatchersManage, "Manage app watchers and notification targets", true)
	r.MustRegister(CapMembersManage, "Manage team members and their roles", true)
	r.MustRegister(CapTeamsManage, "Edit team settings", true)
	r.MustRegister(CapTeamsDelete, "Delete teams", true)
	return r
}

// SeedRoleTable returns the default role grant table. Each role's set is
// a strict superset of the set below it; the resolver's highest-role
// fallback depends on that nesting.
func SeedRoleTable() *RoleTable {
	viewer := []string{CapAppsRead, CapProblemsRead}
	member := append([]string{CapProblemsResolve, CapCommentsWrite}, viewer...)
	developer := append([]string{CapAppsWrite, CapProblemsDelete, CapWatchersManage}, member...)
	admin := append([]string{CapAppsDelete, CapMembersManage, CapTeamsManage}, developer...)
	owner := append([]string{CapTeamsDelete}, admin...)
	return NewRoleTable(map[Role][]string{
		RoleViewer:    viewer,
		RoleMember:    member,
		RoleDeveloper: developer,
		RoleAdmin:     admin,
		RoleOwner:     owner,
	})
}
