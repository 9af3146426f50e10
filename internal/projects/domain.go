package projects

import "time"

// App is an error-collecting application owned by one or more teams.
type App struct {
	ID        int64
	Name      string
	APIKey    string
	TeamIDs   []int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnerType implements authz.TeamScoped.
func (a *App) OwnerType() string { return "app" }

// OwnerID implements authz.TeamScoped.
func (a *App) OwnerID() int64 { return a.ID }

// OwningTeamIDs implements authz.TeamScoped.
func (a *App) OwningTeamIDs() []int64 { return a.TeamIDs }

// Problem is a deduplicated error group. It has no teams of its own;
// ownership is resolved through its app, so AppTeamIDs is populated when
// the problem is loaded.
type Problem struct {
	ID          int64
	AppID       int64
	Fingerprint string
	Message     string
	Resolved    bool
	AppTeamIDs  []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnerType implements authz.TeamScoped.
func (p *Problem) OwnerType() string { return "problem" }

// OwnerID implements authz.TeamScoped.
func (p *Problem) OwnerID() int64 { return p.ID }

// OwningTeamIDs implements authz.TeamScoped via the owning app.
func (p *Problem) OwningTeamIDs() []int64 { return p.AppTeamIDs }
