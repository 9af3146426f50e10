package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/shared"
)

// Repository provides PostgreSQL backed persistence for apps and
// problems, loading each record together with its owning team ids so the
// loaded values satisfy authz.TeamScoped.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetApp fetches an app with its owning teams.
func (r *Repository) GetApp(ctx context.Context, id int64) (*App, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, api_key, created_at, updated_at FROM apps WHERE id = $1`, id)
	var app App
	if err := row.Scan(&app.ID, &app.Name, &app.APIKey, &app.CreatedAt, &app.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	teams, err := r.appTeams(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	app.TeamIDs = teams
	return &app, nil
}

// GetProblem fetches a problem with its app's owning teams.
func (r *Repository) GetProblem(ctx context.Context, id int64) (*Problem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, app_id, fingerprint, message, resolved, created_at, updated_at
		FROM problems WHERE id = $1`, id)
	var p Problem
	if err := row.Scan(&p.ID, &p.AppID, &p.Fingerprint, &p.Message, &p.Resolved, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	teams, err := r.appTeams(ctx, p.AppID)
	if err != nil {
		return nil, err
	}
	p.AppTeamIDs = teams
	return &p, nil
}

// TeamApps lists the ids of apps a team owns; used by cache warmup.
func (r *Repository) TeamApps(ctx context.Context, teamID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT app_id FROM app_teams WHERE team_id = $1 ORDER BY app_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) appTeams(ctx context.Context, appID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT team_id FROM app_teams WHERE app_id = $1 ORDER BY team_id`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
