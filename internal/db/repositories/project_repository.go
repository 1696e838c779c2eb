// Package repositories implements the data access layer for the portal. Each repository
// type owns the queries for one domain entity and scans rows with sqlx. Lookups that find
// nothing return (nil, nil); callers decide whether that is an error.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/meertime/dataportal/internal/db/models"
)

// ProjectRepository handles project queries and embargo period changes
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectSelect = `
	SELECT id, code, short_name, main_project, embargo_period_seconds, description, created_at, updated_at
	FROM projects`

// GetByCode retrieves a project by its code
func (r *ProjectRepository) GetByCode(ctx context.Context, code string) (*models.Project, error) {
	var p models.Project
	err := r.db.GetContext(ctx, &p, projectSelect+` WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", code, err)
	}
	return &p, nil
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	var p models.Project
	err := r.db.GetContext(ctx, &p, projectSelect+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}
	return &p, nil
}

// List returns all projects, optionally restricted to one main project
func (r *ProjectRepository) List(ctx context.Context, mainProject string) ([]models.Project, error) {
	projects := []models.Project{}
	var err error
	if mainProject == "" {
		err = r.db.SelectContext(ctx, &projects, projectSelect+` ORDER BY main_project, code`)
	} else {
		err = r.db.SelectContext(ctx, &projects, projectSelect+` WHERE main_project = $1 ORDER BY code`, mainProject)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// UpdateEmbargoPeriod stores a new embargo period. Access decisions read the period
// live, so nothing else has to change for them; see RefreshEmbargoEndDates for the
// listing cache.
func (r *ProjectRepository) UpdateEmbargoPeriod(ctx context.Context, projectID int64, period time.Duration) error {
	if period < 0 {
		return fmt.Errorf("embargo period must not be negative: %s", period)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET embargo_period_seconds = $2, updated_at = NOW()
		WHERE id = $1`,
		projectID, int64(period/time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to update embargo period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update embargo period: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %d not found", projectID)
	}
	return nil
}

// RefreshEmbargoEndDates recomputes the stored embargo_end_date of every observation in
// the project from its start time and the project's current period. It returns the
// number of observations touched.
func (r *ProjectRepository) RefreshEmbargoEndDates(ctx context.Context, projectID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE observations o
		SET embargo_end_date = o.utc_start + make_interval(secs => p.embargo_period_seconds)
		FROM projects p
		WHERE o.project_id = p.id AND p.id = $1`,
		projectID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh embargo end dates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to refresh embargo end dates: %w", err)
	}
	return n, nil
}
