package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/meertime/dataportal/internal/db/models"
)

// EphemerisRepository lists ephemeris and template candidates for selection
type EphemerisRepository struct {
	db *sqlx.DB
}

// NewEphemerisRepository creates a new EphemerisRepository
func NewEphemerisRepository(db *sqlx.DB) *EphemerisRepository {
	return &EphemerisRepository{db: db}
}

// EphemerisCandidates returns a pulsar's ephemerides from projects of the main project,
// newest first with id as the tiebreak. HasToas reports whether any pipeline run that
// used the ephemeris produced ToAs.
func (r *EphemerisRepository) EphemerisCandidates(ctx context.Context, pulsarName, mainProject string) ([]*models.Ephemeris, error) {
	candidates := []*models.Ephemeris{}
	err := r.db.SelectContext(ctx, &candidates, `
		SELECT e.id, e.pulsar_id, e.created_at, e.ephemeris_data, e.ephemeris_hash, e.comment,
		       EXISTS (
		           SELECT 1 FROM pipeline_runs pr
		           JOIN toas t ON t.pipeline_run_id = pr.id
		           WHERE pr.ephemeris_id = e.id
		       ) AS has_toas,`+projectColumns+`
		FROM ephemerides e
		JOIN pulsars ps ON ps.id = e.pulsar_id
		JOIN projects p ON p.id = e.project_id
		WHERE ps.name = $1 AND p.main_project = $2
		ORDER BY e.created_at DESC, e.id DESC`,
		pulsarName, mainProject,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ephemerides: %w", err)
	}
	return candidates, nil
}

// TemplateCandidates returns a pulsar's templates from projects of the main project,
// newest first. An empty band matches every band.
func (r *EphemerisRepository) TemplateCandidates(ctx context.Context, pulsarName, mainProject, band string) ([]*models.Template, error) {
	candidates := []*models.Template{}
	err := r.db.SelectContext(ctx, &candidates, `
		SELECT t.id, t.pulsar_id, t.band, t.created_at, t.template_file, t.template_hash,`+projectColumns+`
		FROM templates t
		JOIN pulsars ps ON ps.id = t.pulsar_id
		JOIN projects p ON p.id = t.project_id
		WHERE ps.name = $1 AND p.main_project = $2 AND ($3 = '' OR t.band = $3)
		ORDER BY t.created_at DESC, t.id DESC`,
		pulsarName, mainProject, band,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return candidates, nil
}
