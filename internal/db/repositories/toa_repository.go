package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meertime/dataportal/internal/db/models"
)

// ToaRepository groups ToA rows into bundles
type ToaRepository struct {
	db *sqlx.DB
}

// NewToaRepository creates a new ToaRepository
func NewToaRepository(db *sqlx.DB) *ToaRepository {
	return &ToaRepository{db: db}
}

// BundlesForObservations returns one bundle per (observation, ToA project) at the given
// decimation. The project is the ToA's own, which may differ from the observation's.
func (r *ToaRepository) BundlesForObservations(ctx context.Context, observationIDs []int64, d models.Decimation) ([]models.ToaBundle, error) {
	if len(observationIDs) == 0 {
		return nil, nil
	}
	bundles := []models.ToaBundle{}
	err := r.db.SelectContext(ctx, &bundles, `
		SELECT t.observation_id, t.dm_corrected, t.nsub_type, t.obs_nchan, t.obs_npol,
		       COUNT(*) AS row_count,`+projectColumns+`
		FROM toas t
		JOIN projects p ON p.id = t.project_id
		WHERE t.observation_id = ANY($1)
		  AND t.dm_corrected = $2 AND t.nsub_type = $3 AND t.obs_nchan = $4 AND t.obs_npol = $5
		GROUP BY t.observation_id, t.dm_corrected, t.nsub_type, t.obs_nchan, t.obs_npol, p.id
		ORDER BY t.observation_id, p.code`,
		pq.Array(observationIDs), d.DMCorrected, d.NsubType, d.Nchan, d.Npol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list toa bundles: %w", err)
	}
	return bundles, nil
}
