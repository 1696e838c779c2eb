package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meertime/dataportal/internal/db/models"
)

// ObservationRepository reads pulsars and observations
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository creates a new ObservationRepository
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// GetPulsarByName retrieves a pulsar by its J-name
func (r *ObservationRepository) GetPulsarByName(ctx context.Context, name string) (*models.Pulsar, error) {
	var p models.Pulsar
	err := r.db.GetContext(ctx, &p, `SELECT id, name, created_at FROM pulsars WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pulsar: %w", err)
	}
	return &p, nil
}

const observationSelect = `
	SELECT o.id, o.pulsar_id, ps.name AS pulsar_name, o.telescope, o.utc_start, o.beam,
	       o.obs_type, o.embargo_end_date, o.ephemeris_id, o.created_at,` + projectColumns + `
	FROM observations o
	JOIN pulsars ps ON ps.id = o.pulsar_id
	JOIN projects p ON p.id = o.project_id`

// buildObservationQuery turns criteria into a WHERE clause with positional arguments
func buildObservationQuery(c models.ObservationCriteria) (string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if c.PulsarName != "" {
		add("ps.name = $%d", c.PulsarName)
	}
	if c.Telescope != "" {
		add("o.telescope = $%d", c.Telescope)
	}
	if c.ObsType != "" {
		add("o.obs_type = $%d", c.ObsType)
	}
	if c.UTCStart != nil {
		add("o.utc_start = $%d", c.UTCStart.UTC())
	}
	if c.Beam != nil {
		add("o.beam = $%d", *c.Beam)
	}
	if len(c.ExcludeProjects) > 0 {
		add("NOT (p.code = ANY($%d))", pq.Array(c.ExcludeProjects))
	}

	query := observationSelect
	if len(where) > 0 {
		query += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	return query, args
}

// List returns the observations matching the criteria ordered by start time
func (r *ObservationRepository) List(ctx context.Context, c models.ObservationCriteria) ([]*models.Observation, error) {
	query, args := buildObservationQuery(c)
	observations := []*models.Observation{}
	if err := r.db.SelectContext(ctx, &observations, query+"\n\tORDER BY o.utc_start, o.beam, o.id", args...); err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	return observations, nil
}

// Find returns the first observation matching the criteria, or nil
func (r *ObservationRepository) Find(ctx context.Context, c models.ObservationCriteria) (*models.Observation, error) {
	query, args := buildObservationQuery(c)
	var obs models.Observation
	err := r.db.GetContext(ctx, &obs, query+"\n\tORDER BY o.id LIMIT 1", args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find observation: %w", err)
	}
	return &obs, nil
}

// ListImages returns the pipeline images of an observation. The observation is
// attached to each image so embargo checks see its subject.
func (r *ObservationRepository) ListImages(ctx context.Context, obs *models.Observation) ([]*models.PipelineImage, error) {
	images := []*models.PipelineImage{}
	err := r.db.SelectContext(ctx, &images, `
		SELECT id, observation_id, pipeline_run_id, image_type, resolution, cleaned, path, created_at
		FROM pipeline_images
		WHERE observation_id = $1
		ORDER BY image_type, resolution, id`,
		obs.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline images: %w", err)
	}
	for _, img := range images {
		img.Observation = obs
	}
	return images, nil
}

// ListFiles returns the pipeline files of an observation with the observation attached
func (r *ObservationRepository) ListFiles(ctx context.Context, obs *models.Observation) ([]*models.PipelineFile, error) {
	files := []*models.PipelineFile{}
	err := r.db.SelectContext(ctx, &files, `
		SELECT id, observation_id, pipeline_run_id, file_type, path, created_at
		FROM pipeline_files
		WHERE observation_id = $1
		ORDER BY file_type, id`,
		obs.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline files: %w", err)
	}
	for _, f := range files {
		f.Observation = obs
	}
	return files, nil
}
