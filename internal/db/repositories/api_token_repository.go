package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meertime/dataportal/internal/db/models"
)

// APITokenRepository stores hashed API tokens
type APITokenRepository struct {
	db *sqlx.DB
}

// NewAPITokenRepository creates a new APITokenRepository
func NewAPITokenRepository(db *sqlx.DB) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// Create stores a token. ID and CreatedAt are assigned here.
func (r *APITokenRepository) Create(ctx context.Context, token *models.APIToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO api_tokens (id, user_id, name, token_hash, token_prefix, expires_at, created_at)
		VALUES (:id, :user_id, :name, :token_hash, :token_prefix, :expires_at, :created_at)`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", err)
	}
	return nil
}

// ListByPrefix returns the candidate tokens sharing a display prefix. The caller
// compares hashes; prefixes are not unique.
func (r *APITokenRepository) ListByPrefix(ctx context.Context, prefix string) ([]models.APIToken, error) {
	tokens := []models.APIToken{}
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT id, user_id, name, token_hash, token_prefix, expires_at, last_used_at, created_at
		FROM api_tokens
		WHERE token_prefix = $1`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api tokens: %w", err)
	}
	return tokens, nil
}

// ListByUser returns a user's tokens, newest first
func (r *APITokenRepository) ListByUser(ctx context.Context, userID int64) ([]models.APIToken, error) {
	tokens := []models.APIToken{}
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT id, user_id, name, token_hash, token_prefix, expires_at, last_used_at, created_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list api tokens: %w", err)
	}
	return tokens, nil
}

// TouchLastUsed records a successful authentication
func (r *APITokenRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update api token: %w", err)
	}
	return nil
}

// Delete removes a token owned by the user. It reports whether a row was removed.
func (r *APITokenRepository) Delete(ctx context.Context, userID int64, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete api token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete api token: %w", err)
	}
	return n > 0, nil
}
