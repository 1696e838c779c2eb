package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meertime/dataportal/internal/db/models"
)

// ErrDuplicatePendingRequest is returned when a user already has a pending request
// for the project
var ErrDuplicatePendingRequest = errors.New("a pending membership request already exists")

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures
const uniqueViolation = "23505"

// MembershipRepository handles project memberships and membership requests
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// ActiveProjectIDs returns the projects in which the user holds an active membership.
// Inactive rows are ignored.
func (r *MembershipRepository) ActiveProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT project_id FROM project_memberships
		WHERE user_id = $1 AND is_active = true
		ORDER BY project_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load active memberships: %w", err)
	}
	return ids, nil
}

// Get returns the membership row for a user and project, active or not
func (r *MembershipRepository) Get(ctx context.Context, userID, projectID int64) (*models.ProjectMembership, error) {
	var m models.ProjectMembership
	err := r.db.GetContext(ctx, &m, `
		SELECT id, user_id, project_id, role, is_active, created_at, updated_at
		FROM project_memberships
		WHERE user_id = $1 AND project_id = $2`,
		userID, projectID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// ListMembers returns the active members of a project with their user details
func (r *MembershipRepository) ListMembers(ctx context.Context, projectID int64) ([]models.ProjectMemberWithUser, error) {
	members := []models.ProjectMemberWithUser{}
	err := r.db.SelectContext(ctx, &members, `
		SELECT m.id, m.user_id, m.project_id, m.role, m.is_active, m.created_at, m.updated_at,
		       u.username, u.email
		FROM project_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1 AND m.is_active = true
		ORDER BY u.username`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// CountActiveOwners counts active owners of a project
func (r *MembershipRepository) CountActiveOwners(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM project_memberships
		WHERE project_id = $1 AND role = $2 AND is_active = true`,
		projectID, models.RoleOwner,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

// Upsert creates the membership or reactivates the existing row for the pair.
// There is never more than one row per (user, project).
func (r *MembershipRepository) Upsert(ctx context.Context, userID, projectID int64, role models.MembershipRole) (*models.ProjectMembership, error) {
	return upsertMembership(ctx, r.db, userID, projectID, role)
}

func upsertMembership(ctx context.Context, q sqlx.QueryerContext, userID, projectID int64, role models.MembershipRole) (*models.ProjectMembership, error) {
	var m models.ProjectMembership
	err := sqlx.GetContext(ctx, q, &m, `
		INSERT INTO project_memberships (user_id, project_id, role, is_active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (user_id, project_id)
		DO UPDATE SET is_active = true, role = EXCLUDED.role, updated_at = NOW()
		RETURNING id, user_id, project_id, role, is_active, created_at, updated_at`,
		userID, projectID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert membership: %w", err)
	}
	return &m, nil
}

// Deactivate marks a membership inactive; the row is kept as history.
// It reports whether an active membership existed.
func (r *MembershipRepository) Deactivate(ctx context.Context, userID, projectID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE project_memberships
		SET is_active = false, updated_at = NOW()
		WHERE user_id = $1 AND project_id = $2 AND is_active = true`,
		userID, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate membership: %w", err)
	}
	return n > 0, nil
}

// CreateRequest stores a pending membership request
func (r *MembershipRepository) CreateRequest(ctx context.Context, req *models.ProjectMembershipRequest) error {
	req.Status = models.RequestPending
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO project_membership_requests (user_id, project_id, status, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		req.UserID, req.ProjectID, req.Status, req.Message,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicatePendingRequest
		}
		return fmt.Errorf("failed to create membership request: %w", err)
	}
	return nil
}

// GetRequest retrieves a membership request by ID
func (r *MembershipRepository) GetRequest(ctx context.Context, id int64) (*models.ProjectMembershipRequest, error) {
	var req models.ProjectMembershipRequest
	err := r.db.GetContext(ctx, &req, `
		SELECT id, user_id, project_id, status, message, reviewed_by, created_at, updated_at
		FROM project_membership_requests
		WHERE id = $1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership request: %w", err)
	}
	return &req, nil
}

// ListPendingRequests returns a project's pending requests, oldest first
func (r *MembershipRepository) ListPendingRequests(ctx context.Context, projectID int64) ([]models.ProjectMembershipRequest, error) {
	reqs := []models.ProjectMembershipRequest{}
	err := r.db.SelectContext(ctx, &reqs, `
		SELECT id, user_id, project_id, status, message, reviewed_by, created_at, updated_at
		FROM project_membership_requests
		WHERE project_id = $1 AND status = $2
		ORDER BY created_at, id`,
		projectID, models.RequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership requests: %w", err)
	}
	return reqs, nil
}

// ApproveRequest marks a pending request approved and activates the membership in
// one transaction. It returns nil when the request was no longer pending.
func (r *MembershipRepository) ApproveRequest(ctx context.Context, req *models.ProjectMembershipRequest, reviewerID int64, role models.MembershipRole) (*models.ProjectMembership, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ok, err := resolveRequest(ctx, tx, req.ID, models.RequestApproved, reviewerID)
	if err != nil || !ok {
		return nil, err
	}
	m, err := upsertMembership(ctx, tx, req.UserID, req.ProjectID, role)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}
	return m, nil
}

// RejectRequest marks a pending request rejected. It reports false when the request
// was no longer pending.
func (r *MembershipRepository) RejectRequest(ctx context.Context, id, reviewerID int64) (bool, error) {
	return resolveRequest(ctx, r.db, id, models.RequestRejected, reviewerID)
}

func resolveRequest(ctx context.Context, e sqlx.ExecerContext, id int64, status models.MembershipRequestStatus, reviewerID int64) (bool, error) {
	res, err := e.ExecContext(ctx, `
		UPDATE project_membership_requests
		SET status = $2, reviewed_by = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, status, reviewerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve membership request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to resolve membership request: %w", err)
	}
	return n > 0, nil
}
