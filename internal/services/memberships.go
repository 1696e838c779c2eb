package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/db/repositories"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/telemetry"
)

// ProjectStore reads projects and changes their embargo period
type ProjectStore interface {
	GetByCode(ctx context.Context, code string) (*models.Project, error)
	List(ctx context.Context, mainProject string) ([]models.Project, error)
	UpdateEmbargoPeriod(ctx context.Context, projectID int64, period time.Duration) error
	RefreshEmbargoEndDates(ctx context.Context, projectID int64) (int64, error)
}

// MembershipStore persists memberships and membership requests
type MembershipStore interface {
	Get(ctx context.Context, userID, projectID int64) (*models.ProjectMembership, error)
	ListMembers(ctx context.Context, projectID int64) ([]models.ProjectMemberWithUser, error)
	CountActiveOwners(ctx context.Context, projectID int64) (int, error)
	Deactivate(ctx context.Context, userID, projectID int64) (bool, error)
	CreateRequest(ctx context.Context, req *models.ProjectMembershipRequest) error
	GetRequest(ctx context.Context, id int64) (*models.ProjectMembershipRequest, error)
	ListPendingRequests(ctx context.Context, projectID int64) ([]models.ProjectMembershipRequest, error)
	ApproveRequest(ctx context.Context, req *models.ProjectMembershipRequest, reviewerID int64, role models.MembershipRole) (*models.ProjectMembership, error)
	RejectRequest(ctx context.Context, id, reviewerID int64) (bool, error)
}

// Projects implements project administration and the membership workflow. The access
// engine reads the memberships written here on the next request; nothing is cached.
type Projects struct {
	projects    ProjectStore
	memberships MembershipStore
}

// NewProjects creates a Projects service
func NewProjects(projects ProjectStore, memberships MembershipStore) *Projects {
	return &Projects{projects: projects, memberships: memberships}
}

func (s *Projects) project(ctx context.Context, code string) (*models.Project, error) {
	p, err := s.projects.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, code)
	}
	return p, nil
}

// requireManager passes superusers and active owners or managers of the project
func (s *Projects) requireManager(ctx context.Context, p *embargo.Principal, project *models.Project) error {
	if p.IsAnonymous() {
		return ErrUnauthenticated
	}
	if p.IsSuperuser() {
		return nil
	}
	m, err := s.memberships.Get(ctx, p.UserID(), project.ID)
	if err != nil {
		return err
	}
	if m == nil || !m.IsActive || !m.Role.CanManage() {
		return ErrForbidden
	}
	return nil
}

// ListProjects returns all projects, optionally of one main project
func (s *Projects) ListProjects(ctx context.Context, mainProject string) ([]models.Project, error) {
	return s.projects.List(ctx, mainProject)
}

// GetProject returns one project
func (s *Projects) GetProject(ctx context.Context, code string) (*models.Project, error) {
	return s.project(ctx, code)
}

// UpdateEmbargoPeriod changes a project's embargo period. Superusers only. Access
// decisions pick up the new period immediately; the stored embargo end dates used by
// listings are refreshed before returning.
func (s *Projects) UpdateEmbargoPeriod(ctx context.Context, p *embargo.Principal, code string, days int64) (*models.Project, error) {
	if p.IsAnonymous() {
		return nil, ErrUnauthenticated
	}
	if !p.IsSuperuser() {
		return nil, ErrForbidden
	}
	if days < 0 {
		return nil, fmt.Errorf("%w: embargo period must not be negative", ErrInvalidInput)
	}
	project, err := s.project(ctx, code)
	if err != nil {
		return nil, err
	}

	period := time.Duration(days) * 24 * time.Hour
	if err := s.projects.UpdateEmbargoPeriod(ctx, project.ID, period); err != nil {
		return nil, err
	}
	n, err := s.projects.RefreshEmbargoEndDates(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	slog.Info("embargo period updated", "project", project.Code, "days", days, "observations_refreshed", n, "by", p.Username())

	project.EmbargoPeriodSeconds = int64(period / time.Second)
	return project, nil
}

// RequestMembership files a pending request for the principal to join a project
func (s *Projects) RequestMembership(ctx context.Context, p *embargo.Principal, code, message string) (*models.ProjectMembershipRequest, error) {
	if p.IsAnonymous() {
		return nil, ErrUnauthenticated
	}
	project, err := s.project(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.IsMemberOf(project.ID) {
		return nil, fmt.Errorf("%w: already a member of %s", ErrConflict, project.Code)
	}

	req := &models.ProjectMembershipRequest{UserID: p.UserID(), ProjectID: project.ID, Message: message}
	if err := s.memberships.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, repositories.ErrDuplicatePendingRequest) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, err
	}
	telemetry.MembershipRequestsTotal.WithLabelValues("requested").Inc()
	return req, nil
}

// pendingRequest loads a request and checks it belongs to the project and is pending
func (s *Projects) pendingRequest(ctx context.Context, project *models.Project, id int64) (*models.ProjectMembershipRequest, error) {
	req, err := s.memberships.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil || req.ProjectID != project.ID {
		return nil, fmt.Errorf("%w: membership request %d", ErrNotFound, id)
	}
	if !req.IsPending() {
		return nil, fmt.Errorf("%w: request already %s", ErrConflict, req.Status)
	}
	return req, nil
}

// ApproveRequest grants membership. Owners, managers and superusers only. A user who
// left earlier has the old membership row reactivated.
func (s *Projects) ApproveRequest(ctx context.Context, p *embargo.Principal, code string, requestID int64) (*models.ProjectMembership, error) {
	project, err := s.project(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, p, project); err != nil {
		return nil, err
	}
	req, err := s.pendingRequest(ctx, project, requestID)
	if err != nil {
		return nil, err
	}

	m, err := s.memberships.ApproveRequest(ctx, req, p.UserID(), models.RoleMember)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: request is no longer pending", ErrConflict)
	}
	telemetry.MembershipRequestsTotal.WithLabelValues("approved").Inc()
	slog.Info("membership approved", "project", project.Code, "user_id", req.UserID, "by", p.Username())
	return m, nil
}

// RejectRequest declines a pending request. Owners, managers and superusers only.
func (s *Projects) RejectRequest(ctx context.Context, p *embargo.Principal, code string, requestID int64) error {
	project, err := s.project(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requireManager(ctx, p, project); err != nil {
		return err
	}
	if _, err := s.pendingRequest(ctx, project, requestID); err != nil {
		return err
	}

	ok, err := s.memberships.RejectRequest(ctx, requestID, p.UserID())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: request is no longer pending", ErrConflict)
	}
	telemetry.MembershipRequestsTotal.WithLabelValues("rejected").Inc()
	return nil
}

// ListPendingRequests returns a project's open requests. Owners, managers and
// superusers only.
func (s *Projects) ListPendingRequests(ctx context.Context, p *embargo.Principal, code string) ([]models.ProjectMembershipRequest, error) {
	project, err := s.project(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, p, project); err != nil {
		return nil, err
	}
	return s.memberships.ListPendingRequests(ctx, project.ID)
}

// ListMembers returns a project's active members. Owners, managers and superusers only.
func (s *Projects) ListMembers(ctx context.Context, p *embargo.Principal, code string) ([]models.ProjectMemberWithUser, error) {
	project, err := s.project(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, p, project); err != nil {
		return nil, err
	}
	return s.memberships.ListMembers(ctx, project.ID)
}

// LeaveProject deactivates the principal's membership. The last active owner cannot
// leave.
func (s *Projects) LeaveProject(ctx context.Context, p *embargo.Principal, code string) error {
	if p.IsAnonymous() {
		return ErrUnauthenticated
	}
	project, err := s.project(ctx, code)
	if err != nil {
		return err
	}
	m, err := s.memberships.Get(ctx, p.UserID(), project.ID)
	if err != nil {
		return err
	}
	if m == nil || !m.IsActive {
		return fmt.Errorf("%w: not a member of %s", ErrNotFound, project.Code)
	}
	if m.Role == models.RoleOwner {
		owners, err := s.memberships.CountActiveOwners(ctx, project.ID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return fmt.Errorf("%w: the last owner cannot leave the project", ErrConflict)
		}
	}

	if _, err := s.memberships.Deactivate(ctx, p.UserID(), project.ID); err != nil {
		return err
	}
	telemetry.MembershipRequestsTotal.WithLabelValues("left").Inc()
	return nil
}
