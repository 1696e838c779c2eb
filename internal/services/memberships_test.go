package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/db/repositories"
	"github.com/meertime/dataportal/internal/embargo"
)

type fakeProjects struct {
	projects  map[string]*models.Project
	refreshed []int64
}

func (f *fakeProjects) GetByCode(_ context.Context, code string) (*models.Project, error) {
	p, ok := f.projects[code]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) List(context.Context, string) ([]models.Project, error) {
	var out []models.Project
	for _, p := range f.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProjects) UpdateEmbargoPeriod(_ context.Context, id int64, period time.Duration) error {
	for _, p := range f.projects {
		if p.ID == id {
			p.EmbargoPeriodSeconds = int64(period / time.Second)
		}
	}
	return nil
}

func (f *fakeProjects) RefreshEmbargoEndDates(_ context.Context, id int64) (int64, error) {
	f.refreshed = append(f.refreshed, id)
	return 3, nil
}

type memberKey struct{ user, project int64 }

// fakeMemberships keeps one row per (user, project) like the unique constraint
type fakeMemberships struct {
	rows     map[memberKey]*models.ProjectMembership
	requests map[int64]*models.ProjectMembershipRequest
	nextID   int64
}

func newFakeMemberships() *fakeMemberships {
	return &fakeMemberships{rows: map[memberKey]*models.ProjectMembership{}, requests: map[int64]*models.ProjectMembershipRequest{}}
}

func (f *fakeMemberships) add(user, project int64, role models.MembershipRole, active bool) {
	f.nextID++
	f.rows[memberKey{user, project}] = &models.ProjectMembership{ID: f.nextID, UserID: user, ProjectID: project, Role: role, IsActive: active}
}

func (f *fakeMemberships) Get(_ context.Context, user, project int64) (*models.ProjectMembership, error) {
	return f.rows[memberKey{user, project}], nil
}

func (f *fakeMemberships) ListMembers(_ context.Context, project int64) ([]models.ProjectMemberWithUser, error) {
	var out []models.ProjectMemberWithUser
	for k, m := range f.rows {
		if k.project == project && m.IsActive {
			out = append(out, models.ProjectMemberWithUser{ProjectMembership: *m})
		}
	}
	return out, nil
}

func (f *fakeMemberships) CountActiveOwners(_ context.Context, project int64) (int, error) {
	n := 0
	for k, m := range f.rows {
		if k.project == project && m.IsActive && m.Role == models.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (f *fakeMemberships) Deactivate(_ context.Context, user, project int64) (bool, error) {
	m, ok := f.rows[memberKey{user, project}]
	if !ok || !m.IsActive {
		return false, nil
	}
	m.IsActive = false
	return true, nil
}

func (f *fakeMemberships) CreateRequest(_ context.Context, req *models.ProjectMembershipRequest) error {
	for _, r := range f.requests {
		if r.UserID == req.UserID && r.ProjectID == req.ProjectID && r.IsPending() {
			return repositories.ErrDuplicatePendingRequest
		}
	}
	f.nextID++
	req.ID = f.nextID
	req.Status = models.RequestPending
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeMemberships) GetRequest(_ context.Context, id int64) (*models.ProjectMembershipRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeMemberships) ListPendingRequests(_ context.Context, project int64) ([]models.ProjectMembershipRequest, error) {
	var out []models.ProjectMembershipRequest
	for _, r := range f.requests {
		if r.ProjectID == project && r.IsPending() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeMemberships) ApproveRequest(_ context.Context, req *models.ProjectMembershipRequest, reviewer int64, role models.MembershipRole) (*models.ProjectMembership, error) {
	r := f.requests[req.ID]
	if !r.IsPending() {
		return nil, nil
	}
	r.Status = models.RequestApproved
	r.ReviewedBy = &reviewer
	if m, ok := f.rows[memberKey{req.UserID, req.ProjectID}]; ok {
		m.IsActive = true
		m.Role = role
		return m, nil
	}
	f.add(req.UserID, req.ProjectID, role, true)
	return f.rows[memberKey{req.UserID, req.ProjectID}], nil
}

func (f *fakeMemberships) RejectRequest(_ context.Context, id, reviewer int64) (bool, error) {
	r := f.requests[id]
	if !r.IsPending() {
		return false, nil
	}
	r.Status = models.RequestRejected
	r.ReviewedBy = &reviewer
	return true, nil
}

const (
	ownerID   = int64(10)
	coOwnerID = int64(11)
	applicant = int64(42)
	bystander = int64(77)
	superuser = int64(1)
)

func newProjectsFixture() (*Projects, *fakeProjects, *fakeMemberships) {
	p := pta
	projects := &fakeProjects{projects: map[string]*models.Project{"PTA": &p}}
	memberships := newFakeMemberships()
	memberships.add(ownerID, pta.ID, models.RoleOwner, true)
	return NewProjects(projects, memberships), projects, memberships
}

func user(id int64, projects ...int64) *embargo.Principal {
	return embargo.NewAuthenticated(id, "user", projects)
}

func TestMembershipWorkflow_RequestApproveLeaveRejoin(t *testing.T) {
	svc, _, rows := newProjectsFixture()
	ctx := context.Background()

	req, err := svc.RequestMembership(ctx, user(applicant), "PTA", "timing array work")
	require.NoError(t, err)

	_, err = svc.RequestMembership(ctx, user(applicant), "PTA", "again")
	assert.ErrorIs(t, err, ErrConflict, "second pending request")

	m, err := svc.ApproveRequest(ctx, user(ownerID, pta.ID), "PTA", req.ID)
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	firstRowID := m.ID

	// the principal of the next request carries the new membership
	_, err = svc.RequestMembership(ctx, user(applicant, pta.ID), "PTA", "")
	assert.ErrorIs(t, err, ErrConflict, "already a member")

	require.NoError(t, svc.LeaveProject(ctx, user(applicant, pta.ID), "PTA"))
	assert.False(t, rows.rows[memberKey{applicant, pta.ID}].IsActive)

	req, err = svc.RequestMembership(ctx, user(applicant), "PTA", "back")
	require.NoError(t, err)
	m, err = svc.ApproveRequest(ctx, embargo.NewSuperuser(superuser, "root"), "PTA", req.ID)
	require.NoError(t, err)
	assert.Equal(t, firstRowID, m.ID, "rejoining reactivates the existing row")
	assert.Len(t, rows.rows, 2)
}

func TestApproveRequest_RequiresManager(t *testing.T) {
	svc, _, rows := newProjectsFixture()
	ctx := context.Background()
	req, err := svc.RequestMembership(ctx, user(applicant), "PTA", "")
	require.NoError(t, err)

	rows.add(bystander, pta.ID, models.RoleMember, true)
	_, err = svc.ApproveRequest(ctx, user(bystander, pta.ID), "PTA", req.ID)
	assert.ErrorIs(t, err, ErrForbidden, "plain member")

	_, err = svc.ApproveRequest(ctx, embargo.Anonymous(), "PTA", req.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	rows.add(coOwnerID, pta.ID, models.RoleManager, false)
	_, err = svc.ApproveRequest(ctx, user(coOwnerID), "PTA", req.ID)
	assert.ErrorIs(t, err, ErrForbidden, "inactive manager")
}

func TestRejectRequest(t *testing.T) {
	svc, _, _ := newProjectsFixture()
	ctx := context.Background()
	req, err := svc.RequestMembership(ctx, user(applicant), "PTA", "")
	require.NoError(t, err)

	require.NoError(t, svc.RejectRequest(ctx, user(ownerID, pta.ID), "PTA", req.ID))

	err = svc.RejectRequest(ctx, user(ownerID, pta.ID), "PTA", req.ID)
	assert.ErrorIs(t, err, ErrConflict, "already rejected")

	_, err = svc.ApproveRequest(ctx, user(ownerID, pta.ID), "PTA", 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeaveProject_LastOwner(t *testing.T) {
	svc, _, rows := newProjectsFixture()
	ctx := context.Background()

	err := svc.LeaveProject(ctx, user(ownerID, pta.ID), "PTA")
	assert.ErrorIs(t, err, ErrConflict)

	rows.add(coOwnerID, pta.ID, models.RoleOwner, true)
	assert.NoError(t, svc.LeaveProject(ctx, user(ownerID, pta.ID), "PTA"))

	err = svc.LeaveProject(ctx, user(bystander), "PTA")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMembers(t *testing.T) {
	svc, _, _ := newProjectsFixture()
	ctx := context.Background()

	members, err := svc.ListMembers(ctx, user(ownerID, pta.ID), "PTA")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	_, err = svc.ListMembers(ctx, user(bystander), "PTA")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ListMembers(ctx, user(bystander), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEmbargoPeriod(t *testing.T) {
	svc, projects, _ := newProjectsFixture()
	ctx := context.Background()

	_, err := svc.UpdateEmbargoPeriod(ctx, user(ownerID, pta.ID), "PTA", 365)
	assert.ErrorIs(t, err, ErrForbidden, "owners cannot change the period")

	_, err = svc.UpdateEmbargoPeriod(ctx, embargo.NewSuperuser(superuser, "root"), "PTA", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := svc.UpdateEmbargoPeriod(ctx, embargo.NewSuperuser(superuser, "root"), "PTA", 365)
	require.NoError(t, err)
	assert.Equal(t, int64(365), p.EmbargoPeriodDays())
	assert.Equal(t, int64(365*86400), projects.projects["PTA"].EmbargoPeriodSeconds)
	assert.Equal(t, []int64{pta.ID}, projects.refreshed)
}

func TestUpdateEmbargoPeriod_TakesEffectImmediately(t *testing.T) {
	svc, projects, _ := newProjectsFixture()
	ctx := context.Background()
	accessor := embargo.NewAccessor(embargo.FixedClock(testNow))

	stored := projects.projects["PTA"]
	o := obs(1, *stored, daysAgo(100))
	ok, err := accessor.CanAccess(embargo.Anonymous(), o)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.UpdateEmbargoPeriod(ctx, embargo.NewSuperuser(superuser, "root"), "PTA", 30)
	require.NoError(t, err)

	o = obs(1, *projects.projects["PTA"], daysAgo(100))
	ok, err = accessor.CanAccess(embargo.Anonymous(), o)
	require.NoError(t, err)
	assert.True(t, ok)
}
