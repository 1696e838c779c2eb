package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/meertime/dataportal/internal/db/models"
)

var membershipCols = []string{"id", "user_id", "project_id", "role", "is_active", "created_at", "updated_at"}

func TestActiveProjectIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)
	mock.ExpectQuery("SELECT project_id FROM project_memberships.*is_active = true").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(int64(1)).AddRow(int64(4)))

	ids, err := repo.ActiveProjectIDs(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Errorf("ids = %v, want [1 4]", ids)
	}
}

func TestMembershipUpsert_Reactivates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO project_memberships.*ON CONFLICT \\(user_id, project_id\\)").
		WithArgs(int64(5), int64(1), models.RoleMember).
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow(int64(10), int64(5), int64(1), "Member", true, now, now))

	m, err := repo.Upsert(context.Background(), 5, 1, models.RoleMember)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != 10 || !m.IsActive {
		t.Errorf("membership = %+v, want existing row 10 active", m)
	}
}

func TestMembershipDeactivate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)
	mock.ExpectExec("UPDATE project_memberships.*SET is_active = false").
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE project_memberships.*SET is_active = false").
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Deactivate(context.Background(), 5, 1)
	if err != nil || !ok {
		t.Fatalf("first Deactivate = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = repo.Deactivate(context.Background(), 5, 1)
	if err != nil || ok {
		t.Fatalf("second Deactivate = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestCreateRequest_DuplicatePending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)
	mock.ExpectQuery("INSERT INTO project_membership_requests").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.CreateRequest(context.Background(), &models.ProjectMembershipRequest{UserID: 5, ProjectID: 1})
	if !errors.Is(err, ErrDuplicatePendingRequest) {
		t.Errorf("error = %v, want ErrDuplicatePendingRequest", err)
	}
}

func TestCreateRequest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO project_membership_requests").
		WithArgs(int64(5), int64(1), models.RequestPending, "please").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))

	req := &models.ProjectMembershipRequest{UserID: 5, ProjectID: 1, Message: "please"}
	if err := repo.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ID != 3 || !req.IsPending() {
		t.Errorf("request = %+v", req)
	}
}

func TestApproveRequest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE project_membership_requests").
		WithArgs(int64(3), models.RequestApproved, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO project_memberships").
		WithArgs(int64(5), int64(1), models.RoleMember).
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow(int64(10), int64(5), int64(1), "Member", true, now, now))
	mock.ExpectCommit()

	req := &models.ProjectMembershipRequest{ID: 3, UserID: 5, ProjectID: 1, Status: models.RequestPending}
	m, err := repo.ApproveRequest(context.Background(), req, 9, models.RoleMember)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.UserID != 5 {
		t.Fatalf("membership = %+v", m)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApproveRequest_NoLongerPending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE project_membership_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	req := &models.ProjectMembershipRequest{ID: 3, UserID: 5, ProjectID: 1}
	m, err := repo.ApproveRequest(context.Background(), req, 9, models.RoleMember)
	if err != nil || m != nil {
		t.Errorf("ApproveRequest = (%v, %v), want (nil, nil)", m, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCountActiveOwners(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMembershipRepository(db)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM project_memberships").
		WithArgs(int64(1), models.RoleOwner).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountActiveOwners(context.Background(), 1)
	if err != nil || n != 2 {
		t.Errorf("CountActiveOwners = (%d, %v), want (2, nil)", n, err)
	}
}
