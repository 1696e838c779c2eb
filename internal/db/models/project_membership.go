// Package models - project_membership.go defines project membership rows, the
// membership request workflow, and the enriched views used for listing members.
package models

import "time"

// MembershipRole is the role a user holds inside a project
type MembershipRole string

const (
	RoleOwner   MembershipRole = "Owner"
	RoleManager MembershipRole = "Manager"
	RoleMember  MembershipRole = "Member"
)

// CanManage reports whether the role may approve or reject membership requests
func (r MembershipRole) CanManage() bool {
	return r == RoleOwner || r == RoleManager
}

// Valid reports whether r is one of the known roles
func (r MembershipRole) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleMember:
		return true
	}
	return false
}

// ProjectMembership links a user to a project. At most one row exists per
// (user, project); leaving deactivates it and rejoining reactivates it.
type ProjectMembership struct {
	ID        int64          `db:"id" json:"id"`
	UserID    int64          `db:"user_id" json:"user_id"`
	ProjectID int64          `db:"project_id" json:"project_id"`
	Role      MembershipRole `db:"role" json:"role"`
	IsActive  bool           `db:"is_active" json:"is_active"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// ProjectMemberWithUser includes user details for display
type ProjectMemberWithUser struct {
	ProjectMembership
	Username string `db:"username" json:"username"`
	Email    string `db:"email" json:"email"`
}

// MembershipRequestStatus is the lifecycle state of a membership request
type MembershipRequestStatus string

const (
	RequestPending  MembershipRequestStatus = "pending"
	RequestApproved MembershipRequestStatus = "approved"
	RequestRejected MembershipRequestStatus = "rejected"
)

// ProjectMembershipRequest is a user's request to join a project
type ProjectMembershipRequest struct {
	ID         int64                   `db:"id" json:"id"`
	UserID     int64                   `db:"user_id" json:"user_id"`
	ProjectID  int64                   `db:"project_id" json:"project_id"`
	Status     MembershipRequestStatus `db:"status" json:"status"`
	Message    string                  `db:"message" json:"message"`
	ReviewedBy *int64                  `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt  time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time               `db:"updated_at" json:"updated_at"`
}

// IsPending reports whether the request still awaits review
func (r *ProjectMembershipRequest) IsPending() bool {
	return r.Status == RequestPending
}
