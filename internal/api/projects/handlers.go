// Package projects implements project administration and the membership workflow
// endpoints.
package projects

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meertime/dataportal/internal/api/respond"
	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/middleware"
)

// Service is the part of services.Projects the handlers use
type Service interface {
	ListProjects(ctx context.Context, mainProject string) ([]models.Project, error)
	GetProject(ctx context.Context, code string) (*models.Project, error)
	UpdateEmbargoPeriod(ctx context.Context, p *embargo.Principal, code string, days int64) (*models.Project, error)
	RequestMembership(ctx context.Context, p *embargo.Principal, code, message string) (*models.ProjectMembershipRequest, error)
	ApproveRequest(ctx context.Context, p *embargo.Principal, code string, requestID int64) (*models.ProjectMembership, error)
	RejectRequest(ctx context.Context, p *embargo.Principal, code string, requestID int64) error
	ListPendingRequests(ctx context.Context, p *embargo.Principal, code string) ([]models.ProjectMembershipRequest, error)
	ListMembers(ctx context.Context, p *embargo.Principal, code string) ([]models.ProjectMemberWithUser, error)
	LeaveProject(ctx context.Context, p *embargo.Principal, code string) error
}

// Handler serves the project endpoints
type Handler struct {
	svc Service
}

// NewHandler creates a Handler
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the project routes on rg. Reads are open to every principal;
// everything else needs an authenticated caller.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/projects", h.List)
	rg.GET("/projects/:code", h.Get)

	authed := rg.Group("/projects/:code", middleware.RequirePrincipal())
	authed.PATCH("", middleware.RequireSuperuser(), h.UpdateEmbargo)
	authed.GET("/members", h.Members)
	authed.DELETE("/memberships/me", h.Leave)
	authed.GET("/membership-requests", h.PendingRequests)
	authed.POST("/membership-requests", h.RequestMembership)
	authed.POST("/membership-requests/:id/approve", h.Approve)
	authed.POST("/membership-requests/:id/reject", h.Reject)
}

// ProjectResponse is a project as the API shows it
type ProjectResponse struct {
	models.Project
	EmbargoPeriodDays int64 `json:"embargo_period_days"`
}

func toResponse(p *models.Project) ProjectResponse {
	return ProjectResponse{Project: *p, EmbargoPeriodDays: p.EmbargoPeriodDays()}
}

// UpdateEmbargoRequest is the body of PATCH /projects/:code
type UpdateEmbargoRequest struct {
	EmbargoPeriodDays *int64 `json:"embargo_period_days" binding:"required"`
}

// MembershipRequestBody is the body of POST /projects/:code/membership-requests
type MembershipRequestBody struct {
	Message string `json:"message" binding:"max=2000"`
}

// @Summary      List projects
// @Tags         Projects
// @Produce      json
// @Param        main_project  query  string  false  "Filter by main project"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/projects [get]
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.ListProjects(c.Request.Context(), c.Query("main_project"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	out := make([]ProjectResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// Get handles GET /api/v1/projects/:code
func (h *Handler) Get(c *gin.Context) {
	p, err := h.svc.GetProject(c.Request.Context(), c.Param("code"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(p))
}

// @Summary      Change a project's embargo period
// @Description  Superusers only. Takes effect for access decisions immediately.
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        code  path  string                true  "Project code"
// @Param        body  body  UpdateEmbargoRequest  true  "New period in days"
// @Success      200  {object}  ProjectResponse
// @Failure      400  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}
// @Router       /api/v1/projects/{code} [patch]
func (h *Handler) UpdateEmbargo(c *gin.Context) {
	var req UpdateEmbargoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "embargo_period_days is required")
		return
	}
	p, err := h.svc.UpdateEmbargoPeriod(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("code"), *req.EmbargoPeriodDays)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(p))
}

// RequestMembership handles POST /api/v1/projects/:code/membership-requests
func (h *Handler) RequestMembership(c *gin.Context) {
	var body MembershipRequestBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respond.BadRequest(c, "invalid request body")
			return
		}
	}
	req, err := h.svc.RequestMembership(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("code"), body.Message)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// Approve handles POST /api/v1/projects/:code/membership-requests/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	m, err := h.svc.ApproveRequest(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("code"), id)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Reject handles POST /api/v1/projects/:code/membership-requests/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	if err := h.svc.RejectRequest(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("code"), id); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) PendingRequests(c *gin.Context) {
	list, err := h.svc.ListPendingRequests(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("code"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if list == nil {
		list = []models.ProjectMembershipRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (h *Handler) Members(c *gin.Context) {
	list, err := h.svc.ListMembers(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("code"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if list == nil {
		list = []models.ProjectMemberWithUser{}
	}
	c.JSON(http.StatusOK, gin.H{"members": list})
}

// Leave handles DELETE /api/v1/projects/:code/memberships/me
func (h *Handler) Leave(c *gin.Context) {
	if err := h.svc.LeaveProject(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("code")); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.BadRequest(c, "invalid membership request id")
		return 0, false
	}
	return id, true
}
