// Package portal implements the embargo-aware read and download endpoints: residual
// ephemeris and folding template resolution, observation images and pipeline files,
// and file downloads for one observation or a whole pulsar.
package portal

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meertime/dataportal/internal/api/respond"
	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/middleware"
	"github.com/meertime/dataportal/internal/services"
)

// Service is the part of services.Portal the handlers use
type Service interface {
	ResolveResidualEphemeris(ctx context.Context, p *embargo.Principal, pulsar, mainProject string) (*services.EphemerisResolution, error)
	ResolveFoldingTemplate(ctx context.Context, p *embargo.Principal, pulsar, mainProject, band string) (*services.TemplateResolution, error)
	ListObservationImages(ctx context.Context, p *embargo.Principal, pulsar string, utcStart time.Time, beam int) ([]*models.PipelineImage, error)
	ListObservationFiles(ctx context.Context, p *embargo.Principal, pulsar string, utcStart time.Time, beam int) ([]*models.PipelineFile, error)
	DownloadObservationFiles(ctx context.Context, p *embargo.Principal, pulsar string, utcStart time.Time, beam int, ft models.FileType) (*services.DownloadPlan, error)
	DownloadPulsarFiles(ctx context.Context, p *embargo.Principal, pulsar string, ft models.FileType) (*services.DownloadPlan, error)
	Stream(ctx context.Context, w io.Writer, plan *services.DownloadPlan) error
}

// Handler serves the portal endpoints
type Handler struct {
	svc                     Service
	allowAnonymousDownloads bool
}

// NewHandler creates a Handler. Unless allowAnonymousDownloads is set, download
// endpoints answer 401 to anonymous principals before any embargo evaluation.
func NewHandler(svc Service, allowAnonymousDownloads bool) *Handler {
	return &Handler{svc: svc, allowAnonymousDownloads: allowAnonymousDownloads}
}

// Register mounts the portal routes on rg
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/pulsars/:pulsar/ephemeris", h.Ephemeris)
	rg.GET("/pulsars/:pulsar/template", h.Template)
	rg.GET("/observations/:pulsar/:utc/:beam/images", h.Images)
	rg.GET("/observations/:pulsar/:utc/:beam/files", h.Files)
	rg.GET("/download/observation/:pulsar/:utc/:beam/:file_type", h.DownloadObservation)
	rg.GET("/download/pulsar/:pulsar/:file_type", h.DownloadPulsar)
}

// @Summary      Residual ephemeris
// @Description  Newest ephemeris of the pulsar the caller may see. Falls back to older public ephemerides when newer ones are embargoed.
// @Tags         Pulsars
// @Produce      json
// @Param        pulsar        path   string  true   "Pulsar J-name"
// @Param        main_project  query  string  false  "Main project (defaults to the configured one)"
// @Success      200  {object}  services.EphemerisResolution
// @Router       /api/v1/pulsars/{pulsar}/ephemeris [get]
// Ephemeris handles GET /api/v1/pulsars/:pulsar/ephemeris
func (h *Handler) Ephemeris(c *gin.Context) {
	res, err := h.svc.ResolveResidualEphemeris(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("pulsar"), c.Query("main_project"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Folding template
// @Tags         Pulsars
// @Produce      json
// @Param        pulsar        path   string  true   "Pulsar J-name"
// @Param        main_project  query  string  false  "Main project"
// @Param        band          query  string  false  "Receiver band"
// @Success      200  {object}  services.TemplateResolution
// @Router       /api/v1/pulsars/{pulsar}/template [get]
// Template handles GET /api/v1/pulsars/:pulsar/template
func (h *Handler) Template(c *gin.Context) {
	res, err := h.svc.ResolveFoldingTemplate(c.Request.Context(), middleware.PrincipalFrom(c),
		c.Param("pulsar"), c.Query("main_project"), c.Query("band"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Images lists the pipeline images of one observation
func (h *Handler) Images(c *gin.Context) {
	utc, beam, ok := observationKey(c)
	if !ok {
		return
	}
	images, err := h.svc.ListObservationImages(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("pulsar"), utc, beam)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if images == nil {
		images = []*models.PipelineImage{}
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

// Files lists the pipeline data products of one observation
func (h *Handler) Files(c *gin.Context) {
	utc, beam, ok := observationKey(c)
	if !ok {
		return
	}
	files, err := h.svc.ListObservationFiles(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("pulsar"), utc, beam)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if files == nil {
		files = []*models.PipelineFile{}
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// observationKey parses the :utc and :beam parameters, answering 400 on failure
func observationKey(c *gin.Context) (time.Time, int, bool) {
	utc, err := time.Parse(models.UTCFormat, c.Param("utc"))
	if err != nil {
		respond.BadRequest(c, "utc must be formatted as YYYY-MM-DD-HH:MM:SS")
		return time.Time{}, 0, false
	}
	beam, err := strconv.Atoi(c.Param("beam"))
	if err != nil || beam < 0 {
		respond.BadRequest(c, "beam must be a non-negative integer")
		return time.Time{}, 0, false
	}
	return utc, beam, true
}
