package portal

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meertime/dataportal/internal/api/respond"
	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/middleware"
	"github.com/meertime/dataportal/internal/services"
)

// @Summary      Download observation files
// @Description  Full and decimated archives come as the raw file; ToAs as a zip of the bundles the caller may see.
// @Tags         Downloads
// @Produce      application/octet-stream
// @Param        pulsar     path  string  true  "Pulsar J-name"
// @Param        utc        path  string  true  "Observation start, YYYY-MM-DD-HH:MM:SS"
// @Param        beam       path  int     true  "Beam number"
// @Param        file_type  path  string  true  "full, decimated or toas"
// @Success      200  "File content"
// @Failure      401  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}  "This data is under embargo"
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/v1/download/observation/{pulsar}/{utc}/{beam}/{file_type} [get]
// DownloadObservation handles GET /api/v1/download/observation/:pulsar/:utc/:beam/:file_type
func (h *Handler) DownloadObservation(c *gin.Context) {
	p, ok := h.downloader(c)
	if !ok {
		return
	}
	utc, beam, ok := observationKey(c)
	if !ok {
		return
	}
	ft, ok := fileType(c)
	if !ok {
		return
	}

	plan, err := h.svc.DownloadObservationFiles(c.Request.Context(), p, c.Param("pulsar"), utc, beam, ft)
	if err != nil {
		respond.Error(c, err)
		return
	}
	h.stream(c, plan)
}

// @Summary      Download pulsar files
// @Description  Zip of every accessible observation's files of one type. Partially embargoed pulsars yield the accessible subset.
// @Tags         Downloads
// @Produce      application/zip
// @Param        pulsar     path  string  true  "Pulsar J-name"
// @Param        file_type  path  string  true  "full, decimated or toas"
// @Success      200  "Zip archive"
// @Failure      403  {object}  map[string]interface{}  "This data is under embargo"
// @Router       /api/v1/download/pulsar/{pulsar}/{file_type} [get]
// DownloadPulsar handles GET /api/v1/download/pulsar/:pulsar/:file_type
func (h *Handler) DownloadPulsar(c *gin.Context) {
	p, ok := h.downloader(c)
	if !ok {
		return
	}
	ft, ok := fileType(c)
	if !ok {
		return
	}

	plan, err := h.svc.DownloadPulsarFiles(c.Request.Context(), p, c.Param("pulsar"), ft)
	if err != nil {
		respond.Error(c, err)
		return
	}
	h.stream(c, plan)
}

func (h *Handler) downloader(c *gin.Context) (*embargo.Principal, bool) {
	p := middleware.PrincipalFrom(c)
	if p.IsAnonymous() && !h.allowAnonymousDownloads {
		respond.Error(c, services.ErrUnauthenticated)
		return nil, false
	}
	return p, true
}

func fileType(c *gin.Context) (models.FileType, bool) {
	ft, ok := models.ParseFileType(c.Param("file_type"))
	if !ok {
		respond.BadRequest(c, fmt.Sprintf("file_type must be one of %s, %s or %s",
			models.FileTypeFull, models.FileTypeDecimated, models.FileTypeToas))
		return "", false
	}
	return ft, true
}

// stream writes the planned download. Headers are committed before the first byte,
// so a failure mid-stream can only be logged; the client sees a truncated body.
func (h *Handler) stream(c *gin.Context, plan *services.DownloadPlan) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": plan.FileName}))
	c.Header("Content-Type", plan.ContentType)
	if !plan.IsArchive() && plan.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(plan.Size, 10))
	}
	c.Status(http.StatusOK)

	if err := h.svc.Stream(c.Request.Context(), c.Writer, plan); err != nil {
		slog.ErrorContext(c.Request.Context(), "download stream failed",
			"file", plan.FileName, "request_id", middleware.RequestIDFrom(c), "error", err)
		c.Abort()
	}
}
