package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/service"
	appErrors "github.com/Maelco1/reset/pkg/errors"
	"github.com/Maelco1/reset/pkg/response"
)

type exportJobService interface {
	CreateJob(ctx context.Context, req dto.ExportRequest, claims *models.JWTClaims) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ExportJobResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes export job endpoints.
type ExportHandler struct {
	service exportJobService
	logger  *zap.Logger
}

// NewExportHandler builds a new handler.
func NewExportHandler(service exportJobService, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{service: service, logger: logger}
}

// CreateJob godoc
// @Summary Queue an export of the active window
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest false "Export kind and format"
// @Success 202 {object} response.Envelope
// @Router /auto-assignment/exports [post]
func (h *ExportHandler) CreateJob(c *gin.Context) {
	var req dto.ExportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
			return
		}
	}
	job, err := h.service.CreateJob(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auto-assignment/exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	job, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export through its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	h.logger.Debug("serving export", zap.String("file", download.Filename), zap.Int64("size", info.Size()))

	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), exportContentType(download.Format), download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, download.Filename),
	})
}

func exportContentType(format models.ExportFormat) string {
	switch format {
	case models.ExportFormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}
