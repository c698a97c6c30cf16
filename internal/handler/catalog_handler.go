package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/middleware"
	"github.com/Maelco1/reset/internal/models"
	appErrors "github.com/Maelco1/reset/pkg/errors"
	"github.com/Maelco1/reset/pkg/response"
)

type catalogService interface {
	Settings(ctx context.Context) (*dto.SettingsResponse, bool, error)
	UpdateSettings(ctx context.Context, req dto.UpdateSettingsRequest, actor *models.JWTClaims) (*dto.SettingsResponse, error)
	Columns(ctx context.Context, tour int) ([]models.PlanningColumn, bool, error)
	UpdateColumn(ctx context.Context, position int, req dto.UpdateColumnRequest, actor *models.JWTClaims) (*models.PlanningColumn, error)
	Calendar(ctx context.Context) (*dto.CalendarResponse, error)
}

// CatalogHandler exposes the slot catalog and planning settings.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// Settings godoc
// @Summary Active planning window
// @Tags Planning
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /planning/settings [get]
func (h *CatalogHandler) Settings(c *gin.Context) {
	settings, cacheHit, err := h.service.Settings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, settings, nil, middleware.ExtractMeta(c))
}

// UpdateSettings godoc
// @Summary Change the active tour and months
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.UpdateSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /planning/settings [put]
func (h *CatalogHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid settings payload"))
		return
	}
	settings, err := h.service.UpdateSettings(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Columns godoc
// @Summary Slot definitions of a tour
// @Tags Planning
// @Produce json
// @Param tour query int false "Tour (defaults to the active tour)"
// @Success 200 {object} response.Envelope
// @Router /planning/columns [get]
func (h *CatalogHandler) Columns(c *gin.Context) {
	tour := 0
	if raw := c.Query("tour"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tour must be a number"))
			return
		}
		tour = parsed
	}
	columns, cacheHit, err := h.service.Columns(c.Request.Context(), tour)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, columns, nil, middleware.ExtractMeta(c))
}

// UpdateColumn godoc
// @Summary Edit one slot definition
// @Tags Planning
// @Accept json
// @Produce json
// @Param position path int true "Column position (1-46)"
// @Param payload body dto.UpdateColumnRequest true "Column payload"
// @Success 200 {object} response.Envelope
// @Router /planning/columns/{position} [put]
func (h *CatalogHandler) UpdateColumn(c *gin.Context) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid position"))
		return
	}
	var req dto.UpdateColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid column payload"))
		return
	}
	column, err := h.service.UpdateColumn(c.Request.Context(), position, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, column, nil)
}

// Calendar godoc
// @Summary Planning grid of the active window
// @Tags Planning
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /planning/calendar [get]
func (h *CatalogHandler) Calendar(c *gin.Context) {
	calendar, err := h.service.Calendar(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calendar, nil, middleware.ExtractMeta(c))
}
