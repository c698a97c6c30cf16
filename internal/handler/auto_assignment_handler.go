package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	appErrors "github.com/Maelco1/reset/pkg/errors"
	"github.com/Maelco1/reset/pkg/response"
)

type autoAssignmentService interface {
	Preview(ctx context.Context, req dto.AutoAssignmentRequest) (*dto.AutoAssignmentPreview, error)
	Apply(ctx context.Context, req dto.AutoAssignmentRequest, claims *models.JWTClaims) (*dto.AutoAssignmentApplyResponse, error)
	UndoLast(ctx context.Context, claims *models.JWTClaims) (*dto.UndoResponse, error)
	LastRunEntries(ctx context.Context) (*models.AutoAssignmentRun, []models.AutoAssignmentRunEntry, error)
	Stepwise(ctx context.Context, req dto.StepwiseRequest) (*dto.StepwisePlanResponse, error)
	AcceptStep(ctx context.Context, req dto.AcceptStepRequest, claims *models.JWTClaims) (*dto.DecisionResponse, error)
}

// AutoAssignmentHandler exposes the rotation auto-assignment endpoints.
type AutoAssignmentHandler struct {
	service autoAssignmentService
}

// NewAutoAssignmentHandler builds a new handler.
func NewAutoAssignmentHandler(service autoAssignmentService) *AutoAssignmentHandler {
	return &AutoAssignmentHandler{service: service}
}

// Preview godoc
// @Summary Dry-run the rotation auto-assignment
// @Tags AutoAssignment
// @Accept json
// @Produce json
// @Param payload body dto.AutoAssignmentRequest false "Run parameters"
// @Success 200 {object} response.Envelope
// @Router /auto-assignment/preview [post]
func (h *AutoAssignmentHandler) Preview(c *gin.Context) {
	req, ok := bindAutoAssignment(c)
	if !ok {
		return
	}
	preview, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Apply godoc
// @Summary Run and persist the rotation auto-assignment
// @Tags AutoAssignment
// @Accept json
// @Produce json
// @Param payload body dto.AutoAssignmentRequest false "Run parameters"
// @Success 201 {object} response.Envelope
// @Router /auto-assignment/apply [post]
func (h *AutoAssignmentHandler) Apply(c *gin.Context) {
	req, ok := bindAutoAssignment(c)
	if !ok {
		return
	}
	res, err := h.service.Apply(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Undo godoc
// @Summary Revert the last applied run
// @Tags AutoAssignment
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auto-assignment/undo [post]
func (h *AutoAssignmentHandler) Undo(c *gin.Context) {
	res, err := h.service.UndoLast(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// LastRun godoc
// @Summary Last run with its log entries
// @Tags AutoAssignment
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auto-assignment/last-run [get]
func (h *AutoAssignmentHandler) LastRun(c *gin.Context) {
	run, entries, err := h.service.LastRunEntries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"run": run, "entries": entries}, nil, map[string]interface{}{"count": len(entries)})
}

// Stepwise godoc
// @Summary Compute the held offers of a stepwise plan
// @Tags AutoAssignment
// @Accept json
// @Produce json
// @Param payload body dto.StepwiseRequest false "Stepwise parameters"
// @Success 200 {object} response.Envelope
// @Router /auto-assignment/stepwise [post]
func (h *AutoAssignmentHandler) Stepwise(c *gin.Context) {
	var req dto.StepwiseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid stepwise payload"))
			return
		}
	}
	plan, err := h.service.Stepwise(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// AcceptStep godoc
// @Summary Validate one stepwise offer
// @Tags AutoAssignment
// @Accept json
// @Produce json
// @Param payload body dto.AcceptStepRequest true "Offer"
// @Success 200 {object} response.Envelope
// @Router /auto-assignment/stepwise/accept [post]
func (h *AutoAssignmentHandler) AcceptStep(c *gin.Context) {
	var req dto.AcceptStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid stepwise acceptance payload"))
		return
	}
	res, err := h.service.AcceptStep(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func bindAutoAssignment(c *gin.Context) (dto.AutoAssignmentRequest, bool) {
	var req dto.AutoAssignmentRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid auto-assignment payload"))
		return req, false
	}
	return req, true
}
