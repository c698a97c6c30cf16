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

type selectionService interface {
	State(ctx context.Context, actor *models.JWTClaims) (*dto.SelectionState, error)
	Add(ctx context.Context, actor *models.JWTClaims, req dto.SelectionRequest) (*dto.SelectionState, error)
	Toggle(ctx context.Context, actor *models.JWTClaims, req dto.SelectionRequest) (*dto.SelectionState, error)
	Remove(ctx context.Context, actor *models.JWTClaims, slotKey string) (*dto.SelectionState, error)
	SetRole(ctx context.Context, actor *models.JWTClaims, slotKey string, req dto.SelectionRoleRequest) (*dto.SelectionState, error)
	Reorder(ctx context.Context, actor *models.JWTClaims, req dto.SelectionOrderRequest) (*dto.SelectionState, error)
	SetActiveIndex(ctx context.Context, actor *models.JWTClaims, req dto.ActiveIndexRequest) (*dto.SelectionState, error)
	Clear(ctx context.Context, actor *models.JWTClaims) error
	Submit(ctx context.Context, actor *models.JWTClaims) (*dto.SubmitResponse, error)
}

// SelectionHandler exposes the practitioner's selection draft.
type SelectionHandler struct {
	service selectionService
}

// NewSelectionHandler builds a new handler.
func NewSelectionHandler(service selectionService) *SelectionHandler {
	return &SelectionHandler{service: service}
}

// State godoc
// @Summary Current selection draft
// @Tags Selections
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /selections [get]
func (h *SelectionHandler) State(c *gin.Context) {
	state, err := h.service.State(c.Request.Context(), claimsFromContext(c))
	h.respond(c, state, err)
}

// Add godoc
// @Summary Select a grid cell
// @Tags Selections
// @Accept json
// @Produce json
// @Param payload body dto.SelectionRequest true "Cell"
// @Success 200 {object} response.Envelope
// @Router /selections [post]
func (h *SelectionHandler) Add(c *gin.Context) {
	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection payload"))
		return
	}
	state, err := h.service.Add(c.Request.Context(), claimsFromContext(c), req)
	h.respond(c, state, err)
}

// Toggle godoc
// @Summary Select or unselect a grid cell
// @Tags Selections
// @Accept json
// @Produce json
// @Param payload body dto.SelectionRequest true "Cell"
// @Success 200 {object} response.Envelope
// @Router /selections/toggle [post]
func (h *SelectionHandler) Toggle(c *gin.Context) {
	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection payload"))
		return
	}
	state, err := h.service.Toggle(c.Request.Context(), claimsFromContext(c), req)
	h.respond(c, state, err)
}

// Remove godoc
// @Summary Drop one selection
// @Tags Selections
// @Produce json
// @Param slotKey path string true "Slot key (YYYY-MM-DD:position)"
// @Success 200 {object} response.Envelope
// @Router /selections/{slotKey} [delete]
func (h *SelectionHandler) Remove(c *gin.Context) {
	state, err := h.service.Remove(c.Request.Context(), claimsFromContext(c), c.Param("slotKey"))
	h.respond(c, state, err)
}

// SetRole godoc
// @Summary Mark a selection principal or alternative
// @Tags Selections
// @Accept json
// @Produce json
// @Param slotKey path string true "Slot key"
// @Param payload body dto.SelectionRoleRequest true "Role"
// @Success 200 {object} response.Envelope
// @Router /selections/{slotKey}/role [put]
func (h *SelectionHandler) SetRole(c *gin.Context) {
	var req dto.SelectionRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid role payload"))
		return
	}
	state, err := h.service.SetRole(c.Request.Context(), claimsFromContext(c), c.Param("slotKey"), req)
	h.respond(c, state, err)
}

// Reorder godoc
// @Summary Apply a drag and drop order
// @Tags Selections
// @Accept json
// @Produce json
// @Param payload body dto.SelectionOrderRequest true "Presentation order"
// @Success 200 {object} response.Envelope
// @Router /selections/order [put]
func (h *SelectionHandler) Reorder(c *gin.Context) {
	var req dto.SelectionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid order payload"))
		return
	}
	state, err := h.service.Reorder(c.Request.Context(), claimsFromContext(c), req)
	h.respond(c, state, err)
}

// SetActiveIndex godoc
// @Summary Move the choice cursor
// @Tags Selections
// @Accept json
// @Produce json
// @Param payload body dto.ActiveIndexRequest true "Cursor"
// @Success 200 {object} response.Envelope
// @Router /selections/active-index [put]
func (h *SelectionHandler) SetActiveIndex(c *gin.Context) {
	var req dto.ActiveIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cursor payload"))
		return
	}
	state, err := h.service.SetActiveIndex(c.Request.Context(), claimsFromContext(c), req)
	h.respond(c, state, err)
}

// Clear godoc
// @Summary Discard the draft
// @Tags Selections
// @Success 204
// @Router /selections [delete]
func (h *SelectionHandler) Clear(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context(), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit the draft as pending requests
// @Tags Selections
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /selections/submit [post]
func (h *SelectionHandler) Submit(c *gin.Context) {
	res, err := h.service.Submit(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

func (h *SelectionHandler) respond(c *gin.Context, state *dto.SelectionState, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}
