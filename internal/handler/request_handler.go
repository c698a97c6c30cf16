package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/service"
	appErrors "github.com/Maelco1/reset/pkg/errors"
	"github.com/Maelco1/reset/pkg/response"
)

type resolutionService interface {
	List(ctx context.Context, query dto.RequestBoardQuery) ([]models.PlanningChoice, error)
	History(ctx context.Context, id int64) ([]models.ChoiceAudit, error)
	Accept(ctx context.Context, id int64, claims *models.JWTClaims) (*dto.DecisionResponse, error)
	Refuse(ctx context.Context, id int64, req dto.RefuseRequest, claims *models.JWTClaims) (*dto.DecisionResponse, error)
}

type boardSnapshotter interface {
	Snapshot(ctx context.Context) (service.BoardSnapshot, error)
}

// RequestHandler exposes the administrator request board.
type RequestHandler struct {
	service resolutionService
	board   boardSnapshotter
}

// NewRequestHandler builds a new handler.
func NewRequestHandler(service resolutionService, board boardSnapshotter) *RequestHandler {
	return &RequestHandler{service: service, board: board}
}

// List godoc
// @Summary Filtered request board
// @Tags Requests
// @Produce json
// @Param status query string false "en attente | validé | refusé"
// @Param day query string false "YYYY-MM-DD"
// @Param activity_type query string false "Activity type"
// @Param doctor query string false "Trigram"
// @Param column query string false "Column label or number"
// @Param user_type query string false "medecin | remplacant"
// @Param tour query int false "Tour"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var query dto.RequestBoardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid board filters"))
		return
	}
	choices, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, choices, nil, map[string]interface{}{"count": len(choices)})
}

// Summary godoc
// @Summary Status counts of the last loaded board
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/summary [get]
func (h *RequestHandler) Summary(c *gin.Context) {
	snapshot, err := h.board.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"planning_reference": snapshot.Reference,
		"tour":               snapshot.Tour,
		"counts":             snapshot.Counts,
		"loaded_at":          snapshot.LoadedAt,
	}, nil)
}

// History godoc
// @Summary Status history of one request
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/history [get]
func (h *RequestHandler) History(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	history, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Accept godoc
// @Summary Validate a pending request
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/accept [post]
func (h *RequestHandler) Accept(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.Accept(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Refuse godoc
// @Summary Refuse a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.RefuseRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/refuse [post]
func (h *RequestHandler) Refuse(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RefuseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refusal payload"))
			return
		}
	}
	res, err := h.service.Refuse(c.Request.Context(), id, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
