package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/service"
	appErrors "github.com/Maelco1/reset/pkg/errors"
	"github.com/Maelco1/reset/pkg/response"
)

type userService interface {
	Directory(ctx context.Context, population string) ([]models.DirectoryEntry, error)
	Create(ctx context.Context, req service.CreateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error)
	Deactivate(ctx context.Context, id string, actorID string, meta models.LoginRequest) error
}

// UserHandler handles practitioner accounts.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// Directory godoc
// @Summary List active practitioners
// @Tags Users
// @Produce json
// @Param population query string false "medecin | remplacant"
// @Success 200 {object} response.Envelope
// @Router /users/directory [get]
func (h *UserHandler) Directory(c *gin.Context) {
	entries, err := h.service.Directory(c.Request.Context(), c.Query("population"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil, map[string]interface{}{"count": len(entries)})
}

// Create godoc
// @Summary Create user
// @Description Create a practitioner or administrator account
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body service.CreateUserRequest true "Create user payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	user, err := h.service.Create(c.Request.Context(), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Delete godoc
// @Summary Deactivate user
// @Description Soft delete user by marking inactive
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
