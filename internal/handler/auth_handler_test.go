package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/middleware"
	"github.com/Maelco1/reset/internal/models"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

type authServiceMock struct {
	login     models.LoginRequest
	loggedOut string
	err       error
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.login = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2"}, m.err
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	m.loggedOut = userID
	return m.err
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc)

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"login":"abc","password":"secret"}`))
	c.Request.Header.Set("User-Agent", "planning-test")
	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", svc.login.Login)
	assert.Equal(t, "planning-test", svc.login.UserAgent)
	assert.Contains(t, w.Body.String(), "access")
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{err: appErrors.ErrInvalidCredentials})

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"login":"abc","password":"bad"}`))
	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc)

	c, _ := newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"refresh"}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "doc-1", Role: models.RoleDoctor})
	handler.Logout(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "doc-1", svc.loggedOut)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "doc-1", Trigram: "ABC", Role: models.RoleDoctor})
	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"trigram":"ABC"`)
}
