package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/models"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

type validatorStub struct {
	tokens map[string]*models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v.tokens[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type auditWriterStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAcceptsBearerAndRejectsOthers(t *testing.T) {
	validator := validatorStub{tokens: map[string]*models.JWTClaims{
		"good": {UserID: "doc-1", Role: models.RoleDoctor},
	}}
	r := newTestRouter()
	r.GET("/selections", JWT(validator), func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		c.String(http.StatusOK, claims.(*models.JWTClaims).UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/selections", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-1", w.Body.String())

	for _, header := range []string{"", "Basic good", "Bearer ", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodGet, "/selections", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code, header)
	}
}

func TestJWTQueryTokenOnlyForWebsocketUpgrades(t *testing.T) {
	validator := validatorStub{tokens: map[string]*models.JWTClaims{"good": {UserID: "admin-1", Role: models.RoleAdmin}}}
	r := newTestRouter()
	r.GET("/ws/planning", JWT(validator), func(c *gin.Context) { c.Status(http.StatusOK) })

	plain := httptest.NewRequest(http.MethodGet, "/ws/planning?access_token=good", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, plain).Code)

	upgrade := httptest.NewRequest(http.MethodGet, "/ws/planning?access_token=good", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	assert.Equal(t, http.StatusOK, serve(r, upgrade).Code)
}

func TestRequirePractitionerAndAdmin(t *testing.T) {
	cases := []struct {
		role         models.UserRole
		practitioner int
		admin        int
	}{
		{models.RoleDoctor, http.StatusOK, http.StatusForbidden},
		{models.RoleSubstitute, http.StatusOK, http.StatusForbidden},
		{models.RoleAdmin, http.StatusForbidden, http.StatusOK},
	}
	for _, tc := range cases {
		r := newTestRouter()
		r.Use(func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1", Role: tc.role})
		})
		r.POST("/selections/submit", RequirePractitioner(), func(c *gin.Context) { c.Status(http.StatusOK) })
		r.POST("/requests/:id/accept", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, tc.practitioner, serve(r, httptest.NewRequest(http.MethodPost, "/selections/submit", nil)).Code, tc.role)
		assert.Equal(t, tc.admin, serve(r, httptest.NewRequest(http.MethodPost, "/requests/7/accept", nil)).Code, tc.role)
	}
}

func TestRBACWithoutClaims(t *testing.T) {
	r := newTestRouter()
	r.GET("/requests", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/requests", nil)).Code)
}

func TestAuditRecordsSuccessfulCallsOnly(t *testing.T) {
	writer := &auditWriterStub{err: errors.New("db down")}
	r := newTestRouter()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	})
	r.POST("/requests/:id/accept", Audit(writer, zap.NewNop(), "REQUEST_ACCEPT", "planning_choices"), func(c *gin.Context) {
		if c.Param("id") == "0" {
			c.Status(http.StatusConflict)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/requests/42/accept", nil)).Code)
	assert.Equal(t, http.StatusConflict, serve(r, httptest.NewRequest(http.MethodPost, "/requests/0/accept", nil)).Code)

	require.Len(t, writer.logs, 1)
	log := writer.logs[0]
	assert.Equal(t, "REQUEST_ACCEPT", log.Action)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "42", *log.ResourceID)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "admin-1", *log.UserID)
	assert.Contains(t, string(log.NewValues), `"path":"/requests/:id/accept"`)
}

func TestResponseMetaCarriesCacheHit(t *testing.T) {
	r := newTestRouter()
	var meta map[string]interface{}
	r.GET("/planning/columns", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/planning/columns", nil)).Code)
	require.NotNil(t, meta)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, elapsedKey)
}
