package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/middleware"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/service"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withAdmin(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
}

type resolutionServiceMock struct {
	query      dto.RequestBoardQuery
	choices    []models.PlanningChoice
	history    []models.ChoiceAudit
	decision   *dto.DecisionResponse
	err        error
	acceptedID int64
	refusal    dto.RefuseRequest
	claims     *models.JWTClaims
}

func (m *resolutionServiceMock) List(ctx context.Context, query dto.RequestBoardQuery) ([]models.PlanningChoice, error) {
	m.query = query
	return m.choices, m.err
}

func (m *resolutionServiceMock) History(ctx context.Context, id int64) ([]models.ChoiceAudit, error) {
	return m.history, m.err
}

func (m *resolutionServiceMock) Accept(ctx context.Context, id int64, claims *models.JWTClaims) (*dto.DecisionResponse, error) {
	m.acceptedID = id
	m.claims = claims
	return m.decision, m.err
}

func (m *resolutionServiceMock) Refuse(ctx context.Context, id int64, req dto.RefuseRequest, claims *models.JWTClaims) (*dto.DecisionResponse, error) {
	m.refusal = req
	m.claims = claims
	return m.decision, m.err
}

type boardSnapshotStub struct {
	snapshot service.BoardSnapshot
	err      error
}

func (b boardSnapshotStub) Snapshot(ctx context.Context) (service.BoardSnapshot, error) {
	return b.snapshot, b.err
}

func TestRequestHandlerListBindsFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &resolutionServiceMock{choices: []models.PlanningChoice{{ID: 1}, {ID: 2}}}
	handler := NewRequestHandler(svc, boardSnapshotStub{})

	c, w := newGinContext(http.MethodGet, "/requests?status=validated&doctor=abc&tour=2", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "validated", svc.query.Status)
	assert.Equal(t, "abc", svc.query.Doctor)
	assert.Equal(t, 2, svc.query.Tour)

	var body struct {
		Data []models.PlanningChoice `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.EqualValues(t, 2, body.Meta["count"])
}

func TestRequestHandlerListRejectsBadTour(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&resolutionServiceMock{}, boardSnapshotStub{})

	c, w := newGinContext(http.MethodGet, "/requests?tour=first", nil)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerAcceptConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &resolutionServiceMock{err: appErrors.ErrScheduleConflict}
	handler := NewRequestHandler(svc, boardSnapshotStub{})

	c, w := newGinContext(http.MethodPost, "/requests/12/accept", nil)
	c.Params = gin.Params{{Key: "id", Value: "12"}}
	withAdmin(c)
	handler.Accept(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int64(12), svc.acceptedID)
	require.NotNil(t, svc.claims)
	assert.Equal(t, "admin-1", svc.claims.UserID)
}

func TestRequestHandlerAcceptInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&resolutionServiceMock{}, boardSnapshotStub{})

	c, w := newGinContext(http.MethodPost, "/requests/abc/accept", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Accept(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerRefuseWithReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &resolutionServiceMock{decision: &dto.DecisionResponse{Message: "refused"}}
	handler := NewRequestHandler(svc, boardSnapshotStub{})

	payload, _ := json.Marshal(dto.RefuseRequest{Reason: "déjà pris"})
	c, w := newGinContext(http.MethodPost, "/requests/3/refuse", payload)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	withAdmin(c)
	handler.Refuse(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "déjà pris", svc.refusal.Reason)
}

func TestRequestHandlerRefuseWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &resolutionServiceMock{decision: &dto.DecisionResponse{}}
	handler := NewRequestHandler(svc, boardSnapshotStub{})

	c, w := newGinContext(http.MethodPost, "/requests/3/refuse", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	handler.Refuse(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.refusal.Reason)
}

func TestRequestHandlerHistoryNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&resolutionServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "request not found")}, boardSnapshotStub{})

	c, w := newGinContext(http.MethodGet, "/requests/9/history", nil)
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	handler.History(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	board := boardSnapshotStub{snapshot: service.BoardSnapshot{
		Reference: "tour1-2024-06-07",
		Tour:      1,
		Counts:    map[models.ChoiceStatus]int{models.StatusPending: 3},
	}}
	handler := NewRequestHandler(&resolutionServiceMock{}, board)

	c, w := newGinContext(http.MethodGet, "/requests/summary", nil)
	handler.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"en attente":3`)
	assert.Contains(t, w.Body.String(), "tour1-2024-06-07")
}
