package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

type columnStoreStub struct {
	byTour  map[int][]models.PlanningColumn
	upserts [][]models.PlanningColumn
	listErr error
}

func (s *columnStoreStub) ListByTour(ctx context.Context, tour int) ([]models.PlanningColumn, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.PlanningColumn(nil), s.byTour[tour]...), nil
}

func (s *columnStoreStub) UpsertMany(ctx context.Context, columns []models.PlanningColumn) error {
	if s.byTour == nil {
		s.byTour = make(map[int][]models.PlanningColumn)
	}
	s.upserts = append(s.upserts, columns)
	for _, col := range columns {
		list := s.byTour[col.TourNumber]
		replaced := false
		for i := range list {
			if list[i].Position == col.Position {
				list[i] = col
				replaced = true
			}
		}
		if !replaced {
			list = append(list, col)
		}
		s.byTour[col.TourNumber] = list
	}
	return nil
}

type settingsStoreStub struct {
	current *models.PlanningSettings
	saved   []models.PlanningSettings
}

func (s *settingsStoreStub) Get(ctx context.Context) (*models.PlanningSettings, error) {
	if s.current == nil {
		return nil, sql.ErrNoRows
	}
	clone := *s.current
	return &clone, nil
}

func (s *settingsStoreStub) Save(ctx context.Context, settings *models.PlanningSettings) error {
	if settings.ID == 0 {
		settings.ID = 1
	}
	s.saved = append(s.saved, *settings)
	clone := *settings
	s.current = &clone
	return nil
}

type memoryCacheStub struct {
	values      map[string][]byte
	invalidated []string
}

func (c *memoryCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.values == nil {
		c.values = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *memoryCacheStub) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
	return nil
}

type auditLogStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditLogStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2024, time.May, 20, 10, 0, 0, 0, time.UTC)
}

func newCatalogFixture() (*CatalogService, *columnStoreStub, *settingsStoreStub, *memoryCacheStub, *auditLogStub) {
	columns := &columnStoreStub{}
	settings := &settingsStoreStub{}
	cache := &memoryCacheStub{}
	audit := &auditLogStub{}
	svc := NewCatalogService(columns, settings, cache, audit, nil, nil, CatalogServiceConfig{DefaultTour: 1}, WithCatalogClock(fixedClock))
	return svc, columns, settings, cache, audit
}

func TestCatalogServiceColumnsCreatesDefaults(t *testing.T) {
	svc, columns, _, cache, _ := newCatalogFixture()
	columns.byTour = map[int][]models.PlanningColumn{
		2: {{TourNumber: 2, Position: 3, Label: "Nuit", TypeCode: "3N", Color: "#ABC"}},
	}

	result, hit, err := svc.Columns(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, result, planning.ColumnCount)
	assert.Equal(t, "Nuit", result[2].Label)
	assert.Equal(t, "#aabbcc", result[2].Color)
	require.Len(t, columns.upserts, 1)
	assert.Len(t, columns.upserts[0], planning.ColumnCount-1)

	_, hit, err = svc.Columns(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, columns.upserts, 1, "second read is served from cache")
	assert.Contains(t, cache.values, "planning:columns:tour:2")
}

func TestCatalogServiceColumnsFallsBackToActiveTour(t *testing.T) {
	svc, columns, settings, _, _ := newCatalogFixture()
	settings.current = &models.PlanningSettings{ID: 1, ActiveTour: 4}

	result, _, err := svc.Columns(context.Background(), 9)
	require.NoError(t, err)
	require.NotEmpty(t, result)
	assert.Equal(t, 4, result[0].TourNumber)
	assert.Contains(t, columns.byTour, 4)
}

func TestCatalogServiceSettingsDefaults(t *testing.T) {
	svc, _, _, _, _ := newCatalogFixture()

	res, hit, err := svc.Settings(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, res.Tour)
	assert.Equal(t, 2024, res.Year)
	assert.Equal(t, 5, res.MonthOne)
	assert.Equal(t, 6, res.MonthTwo)
	assert.Equal(t, "tour1-2024-05-06", res.Reference)
}

func TestCatalogServiceUpdateSettings(t *testing.T) {
	svc, _, settings, cache, audit := newCatalogFixture()
	cache.values = map[string][]byte{settingsCacheKey: []byte(`{"active_tour":1}`)}

	res, err := svc.UpdateSettings(context.Background(), dto.UpdateSettingsRequest{
		ActiveTour:       2,
		PlanningYear:     models.IntPtr(2024),
		PlanningMonthOne: models.IntPtr(10),
		PlanningMonthTwo: models.IntPtr(11),
	}, &models.JWTClaims{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "tour2-2024-11-12", res.Reference)
	require.Len(t, settings.saved, 1)
	assert.Equal(t, 2, settings.saved[0].ActiveTour)
	assert.NotContains(t, cache.values, settingsCacheKey)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSettingsUpdate, audit.logs[0].Action)
	require.NotNil(t, audit.logs[0].UserID)
	assert.Equal(t, "admin-1", *audit.logs[0].UserID)
}

func TestCatalogServiceUpdateSettingsRejectsInvalidTour(t *testing.T) {
	svc, _, settings, _, _ := newCatalogFixture()

	_, err := svc.UpdateSettings(context.Background(), dto.UpdateSettingsRequest{ActiveTour: 7}, nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, settings.saved)
}

func TestCatalogServiceUpdateColumn(t *testing.T) {
	svc, columns, _, _, audit := newCatalogFixture()
	label := "  Visite matin "
	start := "08:00"
	end := "13:00"
	closed := false
	bonus := "Bonus"

	col, err := svc.UpdateColumn(context.Background(), 7, dto.UpdateColumnRequest{
		Tour:              1,
		Label:             &label,
		StartTime:         &start,
		EndTime:           &end,
		QualitySunday:     &bonus,
		OpenBonusWeekdays: &closed,
	}, &models.JWTClaims{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "Visite matin", col.Label)
	assert.Equal(t, models.QualityGood, col.QualitySunday)
	assert.False(t, col.OpenBonusWeekdays)
	assert.True(t, col.OpenMauvaiseWeekdays)
	require.Len(t, columns.upserts, 2)
	assert.Equal(t, 7, columns.upserts[1][0].Position)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionColumnUpdate, audit.logs[0].Action)
}

func TestCatalogServiceUpdateColumnRejectsPosition(t *testing.T) {
	svc, _, _, _, _ := newCatalogFixture()

	_, err := svc.UpdateColumn(context.Background(), 47, dto.UpdateColumnRequest{Tour: 1}, nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestCatalogServiceImportColumns(t *testing.T) {
	svc, columns, _, cache, _ := newCatalogFixture()

	count, err := svc.ImportColumns(context.Background(), 3, []models.PlanningColumn{
		{Position: 1, Label: "Nuit 1", TypeCode: "1N", Color: "red"},
		{Position: 2, TypeCode: "TC"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	stored := columns.byTour[3]
	require.Len(t, stored, 2)
	assert.Equal(t, planning.DefaultColor, stored[0].Color)
	assert.Equal(t, models.CategoryTeleconsulting, stored[1].TypeCategory)
	assert.Equal(t, "Colonne 2", stored[1].Label)
	assert.Contains(t, cache.invalidated, catalogCachePattern)

	_, err = svc.ImportColumns(context.Background(), 3, []models.PlanningColumn{{Position: 0}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestCatalogServiceCalendar(t *testing.T) {
	svc, _, settings, _, _ := newCatalogFixture()
	settings.current = &models.PlanningSettings{ID: 1, ActiveTour: 1, PlanningYear: models.IntPtr(2024), PlanningMonthOne: models.IntPtr(4), PlanningMonthTwo: models.IntPtr(5)}

	cal, err := svc.Calendar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tour1-2024-05-06", cal.Reference)
	assert.Len(t, cal.Days, 31+30)
	assert.Len(t, cal.Columns, planning.ColumnCount)

	first := cal.Days[0]
	assert.Equal(t, "2024-05-01", first.Date)
	assert.Equal(t, models.SegmentSunday, first.Segment)
	assert.Equal(t, "Fête du Travail", first.Holiday)
	require.Len(t, first.Cells, planning.ColumnCount)
	assert.True(t, first.Cells[0].OpenNorm)
}

func TestCatalogServiceColumnsPropagatesStoreError(t *testing.T) {
	svc, columns, _, _, _ := newCatalogFixture()
	columns.listErr = errors.New("db down")

	_, _, err := svc.Columns(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}
