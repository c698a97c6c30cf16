package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

const (
	settingsCacheKey    = "planning:settings"
	columnsCacheFormat  = "planning:columns:tour:%d"
	catalogCachePattern = "planning:*"
)

type columnStore interface {
	ListByTour(ctx context.Context, tour int) ([]models.PlanningColumn, error)
	UpsertMany(ctx context.Context, columns []models.PlanningColumn) error
}

type settingsStore interface {
	Get(ctx context.Context) (*models.PlanningSettings, error)
	Save(ctx context.Context, settings *models.PlanningSettings) error
}

type planningCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CatalogServiceConfig tunes the catalog service.
type CatalogServiceConfig struct {
	DefaultTour int
	CacheTTL    time.Duration
}

// CatalogService serves the slot catalog, the administrative settings and the calendar grid.
type CatalogService struct {
	columns   columnStore
	settings  settingsStore
	cache     planningCache
	audit     auditLogWriter
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CatalogServiceConfig
	now       func() time.Time
}

// CatalogOption customizes a CatalogService.
type CatalogOption func(*CatalogService)

// WithCatalogClock overrides the clock used to fill missing settings.
func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(s *CatalogService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCatalogService constructs a CatalogService. cache and audit may be nil.
func NewCatalogService(columns columnStore, settings settingsStore, cache planningCache, audit auditLogWriter, validate *validator.Validate, logger *zap.Logger, cfg CatalogServiceConfig, opts ...CatalogOption) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.DefaultTour = planning.SanitizeTour(cfg.DefaultTour, planning.MinTour)
	svc := &CatalogService{
		columns:   columns,
		settings:  settings,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Settings returns the stored settings and the window they resolve to, and whether they came
// from the cache.
func (s *CatalogService) Settings(ctx context.Context) (*dto.SettingsResponse, bool, error) {
	settings, hit, err := s.loadSettings(ctx)
	if err != nil {
		return nil, false, err
	}
	return s.settingsResponse(settings), hit, nil
}

// Window resolves the active tour and planning months.
func (s *CatalogService) Window(ctx context.Context) (planning.Window, error) {
	settings, _, err := s.loadSettings(ctx)
	if err != nil {
		return planning.Window{}, err
	}
	return planning.WindowFromSettings(settings, s.cfg.DefaultTour, s.now()), nil
}

// UpdateSettings stores new administrative parameters.
func (s *CatalogService) UpdateSettings(ctx context.Context, req dto.UpdateSettingsRequest, actor *models.JWTClaims) (*dto.SettingsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	current, _, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	previous := *current
	updated := *current
	updated.ActiveTour = req.ActiveTour
	if req.PlanningYear != nil {
		updated.PlanningYear = req.PlanningYear
	}
	if req.PlanningMonthOne != nil {
		updated.PlanningMonthOne = req.PlanningMonthOne
	}
	if req.PlanningMonthTwo != nil {
		updated.PlanningMonthTwo = req.PlanningMonthTwo
	}

	if err := s.settings.Save(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save planning settings")
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, models.AuditActionSettingsUpdate, "planning_settings", fmt.Sprintf("%d", updated.ID), previous, updated)

	return s.settingsResponse(&updated), nil
}

// Columns returns the catalog of a tour, creating the factory definitions of missing positions.
// A tour outside [1,6] falls back to the active tour.
func (s *CatalogService) Columns(ctx context.Context, tour int) ([]models.PlanningColumn, bool, error) {
	tour, err := s.resolveTour(ctx, tour)
	if err != nil {
		return nil, false, err
	}

	key := fmt.Sprintf(columnsCacheFormat, tour)
	var cached []models.PlanningColumn
	if hit := s.cacheGet(ctx, key, &cached); hit && len(cached) > 0 {
		return cached, true, nil
	}

	columns, _, err := s.ensureColumns(ctx, tour)
	if err != nil {
		return nil, false, err
	}
	s.cacheSet(ctx, key, columns)
	return columns, false, nil
}

// ColumnIndex returns the catalog of a tour keyed by position.
func (s *CatalogService) ColumnIndex(ctx context.Context, tour int) (planning.ColumnIndex, error) {
	columns, _, err := s.Columns(ctx, tour)
	if err != nil {
		return nil, err
	}
	return planning.IndexColumns(columns), nil
}

// Seed inserts the factory definitions of the missing positions of a tour and reports how many
// were created.
func (s *CatalogService) Seed(ctx context.Context, tour int) (int, error) {
	tour, err := s.resolveTour(ctx, tour)
	if err != nil {
		return 0, err
	}
	_, created, err := s.ensureColumns(ctx, tour)
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.invalidate(ctx)
	}
	return created, nil
}

// UpdateColumn edits one slot definition of a tour.
func (s *CatalogService) UpdateColumn(ctx context.Context, position int, req dto.UpdateColumnRequest, actor *models.JWTClaims) (*models.PlanningColumn, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid column payload")
	}
	if position < 1 || position > planning.ColumnCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("position must be between 1 and %d", planning.ColumnCount))
	}

	columns, _, err := s.Columns(ctx, req.Tour)
	if err != nil {
		return nil, err
	}
	idx := planning.IndexColumns(columns)
	previous, ok := idx[position]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "column not found")
	}

	updated := applyColumnChanges(previous, req)
	updated = planning.NormalizeColumn(updated)
	if err := s.columns.UpsertMany(ctx, []models.PlanningColumn{updated}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update column")
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, models.AuditActionColumnUpdate, "planning_columns", fmt.Sprintf("%d:%d", updated.TourNumber, updated.Position), previous, updated)
	return &updated, nil
}

// ImportColumns replaces definitions of a tour with externally supplied ones. Entries are
// normalized; positions outside the grid are rejected.
func (s *CatalogService) ImportColumns(ctx context.Context, tour int, columns []models.PlanningColumn) (int, error) {
	tour, err := s.resolveTour(ctx, tour)
	if err != nil {
		return 0, err
	}
	normalized := make([]models.PlanningColumn, 0, len(columns))
	for _, col := range columns {
		if col.Position < 1 || col.Position > planning.ColumnCount {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("position %d is outside the grid", col.Position))
		}
		col.TourNumber = tour
		normalized = append(normalized, planning.NormalizeColumn(col))
	}
	if err := s.columns.UpsertMany(ctx, normalized); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import columns")
	}
	s.invalidate(ctx)
	return len(normalized), nil
}

// Calendar builds the grid of the active window: every day with the quality and opening of
// each column.
func (s *CatalogService) Calendar(ctx context.Context) (*dto.CalendarResponse, error) {
	window, err := s.Window(ctx)
	if err != nil {
		return nil, err
	}
	columns, _, err := s.Columns(ctx, window.Tour)
	if err != nil {
		return nil, err
	}
	days, err := window.Days()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enumerate planning days")
	}

	normal := models.NatureNormal
	good := models.NatureGood
	grid := make([]dto.CalendarDay, 0, len(days))
	for _, day := range days {
		segment := planning.Segment(day)
		row := dto.CalendarDay{
			Date:    day.Format(models.DayLayout),
			Label:   planning.DayLabel(day),
			Segment: segment,
			Cells:   make([]dto.CalendarCell, 0, len(columns)),
		}
		if name, ok := planning.HolidayName(day); ok {
			row.Holiday = name
		}
		for _, col := range columns {
			row.Cells = append(row.Cells, dto.CalendarCell{
				Position:  col.Position,
				Label:     col.Label,
				Quality:   planning.SanitizeQuality(col.Quality(segment)),
				Preferred: planning.PreferredNature(col, segment),
				OpenNorm:  planning.IsSlotOpen(col, segment, &normal),
				OpenGood:  planning.IsSlotOpen(col, segment, &good),
				Color:     col.Color,
			})
		}
		grid = append(grid, row)
	}

	return &dto.CalendarResponse{
		Reference: window.Reference(),
		Tour:      window.Tour,
		Columns:   columns,
		Days:      grid,
	}, nil
}

func (s *CatalogService) ensureColumns(ctx context.Context, tour int) ([]models.PlanningColumn, int, error) {
	existing, err := s.columns.ListByTour(ctx, tour)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load columns")
	}
	missing := planning.MissingColumns(tour, existing)
	if len(missing) > 0 {
		if err := s.columns.UpsertMany(ctx, missing); err != nil {
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create default columns")
		}
		s.logger.Info("created default planning columns", zap.Int("tour", tour), zap.Int("count", len(missing)))
	}
	idx := planning.IndexColumns(append(existing, missing...))
	return idx.Sorted(), len(missing), nil
}

func (s *CatalogService) loadSettings(ctx context.Context) (*models.PlanningSettings, bool, error) {
	var cached models.PlanningSettings
	if hit := s.cacheGet(ctx, settingsCacheKey, &cached); hit {
		return &cached, true, nil
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.PlanningSettings{ActiveTour: s.cfg.DefaultTour}, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load planning settings")
	}
	s.cacheSet(ctx, settingsCacheKey, settings)
	return settings, false, nil
}

func (s *CatalogService) resolveTour(ctx context.Context, tour int) (int, error) {
	if tour >= planning.MinTour && tour <= planning.MaxTour {
		return tour, nil
	}
	window, err := s.Window(ctx)
	if err != nil {
		return 0, err
	}
	return window.Tour, nil
}

func (s *CatalogService) settingsResponse(settings *models.PlanningSettings) *dto.SettingsResponse {
	window := planning.WindowFromSettings(settings, s.cfg.DefaultTour, s.now())
	return &dto.SettingsResponse{
		Settings:  *settings,
		Tour:      window.Tour,
		Year:      window.Year,
		MonthOne:  int(window.MonthOne),
		MonthTwo:  int(window.MonthTwo),
		Reference: window.Reference(),
	}
}

func (s *CatalogService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false
	}
	return hit
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, value, s.cfg.CacheTTL)
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, catalogCachePattern)
}

func (s *CatalogService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string, oldValue, newValue interface{}) {
	if s.audit == nil {
		return
	}
	oldJSON, _ := json.Marshal(oldValue)
	newJSON, _ := json.Marshal(newValue)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
	}
	if actor != nil && actor.UserID != "" {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func applyColumnChanges(col models.PlanningColumn, req dto.UpdateColumnRequest) models.PlanningColumn {
	if req.Label != nil {
		col.Label = *req.Label
	}
	if req.TypeCode != nil {
		col.TypeCode = *req.TypeCode
		if req.TypeCategory == nil {
			col.TypeCategory = planning.InferCategory(col.TypeCode)
		}
	}
	if req.TypeCategory != nil {
		col.TypeCategory = models.ActivityCategory(strings.TrimSpace(*req.TypeCategory))
	}
	if req.StartTime != nil {
		col.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		col.EndTime = req.EndTime
	}
	if req.Color != nil {
		col.Color = *req.Color
	}
	if req.QualityWeekdays != nil {
		col.QualityWeekdays = models.SlotQuality(*req.QualityWeekdays)
	}
	if req.QualitySaturday != nil {
		col.QualitySaturday = models.SlotQuality(*req.QualitySaturday)
	}
	if req.QualitySunday != nil {
		col.QualitySunday = models.SlotQuality(*req.QualitySunday)
	}
	setFlag(&col.OpenMauvaiseWeekdays, req.OpenMauvaiseWeekdays)
	setFlag(&col.OpenMauvaiseSaturday, req.OpenMauvaiseSaturday)
	setFlag(&col.OpenMauvaiseSunday, req.OpenMauvaiseSunday)
	setFlag(&col.OpenBonusWeekdays, req.OpenBonusWeekdays)
	setFlag(&col.OpenBonusSaturday, req.OpenBonusSaturday)
	setFlag(&col.OpenBonusSunday, req.OpenBonusSunday)
	return col
}

func setFlag(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
