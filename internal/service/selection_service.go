package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
	"github.com/Maelco1/reset/internal/repository"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

// SubmitSuccessMessage is returned after a successful submission.
const SubmitSuccessMessage = "Choix enregistrés avec succès !"

type draftStore interface {
	Load(ctx context.Context, key string) (planning.Snapshot, error)
	Save(ctx context.Context, key string, snapshot planning.Snapshot) error
	Delete(ctx context.Context, key string) error
}

type choiceBatchWriter interface {
	ReplacePendingBatch(ctx context.Context, scope models.ChoiceScope, choices []models.PlanningChoice) error
}

type catalogReader interface {
	Window(ctx context.Context) (planning.Window, error)
	ColumnIndex(ctx context.Context, tour int) (planning.ColumnIndex, error)
}

// SelectionService manages practitioners' drafts and turns them into pending requests.
type SelectionService struct {
	drafts      draftStore
	choices     choiceBatchWriter
	catalog     catalogReader
	publisher   changePublisher
	validator   *validator.Validate
	logger      *zap.Logger
	autoAdvance bool
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*draftLock
}

// draftLock serialises edits of one draft; refs counts holders and waiters.
type draftLock struct {
	sync.Mutex
	refs int
}

// SelectionOption customizes a SelectionService.
type SelectionOption func(*SelectionService)

// WithSelectionAutoAdvance moves the choice cursor forward after each added slot.
func WithSelectionAutoAdvance(enabled bool) SelectionOption {
	return func(s *SelectionService) {
		s.autoAdvance = enabled
	}
}

// WithSelectionClock overrides the submission timestamp source.
func WithSelectionClock(now func() time.Time) SelectionOption {
	return func(s *SelectionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSelectionService constructs a SelectionService. publisher may be nil.
func NewSelectionService(drafts draftStore, choices choiceBatchWriter, catalog catalogReader, publisher changePublisher, validate *validator.Validate, logger *zap.Logger, opts ...SelectionOption) *SelectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SelectionService{
		drafts:    drafts,
		choices:   choices,
		catalog:   catalog,
		publisher: publisher,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[string]*draftLock),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// draftSession is the context handed to draft mutations.
type draftSession struct {
	model   *planning.SelectionModel
	window  planning.Window
	columns planning.ColumnIndex
}

// State returns the normalized draft of the practitioner.
func (s *SelectionService) State(ctx context.Context, actor *models.JWTClaims) (*dto.SelectionState, error) {
	return s.mutate(ctx, actor, false, nil)
}

// Add selects a cell under the active index of the requested nature.
func (s *SelectionService) Add(ctx context.Context, actor *models.JWTClaims, req dto.SelectionRequest) (*dto.SelectionState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}
	return s.mutate(ctx, actor, true, func(sess *draftSession) error {
		slot, nature, err := resolveSlot(sess, req)
		if err != nil {
			return err
		}
		sess.model.Add(slot, nature)
		return nil
	})
}

// Toggle removes a selected cell or selects it otherwise.
func (s *SelectionService) Toggle(ctx context.Context, actor *models.JWTClaims, req dto.SelectionRequest) (*dto.SelectionState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}
	return s.mutate(ctx, actor, true, func(sess *draftSession) error {
		day, _ := time.Parse(models.DayLayout, req.Day)
		if sess.model.Remove(models.SlotKey(day, req.Position)) {
			return nil
		}
		slot, nature, err := resolveSlot(sess, req)
		if err != nil {
			return err
		}
		sess.model.Add(slot, nature)
		return nil
	})
}

// Remove drops one selection. Unknown keys are ignored.
func (s *SelectionService) Remove(ctx context.Context, actor *models.JWTClaims, slotKey string) (*dto.SelectionState, error) {
	return s.mutate(ctx, actor, true, func(sess *draftSession) error {
		sess.model.Remove(slotKey)
		return nil
	})
}

// SetRole promotes a selection to principal of its group or demotes it.
func (s *SelectionService) SetRole(ctx context.Context, actor *models.JWTClaims, slotKey string, req dto.SelectionRoleRequest) (*dto.SelectionState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	return s.mutate(ctx, actor, true, func(sess *draftSession) error {
		if err := sess.model.SetRole(slotKey, planning.Role(req.Role)); err != nil {
			if errors.Is(err, planning.ErrUnknownSelection) {
				return appErrors.Clone(appErrors.ErrNotFound, "selection not found")
			}
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		return nil
	})
}

// Reorder applies a drag result to one nature.
func (s *SelectionService) Reorder(ctx context.Context, actor *models.JWTClaims, req dto.SelectionOrderRequest) (*dto.SelectionState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload")
	}
	return s.mutate(ctx, actor, true, func(sess *draftSession) error {
		sess.model.ReorderFromPresentation(models.ParseGuardNature(req.Nature), req.SlotKeys)
		return nil
	})
}

// SetActiveIndex moves the choice cursor of a nature.
func (s *SelectionService) SetActiveIndex(ctx context.Context, actor *models.JWTClaims, req dto.ActiveIndexRequest) (*dto.SelectionState, error) {
	return s.mutate(ctx, actor, true, func(sess *draftSession) error {
		sess.model.SetActiveIndex(models.ParseGuardNature(req.Nature), req.Index)
		return nil
	})
}

// Clear discards the draft.
func (s *SelectionService) Clear(ctx context.Context, actor *models.JWTClaims) error {
	trigram, err := actorTrigram(actor)
	if err != nil {
		return err
	}
	window, err := s.catalog.Window(ctx)
	if err != nil {
		return err
	}
	key := repository.DraftKey(window.Reference(), trigram)
	unlock := s.lock(key)
	defer unlock()
	if err := s.drafts.Delete(ctx, key); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear selections")
	}
	return nil
}

// Submit replaces the practitioner's pending requests of the active window with the draft.
func (s *SelectionService) Submit(ctx context.Context, actor *models.JWTClaims) (*dto.SubmitResponse, error) {
	trigram, err := actorTrigram(actor)
	if err != nil {
		return nil, err
	}
	window, err := s.catalog.Window(ctx)
	if err != nil {
		return nil, err
	}
	reference := window.Reference()
	key := repository.DraftKey(reference, trigram)
	unlock := s.lock(key)
	defer unlock()

	model, err := s.loadModel(ctx, key)
	if err != nil {
		return nil, err
	}
	if model.Len() == 0 {
		return nil, appErrors.ErrEmptySelection
	}

	grouped := model.Groups()
	createdAt := s.now()
	userType := models.ParseUserType(string(actor.Role))
	choices := make([]models.PlanningChoice, 0, len(grouped.Selections))
	for _, sel := range grouped.Selections {
		choices = append(choices, models.PlanningChoice{
			UserID:            actor.UserID,
			Trigram:           trigram,
			UserType:          userType,
			CreatedAt:         createdAt,
			Day:               sel.Day,
			Month:             int(sel.Day.Month()),
			Year:              sel.Day.Year(),
			ColumnNumber:      sel.ColumnPosition,
			ColumnLabel:       sel.ColumnLabel,
			PlanningDayLabel:  sel.DayLabel,
			SlotTypeCode:      sel.SlotTypeCode,
			GuardNature:       sel.Nature,
			ActivityType:      sel.ActivityCategory.ActivityType(),
			ChoiceOrder:       models.IntPtr(sel.Order),
			ChoiceIndex:       models.IntPtr(sel.ChoiceIndex),
			ChoiceRank:        models.IntPtr(sel.ChoiceRank),
			Status:            models.StatusPending,
			IsActive:          true,
			PlanningReference: reference,
			TourNumber:        window.Tour,
		})
	}

	scope := models.ChoiceScope{PlanningReference: reference, TourNumber: window.Tour, Trigram: trigram}
	if err := s.choices.ReplacePendingBatch(ctx, scope, choices); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit selections")
	}
	if err := s.drafts.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to clear submitted draft", zap.String("key", key), zap.Error(err))
	}

	ids := make([]int64, 0, len(choices))
	for _, choice := range choices {
		ids = append(ids, choice.ID)
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, ChangeEvent{
			Action:    ChangeActionSubmit,
			Reference: reference,
			Tour:      window.Tour,
			ChoiceIDs: ids,
			Actor:     trigram,
		})
	}
	s.logger.Info("planning selections submitted", zap.String("trigram", trigram), zap.String("reference", reference), zap.Int("count", len(choices)))

	return &dto.SubmitResponse{
		Message:   SubmitSuccessMessage,
		Submitted: len(choices),
		Reference: reference,
	}, nil
}

// mutate loads the draft under its key lock, applies fn and persists the result when write
// is set.
func (s *SelectionService) mutate(ctx context.Context, actor *models.JWTClaims, write bool, fn func(*draftSession) error) (*dto.SelectionState, error) {
	trigram, err := actorTrigram(actor)
	if err != nil {
		return nil, err
	}
	window, err := s.catalog.Window(ctx)
	if err != nil {
		return nil, err
	}
	key := repository.DraftKey(window.Reference(), trigram)
	unlock := s.lock(key)
	defer unlock()

	model, err := s.loadModel(ctx, key)
	if err != nil {
		return nil, err
	}

	if fn != nil {
		columns, err := s.catalog.ColumnIndex(ctx, window.Tour)
		if err != nil {
			return nil, err
		}
		if err := fn(&draftSession{model: model, window: window, columns: columns}); err != nil {
			return nil, err
		}
	}

	snapshot := model.Snapshot()
	if write {
		if err := s.drafts.Save(ctx, key, snapshot); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save selections")
		}
	}
	grouped := model.Groups()
	return &dto.SelectionState{
		Reference:   window.Reference(),
		Groups:      grouped.Groups,
		Selections:  grouped.Selections,
		ActiveIndex: snapshot.ActiveIndex,
	}, nil
}

func (s *SelectionService) loadModel(ctx context.Context, key string) (*planning.SelectionModel, error) {
	snapshot, err := s.drafts.Load(ctx, key)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			return planning.NewSelectionModel(planning.WithAutoAdvance(s.autoAdvance)), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selections")
	}
	return planning.RestoreSelectionModel(snapshot, planning.WithAutoAdvance(s.autoAdvance)), nil
}

// lock takes the draft lock of key. The entry is dropped once its last holder releases it.
func (s *SelectionService) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &draftLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func resolveSlot(sess *draftSession, req dto.SelectionRequest) (planning.SlotRef, models.GuardNature, error) {
	day, err := time.Parse(models.DayLayout, req.Day)
	if err != nil {
		return planning.SlotRef{}, "", appErrors.Clone(appErrors.ErrValidation, "invalid day")
	}
	if !sess.window.Contains(day) {
		return planning.SlotRef{}, "", appErrors.Clone(appErrors.ErrValidation, "day is outside the planning window")
	}
	col, ok := sess.columns[req.Position]
	if !ok {
		return planning.SlotRef{}, "", appErrors.ErrSlotClosed
	}
	nature := models.ParseGuardNature(req.Nature)
	if !planning.IsSlotOpen(col, planning.Segment(day), &nature) {
		return planning.SlotRef{}, "", appErrors.ErrSlotClosed
	}
	return planning.SlotRef{
		Day:              day,
		Position:         col.Position,
		ColumnLabel:      col.Label,
		SlotTypeCode:     col.TypeCode,
		ActivityCategory: col.TypeCategory,
		DayLabel:         planning.DayLabel(day),
	}, nature, nil
}

func actorTrigram(actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	trigram := models.NormalizeTrigram(actor.Trigram)
	if trigram == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "a trigram is required to manage planning requests")
	}
	return trigram, nil
}
