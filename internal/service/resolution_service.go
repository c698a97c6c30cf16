package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

// DefaultRefusalReason is recorded when an administrator refuses without a reason.
const DefaultRefusalReason = "Demande refusée"

type choiceStore interface {
	List(ctx context.Context, filter models.ChoiceFilter) ([]models.PlanningChoice, error)
	GetByID(ctx context.Context, id int64) (*models.PlanningChoice, error)
	ListBySlot(ctx context.Context, reference string, tour int, day time.Time, column int) ([]models.PlanningChoice, error)
	ListByGroup(ctx context.Context, reference string, tour int, trigram string, index *int) ([]models.PlanningChoice, error)
	ListByOrder(ctx context.Context, reference string, tour int, trigram string, order int) ([]models.PlanningChoice, error)
	ListValidatedOnDay(ctx context.Context, reference string, tour int, trigram string, day time.Time) ([]models.PlanningChoice, error)
	ApplyStateChanges(ctx context.Context, changes []models.StateChange) ([]models.StateChange, error)
}

type choiceAuditStore interface {
	Create(ctx context.Context, audit *models.ChoiceAudit) error
	ListByChoice(ctx context.Context, choiceID int64) ([]models.ChoiceAudit, error)
}

type workQueuePruner interface {
	DeleteByChoiceIDs(ctx context.Context, reference string, tour int, ids []int64) error
	DeleteByRoot(ctx context.Context, reference string, tour int, trigram string, rootIndex int) error
}

type transitionRecorder interface {
	RecordTransitions(changes []models.StateChange)
}

// AcceptanceOutcome is what one acceptance changed.
type AcceptanceOutcome struct {
	Target  models.PlanningChoice
	Plan    planning.AcceptancePlan
	Applied []models.StateChange
}

// ResolutionService accepts and refuses submitted requests.
type ResolutionService struct {
	choices   choiceStore
	audits    choiceAuditStore
	queue     workQueuePruner
	catalog   catalogReader
	metrics   transitionRecorder
	publisher changePublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResolutionService constructs a ResolutionService. queue, metrics and publisher may be nil.
func NewResolutionService(choices choiceStore, audits choiceAuditStore, queue workQueuePruner, catalog catalogReader, metrics transitionRecorder, publisher changePublisher, validate *validator.Validate, logger *zap.Logger) *ResolutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolutionService{
		choices:   choices,
		audits:    audits,
		queue:     queue,
		catalog:   catalog,
		metrics:   metrics,
		publisher: publisher,
		validator: validate,
		logger:    logger,
	}
}

// List returns the admin request board. The planning reference and tour default to the
// active window.
func (s *ResolutionService) List(ctx context.Context, query dto.RequestBoardQuery) ([]models.PlanningChoice, error) {
	filter, err := s.boardFilter(ctx, query)
	if err != nil {
		return nil, err
	}
	choices, err := s.choices.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list planning requests")
	}
	if choices == nil {
		choices = []models.PlanningChoice{}
	}
	return choices, nil
}

// History returns the audit trail of one request.
func (s *ResolutionService) History(ctx context.Context, id int64) ([]models.ChoiceAudit, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	audits, err := s.audits.ListByChoice(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request history")
	}
	if audits == nil {
		audits = []models.ChoiceAudit{}
	}
	return audits, nil
}

// Accept validates a request and resolves its alternatives and competitors.
func (s *ResolutionService) Accept(ctx context.Context, id int64, claims *models.JWTClaims) (*dto.DecisionResponse, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := actorFromClaims(claims)
	outcome, err := s.AcceptChoice(ctx, *target, planning.ManualReasons(), actor)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, ChangeActionAccept, outcome.Target, outcome.Plan.AffectedIDs(), actor)
	return &dto.DecisionResponse{
		Choice:   outcome.Target,
		Applied:  outcome.Applied,
		Affected: outcome.Plan.AffectedIDs(),
		Message:  "Demande acceptée.",
	}, nil
}

// AcceptChoice runs the acceptance path of target with the given operation-log texts and
// returns every applied transition, promotions included. It does not publish change events.
func (s *ResolutionService) AcceptChoice(ctx context.Context, target models.PlanningChoice, reasons planning.Reasons, actor models.Actor) (*AcceptanceOutcome, error) {
	if target.Status == models.StatusValidated {
		return nil, appErrors.ErrAlreadyValidated
	}

	ref, tour := target.PlanningReference, target.TourNumber
	columns, err := s.catalog.ColumnIndex(ctx, tour)
	if err != nil {
		return nil, err
	}
	validated, err := s.choices.ListValidatedOnDay(ctx, ref, tour, target.Trigram, target.Day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule conflicts")
	}
	if planning.HasScheduleConflict(target, validated, columns) {
		return nil, appErrors.ErrScheduleConflict
	}

	competing, err := s.choices.ListBySlot(ctx, ref, tour, target.Day, target.ColumnNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competing requests")
	}
	sameIndex, err := s.choices.ListByGroup(ctx, ref, tour, target.Trigram, target.ChoiceIndex)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request group")
	}
	var sameOrder []models.PlanningChoice
	if target.ChoiceOrder != nil {
		sameOrder, err = s.choices.ListByOrder(ctx, ref, tour, target.Trigram, *target.ChoiceOrder)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission group")
		}
	}

	plan := planning.PlanAcceptance(planning.AcceptanceInput{
		Target:    target,
		Competing: competing,
		SameIndex: sameIndex,
		SameOrder: sameOrder,
		Reasons:   reasons,
	})
	applied, err := s.choices.ApplyStateChanges(ctx, plan.Changes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept request")
	}

	known := indexChoices(target, competing, sameIndex, sameOrder)
	rules := make(map[int64]planning.AlternativeRule, len(plan.Alternatives))
	for _, alt := range plan.Alternatives {
		rules[alt.Choice.ID] = alt.Rule
	}

	refused := make(map[int64]struct{}, len(applied))
	for _, change := range applied {
		if change.Action == models.ChangeRefuse {
			refused[change.ChoiceID] = struct{}{}
		}
	}
	losers := make([]models.PlanningChoice, 0, len(plan.PrimaryLosers))
	for _, loser := range plan.PrimaryLosers {
		if _, ok := refused[loser.ID]; ok {
			losers = append(losers, loser)
		}
	}
	promotions, err := s.promote(ctx, losers, reasons.Promotion, known)
	if err != nil {
		return nil, err
	}
	applied = append(applied, promotions...)

	for _, change := range applied {
		s.recordChoiceAudit(ctx, known[change.ChoiceID], change, actor, rules[change.ChoiceID])
	}
	s.pruneWorkQueue(ctx, target, plan.AffectedIDs())
	if s.metrics != nil {
		s.metrics.RecordTransitions(applied)
	}

	for _, change := range applied {
		if change.ChoiceID == target.ID {
			change.Next.Apply(&target)
		}
	}
	s.logger.Info("planning request accepted",
		zap.Int64("choice_id", target.ID),
		zap.String("trigram", target.Trigram),
		zap.Int("transitions", len(applied)),
	)
	return &AcceptanceOutcome{Target: target, Plan: plan, Applied: applied}, nil
}

// Refuse refuses a request and promotes the next alternative when it was a primary.
func (s *ResolutionService) Refuse(ctx context.Context, id int64, req dto.RefuseRequest, claims *models.JWTClaims) (*dto.DecisionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refusal payload")
	}
	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Status == models.StatusRefused {
		return nil, appErrors.ErrAlreadyRefused
	}

	reason := strings.TrimSpace(req.Reason)
	change := planning.PlanRefusal(*target, firstNonEmpty(reason, DefaultRefusalReason))
	applied, err := s.choices.ApplyStateChanges(ctx, []models.StateChange{change})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refuse request")
	}

	known := indexChoices(*target)
	if planning.RankOf(*target) == 1 && len(applied) > 0 {
		promotions, err := s.promote(ctx, []models.PlanningChoice{*target}, planning.ManualReasons().Promotion, known)
		if err != nil {
			return nil, err
		}
		applied = append(applied, promotions...)
	}

	actor := actorFromClaims(claims)
	for _, c := range applied {
		entryReason := c.Reason
		if c.ChoiceID == target.ID {
			entryReason = reason
		}
		audited := c
		audited.Reason = entryReason
		s.recordChoiceAudit(ctx, known[c.ChoiceID], audited, actor, "")
	}
	if s.metrics != nil {
		s.metrics.RecordTransitions(applied)
	}

	updated := *target
	change.Next.Apply(&updated)
	ids := make([]int64, 0, len(applied))
	for _, c := range applied {
		ids = append(ids, c.ChoiceID)
	}
	s.notify(ctx, ChangeActionRefuse, updated, ids, actor)

	return &dto.DecisionResponse{
		Choice:   updated,
		Applied:  applied,
		Affected: ids,
		Message:  "Demande refusée.",
	}, nil
}

// promote gives rank 1 to the next pending alternative of every refused primary. known is
// extended with the promoted requests.
func (s *ResolutionService) promote(ctx context.Context, losers []models.PlanningChoice, reason string, known map[int64]models.PlanningChoice) ([]models.StateChange, error) {
	if len(losers) == 0 {
		return nil, nil
	}
	changes := make([]models.StateChange, 0, len(losers))
	seen := make(map[int64]struct{}, len(losers))
	for _, loser := range losers {
		candidates, err := s.choices.ListByGroup(ctx, loser.PlanningReference, loser.TourNumber, loser.Trigram, loser.ChoiceIndex)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alternatives")
		}
		change, promoted, ok := planning.PlanPromotion(loser, candidates, reason)
		if !ok {
			continue
		}
		if _, dup := seen[promoted.ID]; dup {
			continue
		}
		seen[promoted.ID] = struct{}{}
		pending := models.StatusPending
		change.OnlyIfStatus = &pending
		changes = append(changes, change)
		known[promoted.ID] = promoted
	}
	if len(changes) == 0 {
		return nil, nil
	}
	applied, err := s.choices.ApplyStateChanges(ctx, changes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote alternatives")
	}
	return applied, nil
}

func (s *ResolutionService) load(ctx context.Context, id int64) (*models.PlanningChoice, error) {
	choice, err := s.choices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "planning request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load planning request")
	}
	return choice, nil
}

func (s *ResolutionService) boardFilter(ctx context.Context, query dto.RequestBoardQuery) (models.ChoiceFilter, error) {
	filter := models.ChoiceFilter{
		PlanningReference: strings.TrimSpace(query.Reference),
		TourNumber:        query.Tour,
		ActivityType:      strings.TrimSpace(query.ActivityType),
		Doctor:            strings.TrimSpace(query.Doctor),
		Column:            strings.TrimSpace(query.Column),
	}
	if filter.PlanningReference == "" {
		window, err := s.catalog.Window(ctx)
		if err != nil {
			return filter, err
		}
		filter.PlanningReference = window.Reference()
		if filter.TourNumber == 0 {
			filter.TourNumber = window.Tour
		}
	}
	if raw := strings.TrimSpace(query.Status); raw != "" && !strings.EqualFold(raw, "all") {
		status, ok := models.ParseChoiceStatus(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Day); raw != "" {
		day, err := time.Parse(models.DayLayout, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "day must use YYYY-MM-DD")
		}
		filter.Day = &day
	}
	if raw := strings.TrimSpace(query.UserType); raw != "" {
		userType := models.ParseUserType(raw)
		filter.UserType = &userType
	}
	return filter, nil
}

func (s *ResolutionService) pruneWorkQueue(ctx context.Context, target models.PlanningChoice, ids []int64) {
	if s.queue == nil {
		return
	}
	ref, tour := target.PlanningReference, target.TourNumber
	if err := s.queue.DeleteByChoiceIDs(ctx, ref, tour, ids); err != nil {
		s.logger.Warn("failed to prune work queue", zap.Error(err))
	}
	if target.ChoiceIndex != nil {
		if err := s.queue.DeleteByRoot(ctx, ref, tour, target.Trigram, *target.ChoiceIndex); err != nil {
			s.logger.Warn("failed to prune work queue group", zap.Error(err))
		}
	}
}

func (s *ResolutionService) recordChoiceAudit(ctx context.Context, choice models.PlanningChoice, change models.StateChange, actor models.Actor, rule planning.AlternativeRule) {
	if s.audits == nil {
		return
	}
	metadata := map[string]interface{}{
		"transition": change.Action,
		"previous":   change.Previous,
		"next":       change.Next,
	}
	if rule != "" {
		metadata["rule"] = rule
	}
	raw, _ := json.Marshal(metadata)

	entry := &models.ChoiceAudit{
		Action:            auditActionOf(change.Action),
		ChoiceID:          change.ChoiceID,
		TargetTrigram:     models.NormalizeTrigram(choice.Trigram),
		PlanningReference: choice.PlanningReference,
		TourNumber:        choice.TourNumber,
		Metadata:          raw,
		ActorID:           actor.ID,
		ActorTrigram:      actor.Trigram,
		ActorUsername:     actor.Username,
	}
	if !choice.Day.IsZero() {
		day := choice.Day
		entry.TargetDay = &day
		column := choice.ColumnNumber
		entry.TargetColumnNumber = &column
	}
	if change.Reason != "" {
		reason := change.Reason
		entry.Reason = &reason
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Int64("choice_id", change.ChoiceID), zap.Error(err))
	}
}

func (s *ResolutionService) notify(ctx context.Context, action string, target models.PlanningChoice, ids []int64, actor models.Actor) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, ChangeEvent{
		Action:    action,
		Reference: target.PlanningReference,
		Tour:      target.TourNumber,
		ChoiceIDs: ids,
		Actor:     actor.Trigram,
	})
}

func auditActionOf(action models.ChangeAction) models.ChoiceAuditAction {
	switch action {
	case models.ChangeAccept:
		return models.ChoiceAuditAccept
	case models.ChangePromote:
		return models.ChoiceAuditAutoPromote
	default:
		return models.ChoiceAuditRefuse
	}
}

func indexChoices(target models.PlanningChoice, groups ...[]models.PlanningChoice) map[int64]models.PlanningChoice {
	known := map[int64]models.PlanningChoice{target.ID: target}
	for _, group := range groups {
		for _, c := range group {
			if _, ok := known[c.ID]; !ok {
				known[c.ID] = c
			}
		}
	}
	return known
}

func actorFromClaims(claims *models.JWTClaims) models.Actor {
	if claims == nil {
		return models.Actor{}
	}
	return models.Actor{
		ID:       claims.UserID,
		Trigram:  models.NormalizeTrigram(claims.Trigram),
		Username: firstNonEmpty(claims.Username, claims.Email),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
