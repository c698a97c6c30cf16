package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

// UndoSuccessMessage confirms a reverted batch.
const UndoSuccessMessage = "Le dernier lot d'attribution automatique a été annulé."

type autoChoiceStore interface {
	List(ctx context.Context, filter models.ChoiceFilter) ([]models.PlanningChoice, error)
	GetByID(ctx context.Context, id int64) (*models.PlanningChoice, error)
	ApplyStateChanges(ctx context.Context, changes []models.StateChange) ([]models.StateChange, error)
}

type choiceAcceptor interface {
	AcceptChoice(ctx context.Context, target models.PlanningChoice, reasons planning.Reasons, actor models.Actor) (*AcceptanceOutcome, error)
}

type runStore interface {
	Create(ctx context.Context, run *models.AutoAssignmentRun, entries []models.AutoAssignmentRunEntry) error
	Latest(ctx context.Context, reference string, tour int) (*models.AutoAssignmentRun, error)
	Entries(ctx context.Context, runID string) ([]models.AutoAssignmentRunEntry, error)
	Delete(ctx context.Context, runID string) error
}

type workQueueWriter interface {
	Replace(ctx context.Context, reference string, tour int, entries []models.WorkQueueEntry) error
}

type userDirectory interface {
	ListDirectory(ctx context.Context, roles []models.UserRole) ([]models.DirectoryEntry, error)
}

type autoAssignmentRecorder interface {
	RecordAutoAssignment(normals, good int)
}

// AutoAssignmentService runs the rotation passes, records their operation log and reverts it.
type AutoAssignmentService struct {
	choices   autoChoiceStore
	acceptor  choiceAcceptor
	runs      runStore
	queue     workQueueWriter
	directory userDirectory
	catalog   catalogReader
	metrics   autoAssignmentRecorder
	publisher changePublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	// mu serializes apply, step acceptance and undo.
	mu sync.Mutex
}

// NewAutoAssignmentService constructs an AutoAssignmentService. queue, metrics and publisher
// may be nil.
func NewAutoAssignmentService(choices autoChoiceStore, acceptor choiceAcceptor, runs runStore, queue workQueueWriter, directory userDirectory, catalog catalogReader, metrics autoAssignmentRecorder, publisher changePublisher, validate *validator.Validate, logger *zap.Logger) *AutoAssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoAssignmentService{
		choices:   choices,
		acceptor:  acceptor,
		runs:      runs,
		queue:     queue,
		directory: directory,
		catalog:   catalog,
		metrics:   metrics,
		publisher: publisher,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

type autoWorkspace struct {
	window   planning.Window
	params   planning.AutoAssignmentParams
	roster   []planning.RosterEntry
	input    planning.AutoAssignmentInput
	requests []models.PlanningChoice
}

// Preview runs the algorithm without touching any request.
func (s *AutoAssignmentService) Preview(ctx context.Context, req dto.AutoAssignmentRequest) (*dto.AutoAssignmentPreview, error) {
	ws, err := s.workspace(ctx, req)
	if err != nil {
		return nil, err
	}
	result := planning.RunSimple(ws.roster, ws.input, ws.params.Rotations)
	return previewOf(ws.window, result), nil
}

// Apply runs the algorithm and accepts every committed pair, normal duty first, through the
// regular acceptance path. Every applied transition is recorded in one run so UndoLast can
// restore it.
func (s *AutoAssignmentService) Apply(ctx context.Context, req dto.AutoAssignmentRequest, claims *models.JWTClaims) (*dto.AutoAssignmentApplyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.workspace(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.replaceQueue(ctx, ws.window, ws.requests); err != nil {
		return nil, err
	}

	result := planning.RunSimple(ws.roster, ws.input, ws.params.Rotations)
	committed := result.Committed()
	if len(committed) == 0 {
		return nil, appErrors.ErrNothingToApply
	}

	actor := actorFromClaims(claims)
	var (
		changes   []models.StateChange
		normals   int
		goods     int
		acceptErr error
	)
	for _, step := range committed {
		for _, candidate := range []*models.PlanningChoice{step.Normal, step.Good} {
			if candidate == nil {
				continue
			}
			applied, ok, err := s.acceptPlanned(ctx, *candidate, actor)
			if err != nil {
				acceptErr = err
				break
			}
			if !ok {
				continue
			}
			changes = append(changes, applied...)
			if models.ParseGuardNature(string(candidate.GuardNature)) == models.NatureGood {
				goods++
			} else {
				normals++
			}
		}
		if acceptErr != nil {
			break
		}
	}

	if len(changes) == 0 {
		if acceptErr != nil {
			return nil, acceptErr
		}
		return nil, appErrors.ErrNothingToApply
	}

	run, err := s.recordRun(ctx, ws.window, actor, ws.params, result.Summary, changes)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordAutoAssignment(normals, goods)
	}
	s.publish(ctx, ChangeActionAutoApply, ws.window, changes, actor)

	if acceptErr != nil {
		s.logger.Error("auto-assignment interrupted",
			zap.String("run_id", run.ID),
			zap.Int("changes", len(changes)),
			zap.Error(acceptErr),
		)
		return nil, acceptErr
	}

	s.logger.Info("auto-assignment applied",
		zap.String("run_id", run.ID),
		zap.String("planning_reference", run.PlanningReference),
		zap.Int("normals", normals),
		zap.Int("good", goods),
		zap.Int("changes", len(changes)),
	)
	return &dto.AutoAssignmentApplyResponse{
		AutoAssignmentPreview: *previewOf(ws.window, result),
		RunID:                 run.ID,
		Changes:               len(changes),
	}, nil
}

// UndoLast restores the recorded previous state of every transition of the latest run of the
// active window, then forgets the run.
func (s *AutoAssignmentService) UndoLast(ctx context.Context, claims *models.JWTClaims) (*dto.UndoResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window, err := s.catalog.Window(ctx)
	if err != nil {
		return nil, err
	}
	run, err := s.latestRun(ctx, window)
	if err != nil {
		return nil, err
	}
	entries, err := s.runs.Entries(ctx, run.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load auto-assignment entries")
	}

	inverses := make([]models.StateChange, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		change, err := entries[i].Change()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode auto-assignment entry")
		}
		inverses = append(inverses, change.Inverse())
	}
	restored, err := s.choices.ApplyStateChanges(ctx, inverses)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore auto-assignment batch")
	}
	if err := s.runs.Delete(ctx, run.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete auto-assignment batch")
	}
	if _, err := s.PrepareWorkspace(ctx); err != nil {
		s.logger.Warn("failed to rebuild work queue after undo", zap.Error(err))
	}

	actor := actorFromClaims(claims)
	s.publish(ctx, ChangeActionAutoUndo, window, restored, actor)
	s.logger.Info("auto-assignment undone",
		zap.String("run_id", run.ID),
		zap.Int("restored", len(restored)),
	)
	return &dto.UndoResponse{RunID: run.ID, Restored: len(restored), Message: UndoSuccessMessage}, nil
}

// LastRun returns the header of the latest run of the active window.
func (s *AutoAssignmentService) LastRun(ctx context.Context) (*models.AutoAssignmentRun, error) {
	window, err := s.catalog.Window(ctx)
	if err != nil {
		return nil, err
	}
	return s.latestRun(ctx, window)
}

// LastRunEntries returns the latest run and its recorded transitions.
func (s *AutoAssignmentService) LastRunEntries(ctx context.Context) (*models.AutoAssignmentRun, []models.AutoAssignmentRunEntry, error) {
	run, err := s.LastRun(ctx)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.runs.Entries(ctx, run.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load auto-assignment entries")
	}
	return run, entries, nil
}

// PrepareWorkspace mirrors the pending requests of the active window into the work queue and
// returns the number of rows written.
func (s *AutoAssignmentService) PrepareWorkspace(ctx context.Context) (int, error) {
	window, err := s.catalog.Window(ctx)
	if err != nil {
		return 0, err
	}
	requests, err := s.activeRequests(ctx, window)
	if err != nil {
		return 0, err
	}
	return s.replaceQueue(ctx, window, requests)
}

// Stepwise computes a fresh set of held offers.
func (s *AutoAssignmentService) Stepwise(ctx context.Context, req dto.StepwiseRequest) (*dto.StepwisePlanResponse, error) {
	params := req.Params()
	if err := params.ValidateRatio(); err != nil {
		return nil, paramError(err)
	}
	ws, err := s.workspace(ctx, req.AutoAssignmentRequest)
	if err != nil {
		return nil, err
	}
	params.AutoAssignmentParams = ws.params
	offers := planning.PlanStepwise(ws.roster, ws.input, params)
	return &dto.StepwisePlanResponse{Reference: ws.window.Reference(), Offers: offers}, nil
}

// AcceptStep validates one held offer. The acceptance is recorded as its own run so it can be
// undone like a batch.
func (s *AutoAssignmentService) AcceptStep(ctx context.Context, req dto.AcceptStepRequest, claims *models.JWTClaims) (*dto.DecisionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid step payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.choices.GetByID(ctx, req.ChoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "planning request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load planning request")
	}
	if target.Status != models.StatusPending || !target.IsActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "La demande n'est plus en attente.")
	}

	actor := actorFromClaims(claims)
	nature := models.ParseGuardNature(string(target.GuardNature))
	outcome, err := s.acceptor.AcceptChoice(ctx, *target, planning.AutomaticReasons(nature), actor)
	if err != nil {
		return nil, err
	}

	summary := planning.AutoAssignmentSummary{Analysed: 1, RotationsUsed: 1, MaxRotations: 1}
	if nature == models.NatureGood {
		summary.Good = 1
	} else {
		summary.Normals = 1
	}
	if _, err := s.recordRunFor(ctx, target.PlanningReference, target.TourNumber, actor, map[string]interface{}{"mode": "stepwise", "choice_id": target.ID}, summary, outcome.Applied); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordAutoAssignment(summary.Normals, summary.Good)
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, ChangeEvent{
			Action:    ChangeActionStepAccept,
			Reference: target.PlanningReference,
			Tour:      target.TourNumber,
			ChoiceIDs: outcome.Plan.AffectedIDs(),
			Actor:     actor.Trigram,
		})
	}
	return &dto.DecisionResponse{
		Choice:   outcome.Target,
		Applied:  outcome.Applied,
		Affected: outcome.Plan.AffectedIDs(),
		Message:  "Demande acceptée.",
	}, nil
}

// acceptPlanned accepts a request planned by RunSimple when it is still pending. Schedule
// conflicts and concurrent validations skip the request.
func (s *AutoAssignmentService) acceptPlanned(ctx context.Context, planned models.PlanningChoice, actor models.Actor) ([]models.StateChange, bool, error) {
	current, err := s.choices.GetByID(ctx, planned.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload planning request")
	}
	if current.Status != models.StatusPending || !current.IsActive {
		s.logger.Debug("auto-assignment skipped stale request", zap.Int64("choice_id", planned.ID), zap.String("status", string(current.Status)))
		return nil, false, nil
	}

	nature := models.ParseGuardNature(string(current.GuardNature))
	outcome, err := s.acceptor.AcceptChoice(ctx, *current, planning.AutomaticReasons(nature), actor)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrScheduleConflict) || appErrors.Is(err, appErrors.ErrAlreadyValidated) {
			s.logger.Info("auto-assignment skipped request", zap.Int64("choice_id", planned.ID), zap.Error(err))
			return nil, false, nil
		}
		return nil, false, err
	}
	return outcome.Applied, true, nil
}

func (s *AutoAssignmentService) workspace(ctx context.Context, req dto.AutoAssignmentRequest) (*autoWorkspace, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid auto-assignment payload")
	}
	params := req.Params()

	roles := make([]models.UserRole, 0, len(params.Populations))
	for _, pop := range params.Populations {
		roles = append(roles, models.UserRole(pop))
	}
	var directory []models.DirectoryEntry
	if len(roles) > 0 {
		entries, err := s.directory.ListDirectory(ctx, roles)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load practitioner directory")
		}
		directory = entries
	}
	roster, err := params.Validate(directory)
	if err != nil {
		return nil, paramError(err)
	}

	window, err := s.catalog.Window(ctx)
	if err != nil {
		return nil, err
	}
	columns, err := s.catalog.ColumnIndex(ctx, window.Tour)
	if err != nil {
		return nil, err
	}
	requests, err := s.activeRequests(ctx, window)
	if err != nil {
		return nil, err
	}
	return &autoWorkspace{
		window:   window,
		params:   params,
		roster:   roster,
		input:    planning.AutoAssignmentInput{Requests: requests, Columns: columns},
		requests: requests,
	}, nil
}

func (s *AutoAssignmentService) activeRequests(ctx context.Context, window planning.Window) ([]models.PlanningChoice, error) {
	requests, err := s.choices.List(ctx, models.ChoiceFilter{
		PlanningReference: window.Reference(),
		TourNumber:        window.Tour,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load planning requests")
	}
	return requests, nil
}

func (s *AutoAssignmentService) replaceQueue(ctx context.Context, window planning.Window, requests []models.PlanningChoice) (int, error) {
	entries := planning.BuildWorkQueue(requests)
	if s.queue == nil {
		return len(entries), nil
	}
	if err := s.queue.Replace(ctx, window.Reference(), window.Tour, entries); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare auto-assignment work queue")
	}
	return len(entries), nil
}

func (s *AutoAssignmentService) latestRun(ctx context.Context, window planning.Window) (*models.AutoAssignmentRun, error) {
	run, err := s.runs.Latest(ctx, window.Reference(), window.Tour)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNothingToUndo
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load auto-assignment batch")
	}
	return run, nil
}

func (s *AutoAssignmentService) recordRun(ctx context.Context, window planning.Window, actor models.Actor, params planning.AutoAssignmentParams, summary planning.AutoAssignmentSummary, changes []models.StateChange) (*models.AutoAssignmentRun, error) {
	return s.recordRunFor(ctx, window.Reference(), window.Tour, actor, params, summary, changes)
}

func (s *AutoAssignmentService) recordRunFor(ctx context.Context, reference string, tour int, actor models.Actor, params interface{}, summary planning.AutoAssignmentSummary, changes []models.StateChange) (*models.AutoAssignmentRun, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode auto-assignment parameters")
	}
	rawSummary, err := json.Marshal(summary)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode auto-assignment summary")
	}
	run := &models.AutoAssignmentRun{
		ActorID:           actor.ID,
		ActorTrigram:      actor.Trigram,
		ActorUsername:     actor.Username,
		PlanningReference: reference,
		TourNumber:        tour,
		RotationsUsed:     summary.RotationsUsed,
		Parameters:        rawParams,
		Summary:           rawSummary,
		CreatedAt:         s.now().UTC(),
	}
	entries := make([]models.AutoAssignmentRunEntry, 0, len(changes))
	for _, change := range changes {
		entry, err := models.NewRunEntry("", change)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode auto-assignment entry")
		}
		entries = append(entries, entry)
	}
	if err := s.runs.Create(ctx, run, entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to record auto-assignment batch of %d changes", len(changes)))
	}
	return run, nil
}

func (s *AutoAssignmentService) publish(ctx context.Context, action string, window planning.Window, changes []models.StateChange, actor models.Actor) {
	if s.publisher == nil {
		return
	}
	seen := make(map[int64]struct{}, len(changes))
	ids := make([]int64, 0, len(changes))
	for _, change := range changes {
		if _, ok := seen[change.ChoiceID]; ok {
			continue
		}
		seen[change.ChoiceID] = struct{}{}
		ids = append(ids, change.ChoiceID)
	}
	s.publisher.Publish(ctx, ChangeEvent{
		Action:    action,
		Reference: window.Reference(),
		Tour:      window.Tour,
		ChoiceIDs: ids,
		Actor:     actor.Trigram,
	})
}

func previewOf(window planning.Window, result planning.AutoAssignmentResult) *dto.AutoAssignmentPreview {
	steps := result.Steps
	if steps == nil {
		steps = []planning.AutoAssignmentStep{}
	}
	return &dto.AutoAssignmentPreview{
		Reference: window.Reference(),
		Tour:      window.Tour,
		Steps:     steps,
		Summary:   result.Summary,
		Feedback:  result.Summary.Feedback(),
	}
}

func paramError(err error) error {
	var pe *planning.ParamError
	if errors.As(err, &pe) {
		return appErrors.Clone(appErrors.ErrValidation, pe.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid auto-assignment parameters")
}
