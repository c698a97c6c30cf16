package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

const testReference = "tour1-2024-06-07"

// memoryChoiceStore mimics ChoiceRepository over an in-memory table.
type memoryChoiceStore struct {
	rows       map[int64]models.PlanningChoice
	lastFilter models.ChoiceFilter
	applyErr   error
	applyCalls int
}

func newMemoryChoiceStore(choices ...models.PlanningChoice) *memoryChoiceStore {
	store := &memoryChoiceStore{rows: make(map[int64]models.PlanningChoice)}
	for _, c := range choices {
		store.rows[c.ID] = c
	}
	return store
}

func (m *memoryChoiceStore) get(id int64) models.PlanningChoice {
	return m.rows[id]
}

func (m *memoryChoiceStore) where(pred func(models.PlanningChoice) bool) []models.PlanningChoice {
	out := make([]models.PlanningChoice, 0)
	for _, c := range m.rows {
		if pred(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryChoiceStore) List(ctx context.Context, filter models.ChoiceFilter) ([]models.PlanningChoice, error) {
	m.lastFilter = filter
	return m.where(func(c models.PlanningChoice) bool {
		if c.PlanningReference != filter.PlanningReference || c.TourNumber != filter.TourNumber {
			return false
		}
		if filter.Status != nil && c.Status != *filter.Status {
			return false
		}
		return filter.IncludeInactive || c.IsActive
	}), nil
}

func (m *memoryChoiceStore) GetByID(ctx context.Context, id int64) (*models.PlanningChoice, error) {
	c, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m *memoryChoiceStore) ListByIDs(ctx context.Context, ids []int64) ([]models.PlanningChoice, error) {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return m.where(func(c models.PlanningChoice) bool { return wanted[c.ID] }), nil
}

func (m *memoryChoiceStore) ListBySlot(ctx context.Context, reference string, tour int, day time.Time, column int) ([]models.PlanningChoice, error) {
	return m.where(func(c models.PlanningChoice) bool {
		return c.PlanningReference == reference && c.TourNumber == tour && c.DayKey() == day.Format(models.DayLayout) && c.ColumnNumber == column
	}), nil
}

func (m *memoryChoiceStore) ListByGroup(ctx context.Context, reference string, tour int, trigram string, index *int) ([]models.PlanningChoice, error) {
	return m.where(func(c models.PlanningChoice) bool {
		if c.PlanningReference != reference || c.TourNumber != tour || c.Trigram != models.NormalizeTrigram(trigram) {
			return false
		}
		if index == nil || c.ChoiceIndex == nil {
			return index == nil && c.ChoiceIndex == nil
		}
		return *index == *c.ChoiceIndex
	}), nil
}

func (m *memoryChoiceStore) ListByOrder(ctx context.Context, reference string, tour int, trigram string, order int) ([]models.PlanningChoice, error) {
	return m.where(func(c models.PlanningChoice) bool {
		return c.PlanningReference == reference && c.TourNumber == tour && c.Trigram == models.NormalizeTrigram(trigram) && c.ChoiceOrder != nil && *c.ChoiceOrder == order
	}), nil
}

func (m *memoryChoiceStore) ListValidatedOnDay(ctx context.Context, reference string, tour int, trigram string, day time.Time) ([]models.PlanningChoice, error) {
	return m.where(func(c models.PlanningChoice) bool {
		return c.PlanningReference == reference && c.TourNumber == tour && c.Trigram == models.NormalizeTrigram(trigram) && c.DayKey() == day.Format(models.DayLayout) && c.Status == models.StatusValidated
	}), nil
}

func (m *memoryChoiceStore) ApplyStateChanges(ctx context.Context, changes []models.StateChange) ([]models.StateChange, error) {
	m.applyCalls++
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	applied := make([]models.StateChange, 0, len(changes))
	for _, change := range changes {
		c, ok := m.rows[change.ChoiceID]
		if !ok {
			continue
		}
		if change.OnlyIfStatus != nil && c.Status != *change.OnlyIfStatus {
			continue
		}
		change.Next.Apply(&c)
		m.rows[c.ID] = c
		applied = append(applied, change)
	}
	return applied, nil
}

type choiceAuditStub struct {
	entries []*models.ChoiceAudit
	err     error
}

func (a *choiceAuditStub) Create(ctx context.Context, audit *models.ChoiceAudit) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, audit)
	return nil
}

func (a *choiceAuditStub) ListByChoice(ctx context.Context, choiceID int64) ([]models.ChoiceAudit, error) {
	out := make([]models.ChoiceAudit, 0)
	for _, e := range a.entries {
		if e.ChoiceID == choiceID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type queuePrunerStub struct {
	deletedIDs []int64
	roots      []string
}

func (q *queuePrunerStub) DeleteByChoiceIDs(ctx context.Context, reference string, tour int, ids []int64) error {
	q.deletedIDs = append(q.deletedIDs, ids...)
	return nil
}

func (q *queuePrunerStub) DeleteByRoot(ctx context.Context, reference string, tour int, trigram string, rootIndex int) error {
	q.roots = append(q.roots, fmt.Sprintf("%s:%d", trigram, rootIndex))
	return nil
}

type transitionRecorderStub struct {
	recorded []models.StateChange
}

func (r *transitionRecorderStub) RecordTransitions(changes []models.StateChange) {
	r.recorded = append(r.recorded, changes...)
}

func pendingChoice(id int64, trigram, day string, column, index, rank, order int) models.PlanningChoice {
	parsed, _ := time.Parse(models.DayLayout, day)
	return models.PlanningChoice{
		ID:                id,
		UserID:            "user-" + trigram,
		Trigram:           trigram,
		UserType:          models.UserTypeDoctor,
		Day:               parsed,
		Month:             int(parsed.Month()),
		Year:              parsed.Year(),
		ColumnNumber:      column,
		GuardNature:       models.NatureNormal,
		ChoiceOrder:       models.IntPtr(order),
		ChoiceIndex:       models.IntPtr(index),
		ChoiceRank:        models.IntPtr(rank),
		Status:            models.StatusPending,
		IsActive:          true,
		PlanningReference: testReference,
		TourNumber:        1,
	}
}

type resolutionFixture struct {
	svc       *ResolutionService
	store     *memoryChoiceStore
	audits    *choiceAuditStub
	queue     *queuePrunerStub
	metrics   *transitionRecorderStub
	publisher *publisherStub
}

func newResolutionFixture(choices ...models.PlanningChoice) *resolutionFixture {
	f := &resolutionFixture{
		store:     newMemoryChoiceStore(choices...),
		audits:    &choiceAuditStub{},
		queue:     &queuePrunerStub{},
		metrics:   &transitionRecorderStub{},
		publisher: &publisherStub{},
	}
	catalog := &catalogReaderStub{
		window:  planning.Window{Tour: 1, Year: 2024, MonthOne: time.June, MonthTwo: time.July},
		columns: planning.IndexColumns(planning.MissingColumns(1, nil)),
	}
	f.svc = NewResolutionService(f.store, f.audits, f.queue, catalog, f.metrics, f.publisher, nil, nil)
	return f
}

func competingScenario() []models.PlanningChoice {
	return []models.PlanningChoice{
		pendingChoice(1, "ABC", "2024-06-03", 1, 1, 1, 1),
		pendingChoice(2, "ABC", "2024-06-05", 3, 1, 2, 2),
		pendingChoice(3, "DEF", "2024-06-03", 1, 1, 1, 1),
		pendingChoice(4, "DEF", "2024-06-04", 2, 1, 2, 2),
		pendingChoice(5, "GHI", "2024-06-10", 1, 1, 1, 1),
	}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, Trigram: "ADM", Username: "admin"}
}

func TestResolutionServiceAcceptResolvesCompetitorsAndPromotes(t *testing.T) {
	f := newResolutionFixture(competingScenario()...)

	res, err := f.svc.Accept(context.Background(), 1, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, res.Choice.Status)
	assert.Equal(t, []int64{1, 2, 3}, res.Affected)
	require.Len(t, res.Applied, 4)

	accepted := f.store.get(1)
	assert.Equal(t, models.StatusValidated, accepted.Status)
	assert.True(t, accepted.IsActive)

	alternative := f.store.get(2)
	assert.Equal(t, models.StatusRefused, alternative.Status)
	assert.False(t, alternative.IsActive)

	competitor := f.store.get(3)
	assert.Equal(t, models.StatusRefused, competitor.Status)
	assert.True(t, competitor.IsActive, "competitors keep their active flag")

	promoted := f.store.get(4)
	assert.Equal(t, models.StatusPending, promoted.Status)
	assert.Equal(t, 1, *promoted.ChoiceRank)

	assert.Equal(t, models.StatusPending, f.store.get(5).Status)

	require.Len(t, f.audits.entries, 4)
	assert.Equal(t, models.ChoiceAuditAccept, f.audits.entries[0].Action)
	assert.Equal(t, "Demande acceptée", *f.audits.entries[0].Reason)
	assert.Equal(t, "ADM", f.audits.entries[0].ActorTrigram)
	assert.Equal(t, models.ChoiceAuditRefuse, f.audits.entries[1].Action)
	assert.Contains(t, string(f.audits.entries[1].Metadata), `"rule":"choice_index"`)
	assert.Equal(t, "Attribué à ABC", *f.audits.entries[2].Reason)
	assert.Equal(t, models.ChoiceAuditAutoPromote, f.audits.entries[3].Action)
	assert.Equal(t, "DEF", f.audits.entries[3].TargetTrigram)

	assert.Equal(t, []int64{1, 2, 3}, f.queue.deletedIDs)
	assert.Equal(t, []string{"ABC:1"}, f.queue.roots)
	assert.Len(t, f.metrics.recorded, 4)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, ChangeActionAccept, f.publisher.events[0].Action)
	assert.Equal(t, testReference, f.publisher.events[0].Reference)
}

func TestResolutionServiceAcceptRejectsScheduleConflict(t *testing.T) {
	validated := pendingChoice(9, "ABC", "2024-06-03", 1, 4, 1, 4)
	validated.Status = models.StatusValidated
	choices := append(competingScenario(), validated)
	f := newResolutionFixture(choices...)

	_, err := f.svc.Accept(context.Background(), 1, adminClaims())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrScheduleConflict))
	assert.Zero(t, f.store.applyCalls)
	assert.Equal(t, models.StatusPending, f.store.get(3).Status)
	assert.Empty(t, f.publisher.events)
}

func TestResolutionServiceAcceptRejectsAlreadyValidated(t *testing.T) {
	choice := pendingChoice(1, "ABC", "2024-06-03", 1, 1, 1, 1)
	choice.Status = models.StatusValidated
	f := newResolutionFixture(choice)

	_, err := f.svc.Accept(context.Background(), 1, adminClaims())
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyValidated))
	assert.Zero(t, f.store.applyCalls)
}

func TestResolutionServiceAcceptNotFound(t *testing.T) {
	f := newResolutionFixture()

	_, err := f.svc.Accept(context.Background(), 42, adminClaims())
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestResolutionServiceAcceptSurvivesAuditFailure(t *testing.T) {
	f := newResolutionFixture(competingScenario()...)
	f.audits.err = errors.New("audit table locked")

	_, err := f.svc.Accept(context.Background(), 1, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, f.store.get(1).Status)
}

func TestResolutionServiceAcceptStoreFailure(t *testing.T) {
	f := newResolutionFixture(competingScenario()...)
	f.store.applyErr = errors.New("deadlock")

	_, err := f.svc.Accept(context.Background(), 1, adminClaims())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, f.audits.entries)
	assert.Empty(t, f.publisher.events)
}

func TestResolutionServiceRefusePromotesAlternative(t *testing.T) {
	f := newResolutionFixture(competingScenario()...)

	res, err := f.svc.Refuse(context.Background(), 3, dto.RefuseRequest{Reason: "  Indisponible "}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefused, res.Choice.Status)
	assert.Equal(t, []int64{3, 4}, res.Affected)

	assert.Equal(t, models.StatusRefused, f.store.get(3).Status)
	assert.True(t, f.store.get(3).IsActive, "refused requests stay on the board")
	assert.Equal(t, 1, *f.store.get(4).ChoiceRank)

	require.Len(t, f.audits.entries, 2)
	assert.Equal(t, models.ChoiceAuditRefuse, f.audits.entries[0].Action)
	assert.Equal(t, "Indisponible", *f.audits.entries[0].Reason)
	assert.Equal(t, models.ChoiceAuditAutoPromote, f.audits.entries[1].Action)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, ChangeActionRefuse, f.publisher.events[0].Action)
}

func TestResolutionServiceRefuseWithoutReasonLeavesAuditReasonEmpty(t *testing.T) {
	f := newResolutionFixture(pendingChoice(2, "ABC", "2024-06-05", 3, 1, 2, 2))

	_, err := f.svc.Refuse(context.Background(), 2, dto.RefuseRequest{}, adminClaims())
	require.NoError(t, err)
	require.Len(t, f.audits.entries, 1)
	assert.Nil(t, f.audits.entries[0].Reason)
}

func TestResolutionServiceRefuseRejectsAlreadyRefused(t *testing.T) {
	choice := pendingChoice(1, "ABC", "2024-06-03", 1, 1, 1, 1)
	choice.Status = models.StatusRefused
	f := newResolutionFixture(choice)

	_, err := f.svc.Refuse(context.Background(), 1, dto.RefuseRequest{}, adminClaims())
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyRefused))
	assert.Zero(t, f.store.applyCalls)
}

func TestResolutionServiceListDefaultsToActiveWindow(t *testing.T) {
	f := newResolutionFixture(competingScenario()...)

	choices, err := f.svc.List(context.Background(), dto.RequestBoardQuery{Status: "pending", UserType: "remplacant", Day: "2024-06-03"})
	require.NoError(t, err)
	assert.Len(t, choices, 5)
	assert.Equal(t, testReference, f.store.lastFilter.PlanningReference)
	assert.Equal(t, 1, f.store.lastFilter.TourNumber)
	require.NotNil(t, f.store.lastFilter.Status)
	assert.Equal(t, models.StatusPending, *f.store.lastFilter.Status)
	require.NotNil(t, f.store.lastFilter.UserType)
	assert.Equal(t, models.UserTypeSubstitute, *f.store.lastFilter.UserType)
	require.NotNil(t, f.store.lastFilter.Day)

	_, err = f.svc.List(context.Background(), dto.RequestBoardQuery{Status: "maybe"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResolutionServiceHistory(t *testing.T) {
	f := newResolutionFixture(competingScenario()...)
	_, err := f.svc.Accept(context.Background(), 1, adminClaims())
	require.NoError(t, err)

	history, err := f.svc.History(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ChoiceAuditRefuse, history[0].Action)

	_, err = f.svc.History(context.Background(), 99)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
