package planning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/models"
)

type choiceOpt func(*models.PlanningChoice)

func withRank(r int) choiceOpt  { return func(c *models.PlanningChoice) { c.ChoiceRank = models.IntPtr(r) } }
func withIndex(i int) choiceOpt { return func(c *models.PlanningChoice) { c.ChoiceIndex = models.IntPtr(i) } }
func withOrder(o int) choiceOpt { return func(c *models.PlanningChoice) { c.ChoiceOrder = models.IntPtr(o) } }
func withStatus(s models.ChoiceStatus) choiceOpt {
	return func(c *models.PlanningChoice) { c.Status = s }
}
func withNature(n models.GuardNature) choiceOpt {
	return func(c *models.PlanningChoice) { c.GuardNature = n }
}
func inactive() choiceOpt { return func(c *models.PlanningChoice) { c.IsActive = false } }

func choice(id int64, trigram, day string, column int, opts ...choiceOpt) models.PlanningChoice {
	c := models.PlanningChoice{
		ID:                id,
		Trigram:           trigram,
		UserType:          models.UserTypeDoctor,
		CreatedAt:         time.Date(2024, 5, 1, 8, 0, 0, int(id), time.UTC),
		Day:               mustDay(day),
		ColumnNumber:      column,
		GuardNature:       models.NatureNormal,
		ChoiceIndex:       models.IntPtr(1),
		ChoiceRank:        models.IntPtr(1),
		Status:            models.StatusPending,
		IsActive:          true,
		PlanningReference: "tour1-2024-06-07",
		TourNumber:        1,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func changeFor(plan AcceptancePlan, id int64) (models.StateChange, bool) {
	for _, change := range plan.Changes {
		if change.ChoiceID == id {
			return change, true
		}
	}
	return models.StateChange{}, false
}

func TestPlanAcceptanceRefusesCompetitorsAndAlternatives(t *testing.T) {
	target := choice(1, "ABC", "2024-06-03", 5, withOrder(1))
	sameUserSameSlot := choice(2, "abc", "2024-06-03", 5, withIndex(4), withRank(3))
	competitor := choice(3, "DEF", "2024-06-03", 5)
	validatedCompetitor := choice(4, "GHI", "2024-06-03", 5, withStatus(models.StatusValidated))
	groupAlternative := choice(5, "ABC", "2024-06-04", 5, withRank(2))
	otherNature := choice(6, "ABC", "2024-06-05", 7, withNature(models.NatureGood), withRank(2))
	alreadyRefused := choice(7, "ABC", "2024-06-06", 7, withRank(3), withStatus(models.StatusRefused), inactive())
	sameOrder := choice(8, "ABC", "2024-06-09", 9, withOrder(1), withIndex(2))

	plan := PlanAcceptance(AcceptanceInput{
		Target:    target,
		Competing: []models.PlanningChoice{target, sameUserSameSlot, competitor, validatedCompetitor},
		SameIndex: []models.PlanningChoice{target, groupAlternative, otherNature, alreadyRefused},
		SameOrder: []models.PlanningChoice{target, sameOrder},
		Reasons:   ManualReasons(),
	})

	accept, ok := changeFor(plan, 1)
	require.True(t, ok)
	assert.Equal(t, models.ChangeAccept, accept.Action)
	assert.Equal(t, models.StatusValidated, *accept.Next.Status)
	assert.True(t, *accept.Next.IsActive)
	assert.Equal(t, models.StatusPending, *accept.Previous.Status)
	assert.Equal(t, "Demande acceptée", accept.Reason)

	alt, ok := changeFor(plan, 2)
	require.True(t, ok)
	assert.Equal(t, models.ChangeRefuseAlternative, alt.Action)
	assert.Equal(t, models.StatusRefused, *alt.Next.Status)
	assert.False(t, *alt.Next.IsActive)

	group, ok := changeFor(plan, 5)
	require.True(t, ok)
	assert.Equal(t, "Alternative refusée automatiquement", group.Reason)

	order, ok := changeFor(plan, 8)
	require.True(t, ok)
	assert.Equal(t, "Alternative retirée automatiquement", order.Reason)

	refusal, ok := changeFor(plan, 3)
	require.True(t, ok)
	assert.Equal(t, models.ChangeRefuse, refusal.Action)
	assert.Equal(t, "Attribué à ABC", refusal.Reason)
	assert.True(t, *refusal.Next.IsActive)
	require.NotNil(t, refusal.OnlyIfStatus)
	assert.Equal(t, models.StatusPending, *refusal.OnlyIfStatus)

	_, touched := changeFor(plan, 4)
	assert.False(t, touched, "validated competitors are left alone")
	_, touched = changeFor(plan, 6)
	assert.False(t, touched, "other natures are not alternatives")
	_, touched = changeFor(plan, 7)
	assert.False(t, touched)

	require.Len(t, plan.Alternatives, 3)
	assert.Equal(t, RuleChoiceRank, plan.Alternatives[0].Rule)
	assert.Equal(t, RuleChoiceIndex, plan.Alternatives[1].Rule)
	assert.Equal(t, RuleChoiceOrder, plan.Alternatives[2].Rule)
	require.Len(t, plan.PrimaryLosers, 1)
	assert.Equal(t, int64(3), plan.PrimaryLosers[0].ID)
	assert.Equal(t, []int64{1, 2, 5, 8, 3}, plan.AffectedIDs())
}

func TestPlanAcceptanceUnrankedCompetitorIsNotPrimary(t *testing.T) {
	target := choice(1, "ABC", "2024-06-03", 5)
	unranked := choice(2, "DEF", "2024-06-03", 5)
	unranked.ChoiceRank = nil
	primary := choice(3, "GHI", "2024-06-03", 5)

	plan := PlanAcceptance(AcceptanceInput{
		Target:    target,
		Competing: []models.PlanningChoice{target, unranked, primary},
		Reasons:   ManualReasons(),
	})
	require.Len(t, plan.Competitors, 2)
	require.Len(t, plan.PrimaryLosers, 1)
	assert.Equal(t, int64(3), plan.PrimaryLosers[0].ID)
}

func TestPlanAcceptanceSkipsAcceptOfValidatedTarget(t *testing.T) {
	target := choice(1, "ABC", "2024-06-03", 5, withStatus(models.StatusValidated))
	plan := PlanAcceptance(AcceptanceInput{Target: target, Reasons: ManualReasons()})
	assert.Empty(t, plan.Changes)
}

func TestClassifyAlternativePrecedence(t *testing.T) {
	target := choice(1, "ABC", "2024-06-03", 5, withOrder(3), withIndex(2), withRank(2))

	rule, ok := ClassifyAlternative(target, choice(2, "ABC", "2024-06-03", 5, withOrder(3), withIndex(2)))
	require.True(t, ok)
	assert.Equal(t, RuleChoiceOrder, rule)

	rule, ok = ClassifyAlternative(target, choice(3, "ABC", "2024-06-03", 5, withOrder(4), withIndex(2)))
	require.True(t, ok)
	assert.Equal(t, RuleChoiceIndex, rule)

	rule, ok = ClassifyAlternative(target, choice(4, "ABC", "2024-06-03", 5, withIndex(5), withRank(3)))
	require.True(t, ok)
	assert.Equal(t, RuleChoiceRank, rule)

	_, ok = ClassifyAlternative(target, choice(5, "ABC", "2024-06-03", 5, withIndex(5), withRank(1)))
	assert.False(t, ok)
	_, ok = ClassifyAlternative(target, choice(6, "DEF", "2024-06-03", 5, withOrder(3)))
	assert.False(t, ok)
}

func TestPlanPromotionPicksLowestPendingRank(t *testing.T) {
	lost := choice(10, "DEF", "2024-06-03", 5)
	candidates := []models.PlanningChoice{
		lost,
		choice(11, "DEF", "2024-06-04", 5, withRank(3)),
		choice(12, "DEF", "2024-06-05", 5, withRank(2)),
		choice(13, "DEF", "2024-06-06", 5, withRank(2), withStatus(models.StatusRefused)),
		choice(14, "DEF", "2024-06-07", 5, withRank(2), withIndex(2)),
	}

	change, promoted, ok := PlanPromotion(lost, candidates, "Promotion automatique de l'alternative")
	require.True(t, ok)
	assert.Equal(t, int64(12), promoted.ID)
	assert.Equal(t, models.ChangePromote, change.Action)
	assert.Equal(t, 2, *change.Previous.ChoiceRank)
	assert.Equal(t, 1, *change.Next.ChoiceRank)
	assert.Nil(t, change.Next.Status)

	_, _, ok = PlanPromotion(lost, []models.PlanningChoice{lost}, "")
	assert.False(t, ok)
}

func TestPlanRefusal(t *testing.T) {
	change := PlanRefusal(choice(1, "ABC", "2024-06-03", 5), "complet")
	assert.Equal(t, models.ChangeRefuse, change.Action)
	assert.Equal(t, models.StatusRefused, *change.Next.Status)
	require.NotNil(t, change.Next.IsActive)
	assert.True(t, *change.Next.IsActive)
	assert.Nil(t, change.OnlyIfStatus)

	validated := PlanRefusal(choice(2, "ABC", "2024-06-04", 5, withStatus(models.StatusValidated)), "")
	assert.Nil(t, validated.OnlyIfStatus)
	assert.Equal(t, models.StatusValidated, *validated.Previous.Status)
}

func TestHasScheduleConflict(t *testing.T) {
	columns := IndexColumns([]models.PlanningColumn{
		{Position: 1, StartTime: strPtr("08:00"), EndTime: strPtr("12:00")},
		{Position: 2, StartTime: strPtr("11:00"), EndTime: strPtr("14:00")},
		{Position: 3, StartTime: strPtr("14:00"), EndTime: strPtr("18:00")},
	})
	target := choice(1, "ABC", "2024-06-03", 2)

	overlapping := choice(2, "ABC", "2024-06-03", 1, withStatus(models.StatusValidated))
	adjacent := choice(3, "ABC", "2024-06-03", 3, withStatus(models.StatusValidated))
	otherDay := choice(4, "ABC", "2024-06-04", 2, withStatus(models.StatusValidated))
	otherUser := choice(5, "DEF", "2024-06-03", 2, withStatus(models.StatusValidated))
	pendingSame := choice(6, "ABC", "2024-06-03", 2)

	assert.True(t, HasScheduleConflict(target, []models.PlanningChoice{overlapping}, columns))
	assert.False(t, HasScheduleConflict(target, []models.PlanningChoice{adjacent, otherDay, otherUser, pendingSame}, columns))
	assert.True(t, HasScheduleConflict(target, []models.PlanningChoice{choice(7, "ABC", "2024-06-03", 2, withStatus(models.StatusValidated))}, columns))
}

func TestSortByPriority(t *testing.T) {
	list := []models.PlanningChoice{
		choice(1, "ABC", "2024-06-03", 1, withIndex(1), withRank(1)),
		choice(2, "ABC", "2024-06-03", 2, withIndex(3), withRank(2)),
		choice(3, "ABC", "2024-06-03", 3, withIndex(3), withRank(1)),
		choice(4, "ABC", "2024-06-03", 4, func(c *models.PlanningChoice) { c.ChoiceIndex = nil }),
		choice(5, "ABC", "2024-06-03", 5, withIndex(3), func(c *models.PlanningChoice) { c.ChoiceRank = nil }),
	}
	SortByPriority(list)

	ids := make([]int64, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{3, 2, 5, 1, 4}, ids)
}
