package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/models"
)

func roster(trigrams ...string) []RosterEntry {
	out := make([]RosterEntry, 0, len(trigrams))
	for _, tri := range trigrams {
		out = append(out, RosterEntry{Trigram: tri, UserType: models.UserTypeDoctor})
	}
	return out
}

func good(opts ...choiceOpt) choiceOpt {
	return func(c *models.PlanningChoice) {
		c.GuardNature = models.NatureGood
		for _, opt := range opts {
			opt(c)
		}
	}
}

func TestRunSimpleStopsWhenPassMakesNoProgress(t *testing.T) {
	in := AutoAssignmentInput{Requests: []models.PlanningChoice{
		choice(1, "ABC", "2024-06-03", 1),
		choice(2, "ABC", "2024-06-04", 2, good()),
	}}

	result := RunSimple(roster("ABC", "DEF"), in, 2)

	assert.Equal(t, 1, result.Summary.RotationsUsed)
	assert.Equal(t, 1, result.Summary.Normals)
	assert.Equal(t, 1, result.Summary.Good)
	assert.Equal(t, 2, result.Summary.MaxRotations)
	require.Len(t, result.Steps, 4)

	first := result.Steps[0]
	assert.True(t, first.Assigned)
	assert.Equal(t, int64(1), first.Normal.ID)
	assert.Equal(t, int64(2), first.Good.ID)

	def := result.Steps[1]
	assert.Equal(t, "DEF", def.Trigram)
	assert.False(t, def.Assigned)
	assert.Equal(t, ReasonNothingEligible, def.Reason)

	assert.Len(t, result.Committed(), 1)
	assert.Equal(t, 4, result.Summary.Analysed)
	assert.Equal(t, 3, result.Summary.Skips)
}

func TestRunSimpleTerminatesOnEmptyInput(t *testing.T) {
	result := RunSimple(roster("ABC", "DEF", "GHI"), AutoAssignmentInput{}, 50)
	assert.Equal(t, 0, result.Summary.RotationsUsed)
	assert.Len(t, result.Steps, 3)

	result = RunSimple(nil, AutoAssignmentInput{}, 3)
	assert.Empty(t, result.Steps)
	assert.Equal(t, 3, result.Summary.MaxRotations)
}

func TestRunSimpleNeverExceedsMaxRotations(t *testing.T) {
	requests := make([]models.PlanningChoice, 0)
	id := int64(0)
	for _, tri := range []string{"ABC", "DEF", "GHI"} {
		for day := 3; day <= 7; day++ {
			id++
			requests = append(requests, choice(id, tri, "2024-06-0"+string(rune('0'+day)), int(id)))
			id++
			requests = append(requests, choice(id, tri, "2024-06-1"+string(rune('0'+day)), int(id), good()))
		}
	}

	result := RunSimple(roster("ABC", "DEF", "GHI"), AutoAssignmentInput{Requests: requests}, 4)
	assert.Equal(t, 4, result.Summary.RotationsUsed)
	assert.Len(t, result.Committed(), 4)

	taken := map[string]struct{}{}
	for _, step := range result.Committed() {
		for _, c := range []*models.PlanningChoice{step.Normal, step.Good} {
			_, dup := taken[c.SlotKey()]
			assert.False(t, dup)
			taken[c.SlotKey()] = struct{}{}
		}
	}
}

func TestRunSimpleSkipsOccupiedAndConflictingSlots(t *testing.T) {
	columns := IndexColumns([]models.PlanningColumn{
		{Position: 1, StartTime: strPtr("08:00"), EndTime: strPtr("12:00")},
		{Position: 2, StartTime: strPtr("10:00"), EndTime: strPtr("14:00")},
		{Position: 3, StartTime: strPtr("14:00"), EndTime: strPtr("18:00")},
	})
	in := AutoAssignmentInput{
		Columns: columns,
		Requests: []models.PlanningChoice{
			// slot 2024-06-03:1 already validated for someone else
			choice(1, "XYZ", "2024-06-03", 1, withStatus(models.StatusValidated)),
			choice(2, "ABC", "2024-06-03", 1, withIndex(5)),
			choice(3, "ABC", "2024-06-04", 3, withIndex(4)),
			// overlaps ABC's validated 2024-06-05:1
			choice(4, "ABC", "2024-06-05", 2, good(withIndex(5))),
			choice(5, "ABC", "2024-06-05", 1, withStatus(models.StatusValidated)),
			choice(6, "ABC", "2024-06-06", 3, good(withIndex(2))),
		},
	}

	result := RunSimple(roster("ABC"), in, 1)
	require.Len(t, result.Committed(), 1)
	step := result.Committed()[0]
	assert.Equal(t, int64(3), step.Normal.ID)
	assert.Equal(t, int64(6), step.Good.ID)
}

func TestRunSimpleReportsPairConflict(t *testing.T) {
	columns := IndexColumns([]models.PlanningColumn{
		{Position: 1, StartTime: strPtr("08:00"), EndTime: strPtr("12:00")},
		{Position: 2, StartTime: strPtr("10:00"), EndTime: strPtr("14:00")},
	})
	in := AutoAssignmentInput{Columns: columns, Requests: []models.PlanningChoice{
		choice(1, "ABC", "2024-06-03", 1),
		choice(2, "ABC", "2024-06-03", 2, good()),
	}}

	result := RunSimple(roster("ABC"), in, 1)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Assigned)
	assert.Equal(t, ReasonPairConflict, result.Steps[0].Reason)
}

func TestRunSimpleMissingNatureReasons(t *testing.T) {
	in := AutoAssignmentInput{Requests: []models.PlanningChoice{
		choice(1, "ABC", "2024-06-03", 1),
		choice(2, "DEF", "2024-06-03", 2, good()),
	}}

	result := RunSimple(roster("ABC", "DEF"), in, 1)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, ReasonNoGood, result.Steps[0].Reason)
	assert.Equal(t, ReasonNoNormal, result.Steps[1].Reason)
}

func TestAutoAssignmentSummaryFeedback(t *testing.T) {
	s := AutoAssignmentSummary{Analysed: 4, Normals: 1, Good: 1, Skips: 3, RotationsUsed: 1, MaxRotations: 2}
	assert.Contains(t, s.Feedback(), "Terminé : 4 médecin(s) analysé(s)")
	assert.Contains(t, s.Feedback(), "1/2 rotation(s)")
}
