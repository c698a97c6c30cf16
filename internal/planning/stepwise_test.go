package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/models"
)

func TestGoodUnlocked(t *testing.T) {
	assert.False(t, GoodUnlocked(1, 0, 2, 1))
	assert.True(t, GoodUnlocked(2, 0, 2, 1))
	assert.False(t, GoodUnlocked(2, 1, 2, 1))
	assert.True(t, GoodUnlocked(4, 1, 2, 1))
	assert.False(t, GoodUnlocked(10, 0, 2, 0))
	assert.False(t, GoodUnlocked(10, 0, 0, 1))
}

func TestPlanStepwiseUnlocksGoodAfterThreshold(t *testing.T) {
	in := AutoAssignmentInput{Requests: []models.PlanningChoice{
		choice(1, "ABC", "2024-06-03", 1, withStatus(models.StatusValidated)),
		choice(2, "ABC", "2024-06-04", 1),
		choice(3, "ABC", "2024-06-05", 1),
		choice(4, "ABC", "2024-06-06", 2, good()),
	}}
	params := StepwiseParams{
		AutoAssignmentParams: AutoAssignmentParams{Rotations: 3},
		NormalThreshold:      2,
		GoodQuota:            1,
	}

	offers := PlanStepwise(roster("ABC"), in, params)
	require.Len(t, offers, 3)

	// the normal held in the first step does not unlock a good duty yet
	assert.Equal(t, int64(2), offers[0].Normal.ID)
	assert.False(t, offers[0].GoodUnlocked)
	assert.Nil(t, offers[0].Good)
	assert.Equal(t, 2, offers[0].NormalCount)

	assert.Equal(t, int64(3), offers[1].Normal.ID)
	assert.True(t, offers[1].GoodUnlocked)
	require.NotNil(t, offers[1].Good)
	assert.Equal(t, int64(4), offers[1].Good.ID)
	assert.Equal(t, 1, offers[1].GoodCount)

	assert.False(t, offers[2].Offered())
	assert.Equal(t, ReasonNothingEligible, offers[2].Reason)
}

func TestPlanStepwiseSameStepNormalDoesNotUnlock(t *testing.T) {
	in := AutoAssignmentInput{Requests: []models.PlanningChoice{
		choice(1, "ABC", "2024-06-03", 1, withStatus(models.StatusValidated)),
		choice(2, "ABC", "2024-06-04", 1),
		choice(4, "ABC", "2024-06-06", 2, good()),
	}}
	params := StepwiseParams{
		AutoAssignmentParams: AutoAssignmentParams{Rotations: 1},
		NormalThreshold:      2,
		GoodQuota:            1,
	}

	offers := PlanStepwise(roster("ABC"), in, params)
	require.Len(t, offers, 1)
	require.NotNil(t, offers[0].Normal)
	assert.False(t, offers[0].GoodUnlocked)
	assert.Nil(t, offers[0].Good)
	assert.Zero(t, offers[0].GoodCount)
}

func TestPlanStepwiseHonoursSkipped(t *testing.T) {
	in := AutoAssignmentInput{Requests: []models.PlanningChoice{
		choice(1, "ABC", "2024-06-04", 1, withIndex(2)),
		choice(2, "ABC", "2024-06-05", 1, withIndex(1)),
	}}
	params := StepwiseParams{
		AutoAssignmentParams: AutoAssignmentParams{Rotations: 1},
		NormalThreshold:      1,
		GoodQuota:            0,
		Skipped:              []int64{1},
	}

	offers := PlanStepwise(roster("ABC"), in, params)
	require.Len(t, offers, 1)
	assert.Equal(t, int64(2), offers[0].Normal.ID)
}

func TestStepwiseValidateRatio(t *testing.T) {
	assert.Error(t, StepwiseParams{NormalThreshold: 0}.ValidateRatio())
	assert.Error(t, StepwiseParams{NormalThreshold: 1, GoodQuota: -1}.ValidateRatio())
	assert.NoError(t, StepwiseParams{NormalThreshold: 3, GoodQuota: 1}.ValidateRatio())
}
