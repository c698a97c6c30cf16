package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/models"
)

func sampleSelections() []Selection {
	return []Selection{
		{SlotKey: "2024-06-07:3", Nature: models.NatureGood, ChoiceIndex: 2, ChoiceRank: 1, IsPrimary: true, Order: 6},
		{SlotKey: "2024-06-04:5", Nature: models.NatureNormal, ChoiceIndex: 1, ChoiceRank: 2, Order: 2},
		{SlotKey: "2024-06-03:5", Nature: models.NatureNormal, ChoiceIndex: 1, ChoiceRank: 1, IsPrimary: true, Order: 1},
		{SlotKey: "2024-06-05:5", Nature: models.NatureNormal, ChoiceIndex: 1, ChoiceRank: 2, Order: 3},
		{SlotKey: "2024-06-10:1", Nature: "bonus", ChoiceIndex: 0, ChoiceRank: -3, Order: 9},
		{SlotKey: "2024-06-12:8", Nature: models.NatureNormal, ChoiceIndex: 42, ChoiceRank: 1, Order: 4},
	}
}

func TestComputeGroupsOrdersBucketsAndRanks(t *testing.T) {
	grouped := ComputeGroups(sampleSelections())

	require.Len(t, grouped.Groups, 4)
	assert.Equal(t, "normale:1", grouped.Groups[0].GroupID)
	assert.Equal(t, "normale:20", grouped.Groups[1].GroupID)
	assert.Equal(t, "bonne:1", grouped.Groups[2].GroupID)
	assert.Equal(t, "bonne:2", grouped.Groups[3].GroupID)

	first := grouped.Groups[0]
	assert.Equal(t, "2024-06-03:5", first.Primary.SlotKey)
	require.Len(t, first.Alternatives, 2)
	// equal ranks fall back to order
	assert.Equal(t, "2024-06-04:5", first.Alternatives[0].SlotKey)
	assert.Equal(t, 2, first.Alternatives[0].ChoiceRank)
	assert.Equal(t, "2024-06-05:5", first.Alternatives[1].SlotKey)
	assert.Equal(t, 3, first.Alternatives[1].ChoiceRank)

	for pos, sel := range grouped.Selections {
		assert.Equal(t, pos+1, sel.Order)
	}
}

func TestComputeGroupsIsIdempotent(t *testing.T) {
	once := ComputeGroups(sampleSelections())
	twice := ComputeGroups(once.Selections)
	assert.Equal(t, once, twice)
}

func TestComputeGroupsRankUniqueness(t *testing.T) {
	grouped := ComputeGroups(sampleSelections())
	for _, group := range grouped.Groups {
		ranks := map[int]struct{}{}
		primaries := 0
		for _, member := range group.Members() {
			_, dup := ranks[member.ChoiceRank]
			assert.False(t, dup, "duplicate rank in %s", group.GroupID)
			ranks[member.ChoiceRank] = struct{}{}
			if member.IsPrimary {
				primaries++
				assert.Equal(t, 1, member.ChoiceRank)
			}
		}
		assert.Equal(t, 1, primaries, group.GroupID)
	}
}

func TestComputeGroupsPrimaryFlagBreaksRankTies(t *testing.T) {
	grouped := ComputeGroups([]Selection{
		{SlotKey: "2024-06-01:1", Nature: models.NatureNormal, ChoiceIndex: 3, ChoiceRank: 1, Order: 1},
		{SlotKey: "2024-06-02:1", Nature: models.NatureNormal, ChoiceIndex: 3, ChoiceRank: 1, IsPrimary: true, Order: 2},
	})
	require.Len(t, grouped.Groups, 1)
	assert.Equal(t, "2024-06-02:1", grouped.Groups[0].Primary.SlotKey)
}

func TestComputeGroupsEmpty(t *testing.T) {
	grouped := ComputeGroups(nil)
	assert.Empty(t, grouped.Groups)
	assert.Empty(t, grouped.Selections)
}

func TestClampIndexAndSanitizeRank(t *testing.T) {
	assert.Equal(t, 1, ClampIndex(0))
	assert.Equal(t, 7, ClampIndex(7))
	assert.Equal(t, 20, ClampIndex(21))
	assert.Equal(t, 1, SanitizeRank(0))
	assert.Equal(t, 4, SanitizeRank(4))
}
