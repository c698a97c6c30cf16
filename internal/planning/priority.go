package planning

import (
	"sort"

	"github.com/Maelco1/reset/internal/models"
)

// RankOf returns the sanitized rank of a request (missing ranks count as 1).
func RankOf(c models.PlanningChoice) int {
	if c.ChoiceRank == nil {
		return 1
	}
	return SanitizeRank(*c.ChoiceRank)
}

// HigherPriority orders requests by index descending (missing last), rank ascending (missing
// last), then creation time and id.
func HigherPriority(a, b models.PlanningChoice) bool {
	switch {
	case a.ChoiceIndex == nil && b.ChoiceIndex != nil:
		return false
	case a.ChoiceIndex != nil && b.ChoiceIndex == nil:
		return true
	case a.ChoiceIndex != nil && *a.ChoiceIndex != *b.ChoiceIndex:
		return *a.ChoiceIndex > *b.ChoiceIndex
	}
	switch {
	case a.ChoiceRank == nil && b.ChoiceRank != nil:
		return false
	case a.ChoiceRank != nil && b.ChoiceRank == nil:
		return true
	case a.ChoiceRank != nil && *a.ChoiceRank != *b.ChoiceRank:
		return *a.ChoiceRank < *b.ChoiceRank
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortByPriority sorts requests in place.
func SortByPriority(choices []models.PlanningChoice) {
	sort.SliceStable(choices, func(i, j int) bool { return HigherPriority(choices[i], choices[j]) })
}
