package planning

import (
	"fmt"
	"sort"

	"github.com/Maelco1/reset/internal/models"
)

const (
	MinChoiceIndex = 1
	MaxChoiceIndex = 20
)

// ClampIndex bounds a choice index to [1,20]; non-positive values fall back to 1.
func ClampIndex(index int) int {
	if index < MinChoiceIndex {
		return MinChoiceIndex
	}
	if index > MaxChoiceIndex {
		return MaxChoiceIndex
	}
	return index
}

// SanitizeRank defaults missing or invalid ranks to 1.
func SanitizeRank(rank int) int {
	if rank < 1 {
		return 1
	}
	return rank
}

// GroupID renders the "nature:index" group key.
func GroupID(nature models.GuardNature, index int) string {
	return fmt.Sprintf("%s:%d", nature, index)
}

// Group is one numbered choice: a primary slot and its ordered alternatives.
type Group struct {
	GroupID      string             `json:"group_id"`
	Nature       models.GuardNature `json:"nature"`
	ChoiceIndex  int                `json:"choice_index"`
	Primary      Selection          `json:"primary"`
	Alternatives []Selection        `json:"alternatives"`
}

// Members returns the primary followed by the alternatives.
func (g Group) Members() []Selection {
	return append([]Selection{g.Primary}, g.Alternatives...)
}

// Grouped is the normalized view of a selection set.
type Grouped struct {
	Groups     []Group     `json:"groups"`
	Selections []Selection `json:"selections"`
}

// ComputeGroups normalizes selections into ranked groups. Within a (nature, index) bucket the
// members are sorted by rank, primary flag, order and slot key; the first becomes primary with
// rank 1 and the following get ranks 2..n. Order is renumbered across natures in declared order,
// then index ascending. The result is idempotent.
func ComputeGroups(selections []Selection) Grouped {
	buckets := make(map[models.GuardNature]map[int][]Selection, len(models.Natures))
	for _, sel := range selections {
		sel.Nature = models.ParseGuardNature(string(sel.Nature))
		sel.ChoiceIndex = ClampIndex(sel.ChoiceIndex)
		sel.ChoiceRank = SanitizeRank(sel.ChoiceRank)
		if buckets[sel.Nature] == nil {
			buckets[sel.Nature] = make(map[int][]Selection)
		}
		buckets[sel.Nature][sel.ChoiceIndex] = append(buckets[sel.Nature][sel.ChoiceIndex], sel)
	}

	out := Grouped{Groups: make([]Group, 0), Selections: make([]Selection, 0, len(selections))}
	order := 0
	for _, nature := range models.Natures {
		byIndex := buckets[nature]
		indices := make([]int, 0, len(byIndex))
		for idx := range byIndex {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		for _, idx := range indices {
			members := byIndex[idx]
			sort.SliceStable(members, func(i, j int) bool {
				return lessInBucket(members[i], members[j])
			})

			group := Group{GroupID: GroupID(nature, idx), Nature: nature, ChoiceIndex: idx}
			for pos := range members {
				order++
				members[pos].ChoiceRank = pos + 1
				members[pos].IsPrimary = pos == 0
				members[pos].GroupID = group.GroupID
				members[pos].Order = order
				if pos == 0 {
					group.Primary = members[pos]
				} else {
					group.Alternatives = append(group.Alternatives, members[pos])
				}
				out.Selections = append(out.Selections, members[pos])
			}
			out.Groups = append(out.Groups, group)
		}
	}
	return out
}

func lessInBucket(a, b Selection) bool {
	if a.ChoiceRank != b.ChoiceRank {
		return a.ChoiceRank < b.ChoiceRank
	}
	if a.IsPrimary != b.IsPrimary {
		return a.IsPrimary
	}
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	return a.SlotKey < b.SlotKey
}
