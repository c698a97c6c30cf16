package planning

import (
	"errors"
	"sort"
	"time"

	"github.com/Maelco1/reset/internal/models"
)

// ErrUnknownSelection is returned when a slot key is not part of the selection set.
var ErrUnknownSelection = errors.New("selection not found")

// Role is the requested position of a selection inside its group.
type Role string

const (
	RolePrincipal   Role = "principal"
	RoleAlternative Role = "alternative"
)

// SlotRef describes the grid cell a practitioner clicked.
type SlotRef struct {
	Day              time.Time
	Position         int
	ColumnLabel      string
	SlotTypeCode     string
	ActivityCategory models.ActivityCategory
	DayLabel         string
}

// Key returns the slot key of the cell.
func (s SlotRef) Key() string {
	return models.SlotKey(s.Day, s.Position)
}

// Selection is one in-progress pick of a slot.
type Selection struct {
	SlotKey          string                  `json:"slot_key"`
	Nature           models.GuardNature      `json:"nature"`
	Day              time.Time               `json:"day"`
	ColumnPosition   int                     `json:"column_position"`
	ColumnLabel      string                  `json:"column_label"`
	SlotTypeCode     string                  `json:"slot_type_code"`
	ActivityCategory models.ActivityCategory `json:"activity_category"`
	DayLabel         string                  `json:"day_label"`
	ChoiceIndex      int                     `json:"choice_index"`
	ChoiceRank       int                     `json:"choice_rank"`
	IsPrimary        bool                    `json:"is_primary"`
	GroupID          string                  `json:"group_id"`
	Order            int                     `json:"order"`
}

// SelectionModel owns one practitioner's selection set. Derived groups are memoized and
// invalidated by every mutation.
type SelectionModel struct {
	selections  map[string]*Selection
	activeIndex map[models.GuardNature]int
	counter     int
	autoAdvance bool
	grouped     *Grouped
}

// ModelOption configures a SelectionModel.
type ModelOption func(*SelectionModel)

// WithAutoAdvance moves the active index of a nature forward after each add, saturating at 20.
func WithAutoAdvance(enabled bool) ModelOption {
	return func(m *SelectionModel) {
		m.autoAdvance = enabled
	}
}

// NewSelectionModel returns an empty model with both cursors at 1.
func NewSelectionModel(opts ...ModelOption) *SelectionModel {
	m := &SelectionModel{
		selections: make(map[string]*Selection),
		activeIndex: map[models.GuardNature]int{
			models.NatureNormal: MinChoiceIndex,
			models.NatureGood:   MinChoiceIndex,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Len returns the number of selections.
func (m *SelectionModel) Len() int {
	return len(m.selections)
}

// Has reports whether a slot is selected.
func (m *SelectionModel) Has(slotKey string) bool {
	_, ok := m.selections[slotKey]
	return ok
}

// ActiveIndex returns the cursor of a nature.
func (m *SelectionModel) ActiveIndex(nature models.GuardNature) int {
	return ClampIndex(m.activeIndex[models.ParseGuardNature(string(nature))])
}

// SetActiveIndex moves the cursor of a nature, clamping to [1,20].
func (m *SelectionModel) SetActiveIndex(nature models.GuardNature, index int) int {
	index = ClampIndex(index)
	m.activeIndex[models.ParseGuardNature(string(nature))] = index
	return index
}

// Add selects a slot under the active index of nature. Selecting an already selected slot is a
// no-op and reports false.
func (m *SelectionModel) Add(slot SlotRef, nature models.GuardNature) (Selection, bool) {
	key := slot.Key()
	if existing, ok := m.selections[key]; ok {
		return *existing, false
	}
	nature = models.ParseGuardNature(string(nature))
	index := m.ActiveIndex(nature)

	groupSize := 0
	for _, sel := range m.selections {
		if sel.Nature == nature && sel.ChoiceIndex == index {
			groupSize++
		}
	}

	m.counter++
	sel := &Selection{
		SlotKey:          key,
		Nature:           nature,
		Day:              Truncate(slot.Day),
		ColumnPosition:   slot.Position,
		ColumnLabel:      slot.ColumnLabel,
		SlotTypeCode:     slot.SlotTypeCode,
		ActivityCategory: slot.ActivityCategory,
		DayLabel:         slot.DayLabel,
		ChoiceIndex:      index,
		ChoiceRank:       groupSize + 1,
		IsPrimary:        groupSize == 0,
		GroupID:          GroupID(nature, index),
		Order:            m.counter,
	}
	m.selections[key] = sel

	if m.autoAdvance {
		m.activeIndex[nature] = ClampIndex(index + 1)
	}
	m.invalidate()
	return *sel, true
}

// Toggle removes a selected slot or adds it otherwise. It reports whether the slot is now selected.
func (m *SelectionModel) Toggle(slot SlotRef, nature models.GuardNature) bool {
	if m.Remove(slot.Key()) {
		return false
	}
	m.Add(slot, nature)
	return true
}

// Remove deletes a selection. Ranks are renumbered by the next recompute.
func (m *SelectionModel) Remove(slotKey string) bool {
	if _, ok := m.selections[slotKey]; !ok {
		return false
	}
	delete(m.selections, slotKey)
	m.invalidate()
	return true
}

// SetRole promotes a selection to principal of its group or demotes it to an alternative.
// Demoting the only member of a group is a no-op.
func (m *SelectionModel) SetRole(slotKey string, role Role) error {
	m.Groups()
	target, ok := m.selections[slotKey]
	if !ok {
		return ErrUnknownSelection
	}

	members := m.groupMembers(target.Nature, target.ChoiceIndex)
	switch role {
	case RolePrincipal:
		if target.IsPrimary {
			return nil
		}
		primary := members[0]
		m.swapRanks(target, primary)
	case RoleAlternative:
		if !target.IsPrimary || len(members) < 2 {
			return nil
		}
		m.swapRanks(target, members[1])
	default:
		return errors.New("unknown role")
	}
	m.invalidate()
	return nil
}

// ReorderFromPresentation applies a drag result for one nature. Groups receive fresh indices in
// order of first appearance and ranks follow the position inside each group. Unlisted keys of
// that nature keep their relative order after the listed ones.
func (m *SelectionModel) ReorderFromPresentation(nature models.GuardNature, slotKeys []string) {
	nature = models.ParseGuardNature(string(nature))
	grouped := m.Groups()

	seen := make(map[string]struct{}, len(slotKeys))
	ordered := make([]*Selection, 0, len(slotKeys))
	for _, key := range slotKeys {
		sel, ok := m.selections[key]
		if !ok || sel.Nature != nature {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, sel)
	}
	for _, sel := range grouped.Selections {
		if sel.Nature != nature {
			continue
		}
		if _, ok := seen[sel.SlotKey]; ok {
			continue
		}
		ordered = append(ordered, m.selections[sel.SlotKey])
	}

	newIndex := make(map[int]int)
	nextIndex := MinChoiceIndex
	ranks := make(map[int]int)
	for _, sel := range ordered {
		idx, ok := newIndex[sel.ChoiceIndex]
		if !ok {
			idx = ClampIndex(nextIndex)
			newIndex[sel.ChoiceIndex] = idx
			nextIndex++
		}
		ranks[idx]++
		sel.ChoiceIndex = idx
		sel.ChoiceRank = ranks[idx]
		sel.IsPrimary = ranks[idx] == 1
	}
	for pos, sel := range ordered {
		sel.Order = pos + 1
	}
	m.invalidate()
}

// Groups returns the memoized normalized grouping and writes the normalized ranks back.
func (m *SelectionModel) Groups() Grouped {
	if m.grouped != nil {
		return *m.grouped
	}
	raw := make([]Selection, 0, len(m.selections))
	for _, sel := range m.selections {
		raw = append(raw, *sel)
	}
	// map iteration is random; ties are broken by slot key inside ComputeGroups
	sort.Slice(raw, func(i, j int) bool { return raw[i].SlotKey < raw[j].SlotKey })

	grouped := ComputeGroups(raw)
	for _, sel := range grouped.Selections {
		stored := m.selections[sel.SlotKey]
		*stored = sel
	}
	if len(grouped.Selections) > 0 {
		m.counter = max(m.counter, grouped.Selections[len(grouped.Selections)-1].Order)
	}
	m.grouped = &grouped
	return grouped
}

func (m *SelectionModel) groupMembers(nature models.GuardNature, index int) []*Selection {
	members := make([]*Selection, 0)
	for _, sel := range m.selections {
		if sel.Nature == nature && sel.ChoiceIndex == index {
			members = append(members, sel)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ChoiceRank < members[j].ChoiceRank })
	return members
}

func (m *SelectionModel) swapRanks(a, b *Selection) {
	a.ChoiceRank, b.ChoiceRank = b.ChoiceRank, a.ChoiceRank
	a.IsPrimary, b.IsPrimary = b.IsPrimary, a.IsPrimary
}

func (m *SelectionModel) invalidate() {
	m.grouped = nil
}

// Snapshot is the serializable state of a SelectionModel.
type Snapshot struct {
	Selections  []Selection                `json:"selections"`
	ActiveIndex map[models.GuardNature]int `json:"active_index"`
	Counter     int                        `json:"counter"`
	AutoAdvance bool                       `json:"auto_advance"`
}

// Snapshot exports the normalized state.
func (m *SelectionModel) Snapshot() Snapshot {
	grouped := m.Groups()
	active := make(map[models.GuardNature]int, len(m.activeIndex))
	for nature, idx := range m.activeIndex {
		active[nature] = idx
	}
	return Snapshot{
		Selections:  append([]Selection(nil), grouped.Selections...),
		ActiveIndex: active,
		Counter:     m.counter,
		AutoAdvance: m.autoAdvance,
	}
}

// RestoreSelectionModel rebuilds a model from a snapshot. Duplicate slot keys keep the first entry.
func RestoreSelectionModel(s Snapshot, opts ...ModelOption) *SelectionModel {
	m := NewSelectionModel(append([]ModelOption{WithAutoAdvance(s.AutoAdvance)}, opts...)...)
	for nature, idx := range s.ActiveIndex {
		m.SetActiveIndex(nature, idx)
	}
	for _, sel := range s.Selections {
		if _, dup := m.selections[sel.SlotKey]; dup || sel.SlotKey == "" {
			continue
		}
		copySel := sel
		m.selections[sel.SlotKey] = &copySel
		m.counter = max(m.counter, sel.Order)
	}
	m.counter = max(m.counter, s.Counter)
	return m
}
