package planning

import (
	"fmt"

	"github.com/Maelco1/reset/internal/models"
)

// Skip reasons reported by the rotation passes.
const (
	ReasonNothingEligible = "Aucune demande éligible."
	ReasonPairConflict    = "Conflit horaire entre les gardes proposées."
	ReasonNoNormal        = "Aucune garde normale disponible."
	ReasonNoGood          = "Aucune bonne garde disponible."
	ReasonNoCompatible    = "Aucune garde compatible disponible."
)

// AutoAssignmentInput is the request pool of one reference/tour.
type AutoAssignmentInput struct {
	Requests []models.PlanningChoice
	Columns  ColumnIndex
}

// AutoAssignmentStep is one visit of a practitioner during a rotation.
type AutoAssignmentStep struct {
	Trigram  string                 `json:"trigram"`
	UserType models.UserType        `json:"user_type"`
	Rotation int                    `json:"rotation"`
	Normal   *models.PlanningChoice `json:"normal,omitempty"`
	Good     *models.PlanningChoice `json:"good,omitempty"`
	Assigned bool                   `json:"assigned"`
	Reason   string                 `json:"reason,omitempty"`
}

// AutoAssignmentSummary counts the outcome of a run.
type AutoAssignmentSummary struct {
	Analysed      int `json:"analysed"`
	Normals       int `json:"normals"`
	Good          int `json:"good"`
	Skips         int `json:"skips"`
	RotationsUsed int `json:"rotations_used"`
	MaxRotations  int `json:"max_rotations"`
}

// Feedback renders the summary line shown after a run.
func (s AutoAssignmentSummary) Feedback() string {
	return fmt.Sprintf("Terminé : %d médecin(s) analysé(s) • %d garde(s) normale(s) • %d bonne(s) garde(s) • %d passage(s) sans attribution • %d/%d rotation(s) utilisée(s).",
		s.Analysed, s.Normals, s.Good, s.Skips, s.RotationsUsed, s.MaxRotations)
}

// AutoAssignmentResult is the plan produced by RunSimple.
type AutoAssignmentResult struct {
	Steps   []AutoAssignmentStep  `json:"steps"`
	Summary AutoAssignmentSummary `json:"summary"`
}

// Committed returns the steps that paired a normal and a good duty.
func (r AutoAssignmentResult) Committed() []AutoAssignmentStep {
	out := make([]AutoAssignmentStep, 0, r.Summary.RotationsUsed)
	for _, step := range r.Steps {
		if step.Assigned {
			out = append(out, step)
		}
	}
	return out
}

type queues struct {
	normals []models.PlanningChoice
	goods   []models.PlanningChoice
}

type heldSlot struct {
	day    string
	column int
	rng    TimeRange
}

// assignmentState tracks occupied slots and per-practitioner holdings while a plan is built.
type assignmentState struct {
	columns  ColumnIndex
	pending  map[string]*queues
	occupied map[string]struct{}
	held     map[string][]heldSlot
}

func newAssignmentState(roster []RosterEntry, in AutoAssignmentInput) *assignmentState {
	st := &assignmentState{
		columns:  in.Columns,
		pending:  make(map[string]*queues, len(roster)),
		occupied: make(map[string]struct{}),
		held:     make(map[string][]heldSlot),
	}
	inRoster := make(map[string]struct{}, len(roster))
	for _, entry := range roster {
		inRoster[entry.Trigram] = struct{}{}
	}

	for _, req := range in.Requests {
		trigram := models.NormalizeTrigram(req.Trigram)
		if req.Status == models.StatusValidated && req.IsActive {
			st.occupy(trigram, req)
			continue
		}
		if req.Status != models.StatusPending || !req.IsActive {
			continue
		}
		if _, ok := inRoster[trigram]; !ok {
			continue
		}
		q := st.pending[trigram]
		if q == nil {
			q = &queues{}
			st.pending[trigram] = q
		}
		if models.ParseGuardNature(string(req.GuardNature)) == models.NatureGood {
			q.goods = append(q.goods, req)
		} else {
			q.normals = append(q.normals, req)
		}
	}
	for _, q := range st.pending {
		SortByPriority(q.normals)
		SortByPriority(q.goods)
	}
	return st
}

func (st *assignmentState) occupy(trigram string, req models.PlanningChoice) {
	st.occupied[req.SlotKey()] = struct{}{}
	st.held[trigram] = append(st.held[trigram], heldSlot{
		day:    req.DayKey(),
		column: req.ColumnNumber,
		rng:    st.columns.Range(req.ColumnNumber),
	})
}

func (st *assignmentState) conflictsWithHeld(trigram string, req models.PlanningChoice) bool {
	rng := st.columns.Range(req.ColumnNumber)
	for _, h := range st.held[trigram] {
		if h.day != req.DayKey() {
			continue
		}
		if h.column == req.ColumnNumber || h.rng.Overlaps(rng) {
			return true
		}
	}
	return false
}

// findNext returns the first eligible request of list, skipping excludedSlot and any id in skip.
func (st *assignmentState) findNext(trigram string, list []models.PlanningChoice, excludedSlot string, skip map[int64]struct{}) *models.PlanningChoice {
	for i := range list {
		candidate := list[i]
		if _, skipped := skip[candidate.ID]; skipped {
			continue
		}
		key := candidate.SlotKey()
		if key == excludedSlot {
			continue
		}
		if _, taken := st.occupied[key]; taken {
			continue
		}
		if st.conflictsWithHeld(trigram, candidate) {
			continue
		}
		return &list[i]
	}
	return nil
}

func (st *assignmentState) pairConflict(a, b models.PlanningChoice) bool {
	if a.DayKey() != b.DayKey() {
		return false
	}
	return a.ColumnNumber == b.ColumnNumber || st.columns.Range(a.ColumnNumber).Overlaps(st.columns.Range(b.ColumnNumber))
}

func (st *assignmentState) take(trigram string, req models.PlanningChoice) {
	st.occupy(trigram, req)
	q := st.pending[trigram]
	if q == nil {
		return
	}
	q.normals = withoutID(q.normals, req.ID)
	q.goods = withoutID(q.goods, req.ID)
}

func withoutID(list []models.PlanningChoice, id int64) []models.PlanningChoice {
	out := list[:0]
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// RunSimple walks the roster in bounded rotations and pairs one normal with one good duty per
// practitioner per pass. It stops after maxRotations committed pairs or after a pass without
// any commitment.
func RunSimple(roster []RosterEntry, in AutoAssignmentInput, maxRotations int) AutoAssignmentResult {
	result := AutoAssignmentResult{Steps: make([]AutoAssignmentStep, 0)}
	result.Summary.MaxRotations = maxRotations
	if len(roster) == 0 || maxRotations < 1 {
		return result
	}

	st := newAssignmentState(roster, in)
	for pass := 1; pass <= maxRotations && result.Summary.RotationsUsed < maxRotations; pass++ {
		assignedThisPass := 0
		for _, entry := range roster {
			if result.Summary.RotationsUsed >= maxRotations {
				break
			}
			result.Summary.Analysed++
			step := AutoAssignmentStep{Trigram: entry.Trigram, UserType: entry.UserType, Rotation: pass}

			q := st.pending[entry.Trigram]
			if q == nil || (len(q.normals) == 0 && len(q.goods) == 0) {
				step.Reason = ReasonNothingEligible
				result.Summary.Skips++
				result.Steps = append(result.Steps, step)
				continue
			}

			normal := st.findNext(entry.Trigram, q.normals, "", nil)
			excluded := ""
			if normal != nil {
				excluded = normal.SlotKey()
			}
			good := st.findNext(entry.Trigram, q.goods, excluded, nil)
			step.Normal = copyChoice(normal)
			step.Good = copyChoice(good)

			switch {
			case normal != nil && good != nil && st.pairConflict(*normal, *good):
				step.Reason = ReasonPairConflict
			case normal != nil && good != nil:
				n, g := *step.Normal, *step.Good
				st.take(entry.Trigram, n)
				st.take(entry.Trigram, g)
				result.Summary.RotationsUsed++
				result.Summary.Normals++
				result.Summary.Good++
				assignedThisPass++
				step.Assigned = true
				step.Rotation = result.Summary.RotationsUsed
			case normal == nil && good == nil:
				step.Reason = missingPairReason(q)
			case normal == nil:
				step.Reason = ReasonNoNormal
			default:
				step.Reason = ReasonNoGood
			}
			if !step.Assigned {
				result.Summary.Skips++
			}
			result.Steps = append(result.Steps, step)
		}
		if assignedThisPass == 0 {
			break
		}
	}
	return result
}

func missingPairReason(q *queues) string {
	switch {
	case len(q.normals) == 0 && len(q.goods) == 0:
		return ReasonNothingEligible
	case len(q.normals) == 0:
		return ReasonNoNormal
	case len(q.goods) == 0:
		return ReasonNoGood
	default:
		return ReasonNoCompatible
	}
}

func copyChoice(c *models.PlanningChoice) *models.PlanningChoice {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
