package planning

import (
	"fmt"
	"sort"

	"github.com/Maelco1/reset/internal/models"
)

// AlternativeRule records why a same-user request was classified as an alternative.
type AlternativeRule string

const (
	RuleChoiceOrder AlternativeRule = "choice_order"
	RuleChoiceIndex AlternativeRule = "choice_index"
	RuleChoiceRank  AlternativeRule = "choice_rank"
)

// Reasons are the operation-log texts of one acceptance path.
type Reasons struct {
	Accept                string
	Alternative           string
	AdditionalAlternative string
	// Competitor is formatted with the accepted trigram.
	Competitor string
	Promotion  string
}

// ManualReasons are used when an administrator accepts a request.
func ManualReasons() Reasons {
	return Reasons{
		Accept:                "Demande acceptée",
		Alternative:           "Alternative refusée automatiquement",
		AdditionalAlternative: "Alternative retirée automatiquement",
		Competitor:            "Attribué à %s",
		Promotion:             "Promotion automatique de l'alternative",
	}
}

// AutomaticReasons are used by the auto-assignment apply path.
func AutomaticReasons(nature models.GuardNature) Reasons {
	return Reasons{
		Accept:                fmt.Sprintf("Attribution automatique (%s)", nature),
		Alternative:           "Alternative refusée automatiquement",
		AdditionalAlternative: "Alternative retirée automatiquement",
		Competitor:            "Conflit avec %s",
		Promotion:             "Promotion automatique après refus",
	}
}

// AcceptanceInput gathers the records an acceptance must look at.
type AcceptanceInput struct {
	Target models.PlanningChoice
	// Competing shares the target's reference, tour, day and column.
	Competing []models.PlanningChoice
	// SameIndex shares the target's reference, tour, trigram and choice index.
	SameIndex []models.PlanningChoice
	// SameOrder shares the target's reference, tour, trigram and choice order.
	SameOrder []models.PlanningChoice
	Reasons   Reasons
}

// ClassifiedAlternative is a same-user request deactivated by an acceptance.
type ClassifiedAlternative struct {
	Choice models.PlanningChoice
	Rule   AlternativeRule
}

// AcceptancePlan is the ordered list of commands an acceptance applies.
type AcceptancePlan struct {
	Target       models.PlanningChoice
	Changes      []models.StateChange
	Alternatives []ClassifiedAlternative
	// Competitors are the other practitioners' pending requests being refused.
	Competitors []models.PlanningChoice
	// PrimaryLosers are refused competitors that were the primary of their group.
	PrimaryLosers []models.PlanningChoice
}

// AffectedIDs lists every request touched by the plan, target first.
func (p AcceptancePlan) AffectedIDs() []int64 {
	ids := []int64{p.Target.ID}
	for _, alt := range p.Alternatives {
		ids = append(ids, alt.Choice.ID)
	}
	for _, c := range p.Competitors {
		ids = append(ids, c.ID)
	}
	return ids
}

// ClassifyAlternative applies the precedence choice_order > choice_index > rank. Only requests of
// the same practitioner and guard nature qualify.
func ClassifyAlternative(target, candidate models.PlanningChoice) (AlternativeRule, bool) {
	if candidate.ID == target.ID || !sameTrigram(target, candidate) || candidate.GuardNature != target.GuardNature {
		return "", false
	}
	if target.ChoiceOrder != nil && candidate.ChoiceOrder != nil && *target.ChoiceOrder == *candidate.ChoiceOrder {
		return RuleChoiceOrder, true
	}
	if target.ChoiceIndex != nil && candidate.ChoiceIndex != nil && *target.ChoiceIndex == *candidate.ChoiceIndex {
		return RuleChoiceIndex, true
	}
	if candidate.ChoiceRank == nil || *candidate.ChoiceRank > RankOf(target) {
		return RuleChoiceRank, true
	}
	return "", false
}

// PlanAcceptance derives the state changes of accepting in.Target.
func PlanAcceptance(in AcceptanceInput) AcceptancePlan {
	target := in.Target
	plan := AcceptancePlan{Target: target}
	handled := map[int64]struct{}{target.ID: {}}

	if target.Status != models.StatusValidated || !target.IsActive {
		next := models.StateOf(target)
		validated := models.StatusValidated
		active := true
		next.Status = &validated
		next.IsActive = &active
		plan.Changes = append(plan.Changes, models.StateChange{
			ChoiceID: target.ID,
			Action:   models.ChangeAccept,
			Previous: models.StateOf(target),
			Next:     next,
			Reason:   in.Reasons.Accept,
		})
	}

	addAlternative := func(c models.PlanningChoice, rule AlternativeRule, reason string) {
		if _, done := handled[c.ID]; done {
			return
		}
		handled[c.ID] = struct{}{}
		if c.Status == models.StatusRefused && !c.IsActive {
			return
		}
		plan.Alternatives = append(plan.Alternatives, ClassifiedAlternative{Choice: c, Rule: rule})
		plan.Changes = append(plan.Changes, refusal(c, models.ChangeRefuseAlternative, reason, false))
	}

	competing := sortedByID(in.Competing)
	for _, c := range competing {
		if !sameTrigram(target, c) {
			continue
		}
		if rule, ok := ClassifyAlternative(target, c); ok {
			addAlternative(c, rule, in.Reasons.Alternative)
		}
	}

	threshold := RankOf(target)
	for _, c := range sortedByID(in.SameIndex) {
		if !sameTrigram(target, c) || c.GuardNature != target.GuardNature {
			continue
		}
		if c.ChoiceRank != nil && *c.ChoiceRank <= threshold {
			continue
		}
		addAlternative(c, RuleChoiceIndex, in.Reasons.Alternative)
	}

	for _, c := range sortedByID(in.SameOrder) {
		if !sameTrigram(target, c) || c.GuardNature != target.GuardNature {
			continue
		}
		addAlternative(c, RuleChoiceOrder, in.Reasons.AdditionalAlternative)
	}

	acceptedTrigram := models.NormalizeTrigram(target.Trigram)
	for _, c := range competing {
		if sameTrigram(target, c) {
			continue
		}
		if _, done := handled[c.ID]; done {
			continue
		}
		handled[c.ID] = struct{}{}
		if c.Status != models.StatusPending {
			continue
		}
		plan.Competitors = append(plan.Competitors, c)
		plan.Changes = append(plan.Changes, refusal(c, models.ChangeRefuse, fmt.Sprintf(in.Reasons.Competitor, acceptedTrigram), true))
		if c.ChoiceRank != nil && *c.ChoiceRank == 1 {
			plan.PrimaryLosers = append(plan.PrimaryLosers, c)
		}
	}

	return plan
}

// PlanRefusal returns the refusal command of a request. The request stays active so it is
// still listed under the refused tab.
func PlanRefusal(target models.PlanningChoice, reason string) models.StateChange {
	change := refusal(target, models.ChangeRefuse, reason, true)
	change.OnlyIfStatus = nil
	return change
}

// PlanPromotion picks the next alternative of a refused primary: the lowest-rank pending request
// of the same practitioner, index and nature with rank > 1. It returns false when none exists.
func PlanPromotion(refused models.PlanningChoice, candidates []models.PlanningChoice, reason string) (models.StateChange, models.PlanningChoice, bool) {
	var best *models.PlanningChoice
	for i := range candidates {
		c := candidates[i]
		if c.ID == refused.ID || !sameTrigram(refused, c) || c.GuardNature != refused.GuardNature {
			continue
		}
		if c.Status != models.StatusPending || c.ChoiceRank == nil || *c.ChoiceRank <= 1 {
			continue
		}
		if !sameIndex(refused, c) {
			continue
		}
		if best == nil || *c.ChoiceRank < *best.ChoiceRank || (*c.ChoiceRank == *best.ChoiceRank && c.ID < best.ID) {
			best = &candidates[i]
		}
	}
	if best == nil {
		return models.StateChange{}, models.PlanningChoice{}, false
	}
	prevRank := *best.ChoiceRank
	change := models.StateChange{
		ChoiceID: best.ID,
		Action:   models.ChangePromote,
		Previous: models.ChoiceState{ChoiceRank: &prevRank},
		Next:     models.ChoiceState{ChoiceRank: models.IntPtr(1)},
		Reason:   reason,
	}
	return change, *best, true
}

// HasScheduleConflict reports whether the practitioner already holds a validated request on the
// same day in the same column or an overlapping time range.
func HasScheduleConflict(target models.PlanningChoice, others []models.PlanningChoice, columns ColumnIndex) bool {
	targetRange := columns.Range(target.ColumnNumber)
	for _, other := range others {
		if other.ID == target.ID || other.Status != models.StatusValidated || !sameTrigram(target, other) {
			continue
		}
		if other.DayKey() != target.DayKey() {
			continue
		}
		if other.ColumnNumber == target.ColumnNumber || targetRange.Overlaps(columns.Range(other.ColumnNumber)) {
			return true
		}
	}
	return false
}

func refusal(c models.PlanningChoice, action models.ChangeAction, reason string, keepActive bool) models.StateChange {
	next := models.StateOf(c)
	refused := models.StatusRefused
	next.Status = &refused
	change := models.StateChange{
		ChoiceID: c.ID,
		Action:   action,
		Previous: models.StateOf(c),
		Next:     next,
		Reason:   reason,
	}
	if !keepActive {
		inactive := false
		change.Next.IsActive = &inactive
	} else {
		pending := models.StatusPending
		change.OnlyIfStatus = &pending
	}
	return change
}

func sameTrigram(a, b models.PlanningChoice) bool {
	return models.NormalizeTrigram(a.Trigram) == models.NormalizeTrigram(b.Trigram)
}

func sameIndex(a, b models.PlanningChoice) bool {
	if a.ChoiceIndex == nil || b.ChoiceIndex == nil {
		return a.ChoiceIndex == nil && b.ChoiceIndex == nil
	}
	return *a.ChoiceIndex == *b.ChoiceIndex
}

func sortedByID(in []models.PlanningChoice) []models.PlanningChoice {
	out := append([]models.PlanningChoice(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
