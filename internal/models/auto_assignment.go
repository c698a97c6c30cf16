package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ChoiceState captures the mutable fields of a request. Nil fields were not captured.
type ChoiceState struct {
	Status     *ChoiceStatus `json:"etat,omitempty"`
	IsActive   *bool         `json:"is_active,omitempty"`
	ChoiceRank *int          `json:"choice_rank,omitempty"`
}

// StateOf snapshots every mutable field of a request.
func StateOf(c PlanningChoice) ChoiceState {
	status := c.Status
	active := c.IsActive
	state := ChoiceState{Status: &status, IsActive: &active}
	if c.ChoiceRank != nil {
		rank := *c.ChoiceRank
		state.ChoiceRank = &rank
	}
	return state
}

// Empty reports whether no field is set.
func (s ChoiceState) Empty() bool {
	return s.Status == nil && s.IsActive == nil && s.ChoiceRank == nil
}

// Apply writes the captured fields onto c.
func (s ChoiceState) Apply(c *PlanningChoice) {
	if s.Status != nil {
		c.Status = *s.Status
	}
	if s.IsActive != nil {
		c.IsActive = *s.IsActive
	}
	if s.ChoiceRank != nil {
		rank := *s.ChoiceRank
		c.ChoiceRank = &rank
	}
}

// ChangeAction names a recorded state transition.
type ChangeAction string

const (
	ChangeAccept            ChangeAction = "accept"
	ChangeRefuse            ChangeAction = "refuse"
	ChangeRefuseAlternative ChangeAction = "refuse_alternative"
	ChangePromote           ChangeAction = "promote"
)

// StateChange is one reversible command applied to a request.
type StateChange struct {
	ChoiceID int64        `json:"choice_id"`
	Action   ChangeAction `json:"action"`
	Previous ChoiceState  `json:"previous"`
	Next     ChoiceState  `json:"next"`
	Reason   string       `json:"reason"`
	// OnlyIfStatus skips the update when the row no longer holds that status.
	OnlyIfStatus *ChoiceStatus `json:"-"`
}

// Inverse returns the command restoring Previous.
func (c StateChange) Inverse() StateChange {
	return StateChange{
		ChoiceID: c.ChoiceID,
		Action:   c.Action,
		Previous: c.Next,
		Next:     c.Previous,
		Reason:   c.Reason,
	}
}

// AutoAssignmentRun is the header of one applied batch.
type AutoAssignmentRun struct {
	ID                string         `db:"id" json:"id"`
	ActorID           string         `db:"actor_id" json:"actor_id"`
	ActorTrigram      string         `db:"actor_trigram" json:"actor_trigram"`
	ActorUsername     string         `db:"actor_username" json:"actor_username"`
	PlanningReference string         `db:"planning_reference" json:"planning_reference"`
	TourNumber        int            `db:"tour_number" json:"tour_number"`
	RotationsUsed     int            `db:"rotations_used" json:"rotations_used"`
	Parameters        types.JSONText `db:"parameters" json:"parameters"`
	Summary           types.JSONText `db:"summary" json:"summary"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// AutoAssignmentRunEntry is one recorded transition of a run.
type AutoAssignmentRunEntry struct {
	ID            int64          `db:"id" json:"id"`
	RunID         string         `db:"run_id" json:"run_id"`
	ChoiceID      int64          `db:"choice_id" json:"choice_id"`
	Action        ChangeAction   `db:"action" json:"action"`
	PreviousState types.JSONText `db:"previous_state" json:"previous_state"`
	NextState     types.JSONText `db:"next_state" json:"next_state"`
	Reason        string         `db:"reason" json:"reason"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// NewRunEntry serializes a change for persistence.
func NewRunEntry(runID string, change StateChange) (AutoAssignmentRunEntry, error) {
	prev, err := json.Marshal(change.Previous)
	if err != nil {
		return AutoAssignmentRunEntry{}, fmt.Errorf("marshal previous state: %w", err)
	}
	next, err := json.Marshal(change.Next)
	if err != nil {
		return AutoAssignmentRunEntry{}, fmt.Errorf("marshal next state: %w", err)
	}
	return AutoAssignmentRunEntry{
		RunID:         runID,
		ChoiceID:      change.ChoiceID,
		Action:        change.Action,
		PreviousState: types.JSONText(prev),
		NextState:     types.JSONText(next),
		Reason:        change.Reason,
	}, nil
}

// Change decodes the persisted transition.
func (e AutoAssignmentRunEntry) Change() (StateChange, error) {
	change := StateChange{ChoiceID: e.ChoiceID, Action: e.Action, Reason: e.Reason}
	if len(e.PreviousState) > 0 {
		if err := json.Unmarshal(e.PreviousState, &change.Previous); err != nil {
			return StateChange{}, fmt.Errorf("decode previous state: %w", err)
		}
	}
	if len(e.NextState) > 0 {
		if err := json.Unmarshal(e.NextState, &change.Next); err != nil {
			return StateChange{}, fmt.Errorf("decode next state: %w", err)
		}
	}
	return change, nil
}

// WorkQueueEntry mirrors a pending request for the auto-assignment workspace.
type WorkQueueEntry struct {
	ChoiceID          int64          `db:"choice_id" json:"choice_id"`
	PlanningReference string         `db:"planning_reference" json:"planning_reference"`
	TourNumber        int            `db:"tour_number" json:"tour_number"`
	Trigram           string         `db:"trigram" json:"trigram"`
	UserID            string         `db:"user_id" json:"user_id"`
	UserType          UserType       `db:"user_type" json:"user_type"`
	Day               time.Time      `db:"day" json:"day"`
	ColumnNumber      int            `db:"column_number" json:"column_number"`
	ColumnLabel       string         `db:"column_label" json:"column_label"`
	PlanningDayLabel  string         `db:"planning_day_label" json:"planning_day_label"`
	SlotTypeCode      string         `db:"slot_type_code" json:"slot_type_code"`
	GuardNature       GuardNature    `db:"guard_nature" json:"guard_nature"`
	ActivityType      string         `db:"activity_type" json:"activity_type"`
	ChoiceIndex       *int           `db:"choice_index" json:"choice_index"`
	RootChoiceIndex   *int           `db:"root_choice_index" json:"root_choice_index"`
	ChoiceRank        *int           `db:"choice_rank" json:"choice_rank"`
	ConsolidatedIndex string         `db:"consolidated_index" json:"consolidated_index"`
	Priority          *int           `db:"priority" json:"priority"`
	Status            ChoiceStatus   `db:"status" json:"status"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	Metadata          types.JSONText `db:"metadata" json:"metadata"`
}
