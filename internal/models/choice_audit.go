package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ChoiceAuditAction enumerates request-level audit events.
type ChoiceAuditAction string

const (
	ChoiceAuditAccept      ChoiceAuditAction = "accept"
	ChoiceAuditRefuse      ChoiceAuditAction = "refuse"
	ChoiceAuditAutoPromote ChoiceAuditAction = "auto_promote"
)

// ChoiceAudit is one row of planning_choice_audit.
type ChoiceAudit struct {
	ID                 string            `db:"id" json:"id"`
	Action             ChoiceAuditAction `db:"action" json:"action"`
	ChoiceID           int64             `db:"choice_id" json:"choice_id"`
	TargetTrigram      string            `db:"target_trigram" json:"target_trigram"`
	TargetDay          *time.Time        `db:"target_day" json:"target_day,omitempty"`
	TargetColumnNumber *int              `db:"target_column_number" json:"target_column_number,omitempty"`
	PlanningReference  string            `db:"planning_reference" json:"planning_reference"`
	TourNumber         int               `db:"tour_number" json:"tour_number"`
	Reason             *string           `db:"reason" json:"reason,omitempty"`
	Metadata           types.JSONText    `db:"metadata" json:"metadata,omitempty"`
	ActorID            string            `db:"actor_id" json:"actor_id"`
	ActorTrigram       string            `db:"actor_trigram" json:"actor_trigram"`
	ActorUsername      string            `db:"actor_username" json:"actor_username"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
}

// Actor identifies who triggered a planning mutation.
type Actor struct {
	ID       string
	Trigram  string
	Username string
}
