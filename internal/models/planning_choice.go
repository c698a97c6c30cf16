package models

import (
	"fmt"
	"strings"
	"time"
)

// GuardNature distinguishes normal duties from the sought-after good ones.
type GuardNature string

const (
	NatureNormal GuardNature = "normale"
	NatureGood   GuardNature = "bonne"
)

// Natures lists guard natures in their declared order.
var Natures = []GuardNature{NatureNormal, NatureGood}

// ParseGuardNature accepts the historical aliases (mauvaise, bonus) and defaults to normal.
func ParseGuardNature(raw string) GuardNature {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bonne", "bonus", "good":
		return NatureGood
	default:
		return NatureNormal
	}
}

// ChoiceStatus is the persisted "etat" of a request.
type ChoiceStatus string

const (
	StatusPending   ChoiceStatus = "en attente"
	StatusValidated ChoiceStatus = "validé"
	StatusRefused   ChoiceStatus = "refusé"
)

// ParseChoiceStatus maps loose spellings onto a status. Unknown values report false.
func ParseChoiceStatus(raw string) (ChoiceStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "en attente", "pending", "attente":
		return StatusPending, true
	case "validé", "valide", "validated", "accepted":
		return StatusValidated, true
	case "refusé", "refuse", "refused", "rejected":
		return StatusRefused, true
	default:
		return "", false
	}
}

// UserType is the practitioner population.
type UserType string

const (
	UserTypeDoctor     UserType = "medecin"
	UserTypeSubstitute UserType = "remplacant"
)

// ParseUserType normalizes a role into a population, defaulting to medecin.
func ParseUserType(raw string) UserType {
	if strings.EqualFold(strings.TrimSpace(raw), string(UserTypeSubstitute)) {
		return UserTypeSubstitute
	}
	return UserTypeDoctor
}

// DayLayout is the calendar day format used in slot keys and payloads.
const DayLayout = "2006-01-02"

// SlotKey identifies one cell of the planning grid.
func SlotKey(day time.Time, position int) string {
	return fmt.Sprintf("%s:%d", day.Format(DayLayout), position)
}

// PlanningChoice is a submitted request stored in planning_choices.
type PlanningChoice struct {
	ID                int64        `db:"id" json:"id"`
	UserID            string       `db:"user_id" json:"user_id"`
	Trigram           string       `db:"trigram" json:"trigram"`
	UserType          UserType     `db:"user_type" json:"user_type"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	Day               time.Time    `db:"day" json:"day"`
	Month             int          `db:"month" json:"month"`
	Year              int          `db:"year" json:"year"`
	ColumnNumber      int          `db:"column_number" json:"column_number"`
	ColumnLabel       string       `db:"column_label" json:"column_label"`
	PlanningDayLabel  string       `db:"planning_day_label" json:"planning_day_label"`
	SlotTypeCode      string       `db:"slot_type_code" json:"slot_type_code"`
	GuardNature       GuardNature  `db:"guard_nature" json:"guard_nature"`
	ActivityType      string       `db:"activity_type" json:"activity_type"`
	ChoiceOrder       *int         `db:"choice_order" json:"choice_order"`
	ChoiceIndex       *int         `db:"choice_index" json:"choice_index"`
	ChoiceRank        *int         `db:"choice_rank" json:"choice_rank"`
	Status            ChoiceStatus `db:"etat" json:"etat"`
	IsActive          bool         `db:"is_active" json:"is_active"`
	PlanningReference string       `db:"planning_reference" json:"planning_reference"`
	TourNumber        int          `db:"tour_number" json:"tour_number"`
}

// DayKey returns the ISO calendar day.
func (c PlanningChoice) DayKey() string {
	return c.Day.Format(DayLayout)
}

// SlotKey returns the grid cell of the request.
func (c PlanningChoice) SlotKey() string {
	return SlotKey(c.Day, c.ColumnNumber)
}

// ChoiceFilter narrows the admin request board.
type ChoiceFilter struct {
	PlanningReference string
	TourNumber        int
	Status            *ChoiceStatus
	Day               *time.Time
	ActivityType      string
	Doctor            string
	Column            string
	UserType          *UserType
	Trigram           string
	IncludeInactive   bool
}

// ChoiceScope identifies one submission batch.
type ChoiceScope struct {
	PlanningReference string
	TourNumber        int
	Trigram           string
}

// IntPtr is a small helper for optional integer columns.
func IntPtr(v int) *int {
	return &v
}
