package dto

import (
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
)

// UpdateSettingsRequest changes the active tour and planning months. Months are 0-based.
type UpdateSettingsRequest struct {
	ActiveTour       int  `json:"active_tour" validate:"required,min=1,max=6"`
	PlanningYear     *int `json:"planning_year" validate:"omitempty,min=2000,max=2100"`
	PlanningMonthOne *int `json:"planning_month_one" validate:"omitempty,min=0,max=11"`
	PlanningMonthTwo *int `json:"planning_month_two" validate:"omitempty,min=0,max=11"`
}

// SettingsResponse returns the stored settings with the resolved window.
type SettingsResponse struct {
	Settings  models.PlanningSettings `json:"settings"`
	Tour      int                     `json:"tour"`
	Year      int                     `json:"year"`
	MonthOne  int                     `json:"month_one"`
	MonthTwo  int                     `json:"month_two"`
	Reference string                  `json:"planning_reference"`
}

// UpdateColumnRequest edits one slot definition. Omitted fields keep their current value.
type UpdateColumnRequest struct {
	Tour                 int     `json:"tour" validate:"omitempty,min=1,max=6"`
	Label                *string `json:"label" validate:"omitempty,max=64"`
	TypeCode             *string `json:"type_code" validate:"omitempty,max=16"`
	TypeCategory         *string `json:"type_category"`
	StartTime            *string `json:"start_time"`
	EndTime              *string `json:"end_time"`
	Color                *string `json:"color"`
	QualityWeekdays      *string `json:"quality_weekdays"`
	QualitySaturday      *string `json:"quality_saturday"`
	QualitySunday        *string `json:"quality_sunday"`
	OpenMauvaiseWeekdays *bool   `json:"open_mauvaise_weekdays"`
	OpenMauvaiseSaturday *bool   `json:"open_mauvaise_saturday"`
	OpenMauvaiseSunday   *bool   `json:"open_mauvaise_sunday"`
	OpenBonusWeekdays    *bool   `json:"open_bonus_weekdays"`
	OpenBonusSaturday    *bool   `json:"open_bonus_saturday"`
	OpenBonusSunday      *bool   `json:"open_bonus_sunday"`
}

// CalendarCell is one column of a calendar day.
type CalendarCell struct {
	Position  int                `json:"position"`
	Label     string             `json:"label"`
	Quality   models.SlotQuality `json:"quality"`
	Preferred models.GuardNature `json:"preferred_nature"`
	OpenNorm  bool               `json:"open_normale"`
	OpenGood  bool               `json:"open_bonne"`
	Color     string             `json:"color"`
}

// CalendarDay is one row of the planning grid.
type CalendarDay struct {
	Date    string            `json:"date"`
	Label   string            `json:"label"`
	Segment models.DaySegment `json:"segment"`
	Holiday string            `json:"holiday,omitempty"`
	Cells   []CalendarCell    `json:"cells"`
}

// CalendarResponse is the planning grid of the active window.
type CalendarResponse struct {
	Reference string                  `json:"planning_reference"`
	Tour      int                     `json:"tour"`
	Columns   []models.PlanningColumn `json:"columns"`
	Days      []CalendarDay           `json:"days"`
}

// SelectionRequest designates a grid cell. Nature is optional and defaults to normale.
type SelectionRequest struct {
	Day      string `json:"day" validate:"required,datetime=2006-01-02"`
	Position int    `json:"position" validate:"required,min=1,max=46"`
	Nature   string `json:"nature"`
}

// SelectionRoleRequest sets a selection as principal or alternative.
type SelectionRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=principal alternative"`
}

// SelectionOrderRequest carries the presentation order of one nature after a drag.
type SelectionOrderRequest struct {
	Nature   string   `json:"nature"`
	SlotKeys []string `json:"slot_keys" validate:"required"`
}

// ActiveIndexRequest moves the choice cursor of a nature.
type ActiveIndexRequest struct {
	Nature string `json:"nature"`
	Index  int    `json:"index"`
}

// SelectionState is the normalized draft of a practitioner.
type SelectionState struct {
	Reference   string                     `json:"planning_reference"`
	Groups      []planning.Group           `json:"groups"`
	Selections  []planning.Selection       `json:"selections"`
	ActiveIndex map[models.GuardNature]int `json:"active_index"`
}

// SubmitResponse confirms a submission.
type SubmitResponse struct {
	Message   string `json:"message"`
	Submitted int    `json:"submitted"`
	Reference string `json:"planning_reference"`
}

// RequestBoardQuery filters the admin request board.
type RequestBoardQuery struct {
	Status       string `form:"status"`
	Day          string `form:"day"`
	ActivityType string `form:"activity_type"`
	Doctor       string `form:"doctor"`
	Column       string `form:"column"`
	UserType     string `form:"user_type"`
	Tour         int    `form:"tour"`
	Reference    string `form:"planning_reference"`
}

// RefuseRequest carries the optional refusal reason.
type RefuseRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// DecisionResponse describes the outcome of an acceptance or refusal.
type DecisionResponse struct {
	Choice   models.PlanningChoice `json:"choice"`
	Applied  []models.StateChange  `json:"applied"`
	Affected []int64               `json:"affected_ids"`
	Message  string                `json:"message"`
}

// AutoAssignmentRequest carries the run parameters.
type AutoAssignmentRequest struct {
	Populations  []string `json:"populations"`
	Order        string   `json:"order" validate:"omitempty,oneof=asc desc"`
	StartTrigram string   `json:"start_trigram"`
	Algorithm    string   `json:"algorithm"`
	Rotations    int      `json:"rotations"`
}

// Params converts the request into normalized algorithm parameters.
func (r AutoAssignmentRequest) Params() planning.AutoAssignmentParams {
	p := planning.DefaultParams()
	if len(r.Populations) > 0 {
		p.Populations = make([]models.UserType, 0, len(r.Populations))
		for _, pop := range r.Populations {
			p.Populations = append(p.Populations, models.ParseUserType(pop))
		}
	} else if r.Populations != nil {
		p.Populations = []models.UserType{}
	}
	if r.Order != "" {
		p.Order = r.Order
	}
	if r.Algorithm != "" {
		p.Algorithm = r.Algorithm
	}
	p.StartTrigram = r.StartTrigram
	if r.Rotations != 0 {
		p.Rotations = r.Rotations
	}
	return p.Normalize()
}

// StepwiseRequest asks for a fresh stepwise plan.
type StepwiseRequest struct {
	AutoAssignmentRequest
	NormalThreshold int     `json:"normal_threshold"`
	GoodQuota       int     `json:"good_quota"`
	Skipped         []int64 `json:"skipped"`
}

// Params converts the request into stepwise parameters.
func (r StepwiseRequest) Params() planning.StepwiseParams {
	return planning.StepwiseParams{
		AutoAssignmentParams: r.AutoAssignmentRequest.Params(),
		NormalThreshold:      r.NormalThreshold,
		GoodQuota:            r.GoodQuota,
		Skipped:              r.Skipped,
	}
}

// AcceptStepRequest validates one held stepwise offer.
type AcceptStepRequest struct {
	ChoiceID int64 `json:"choice_id" validate:"required,min=1"`
}

// AutoAssignmentPreview is the outcome of a dry run.
type AutoAssignmentPreview struct {
	Reference string                         `json:"planning_reference"`
	Tour      int                            `json:"tour"`
	Steps     []planning.AutoAssignmentStep  `json:"steps"`
	Summary   planning.AutoAssignmentSummary `json:"summary"`
	Feedback  string                         `json:"feedback"`
}

// AutoAssignmentApplyResponse is the outcome of an applied run.
type AutoAssignmentApplyResponse struct {
	AutoAssignmentPreview
	RunID   string `json:"run_id"`
	Changes int    `json:"changes"`
}

// UndoResponse reports the reverted run.
type UndoResponse struct {
	RunID    string `json:"run_id"`
	Restored int    `json:"restored"`
	Message  string `json:"message"`
}

// StepwisePlanResponse holds the offers of a stepwise plan.
type StepwisePlanResponse struct {
	Reference string               `json:"planning_reference"`
	Offers    []planning.StepOffer `json:"offers"`
}

// ExportRequest schedules an export of the active window.
type ExportRequest struct {
	Kind   string `json:"kind" validate:"omitempty,oneof=auto_assignment validated"`
	Format string `json:"format" validate:"omitempty,oneof=csv pdf"`
}

// ExportJobResponse describes an export job.
type ExportJobResponse struct {
	ID          string              `json:"id"`
	Kind        models.ExportKind   `json:"kind"`
	Status      models.ExportStatus `json:"status"`
	Progress    int                 `json:"progress"`
	Format      models.ExportFormat `json:"format"`
	DownloadURL *string             `json:"download_url,omitempty"`
	Error       *string             `json:"error,omitempty"`
}
