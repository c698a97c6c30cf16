package models

import "time"

// SlotQuality is the per-segment quality of a column. Mauvaise maps to normal duties.
type SlotQuality string

const (
	QualityNormal SlotQuality = "Mauvaise"
	QualityGood   SlotQuality = "Bonus"
)

// Nature returns the guard nature a quality prefers.
func (q SlotQuality) Nature() GuardNature {
	if q == QualityGood {
		return NatureGood
	}
	return NatureNormal
}

// ActivityCategory is the kind of work a column represents.
type ActivityCategory string

const (
	CategoryVisit          ActivityCategory = "Visite"
	CategoryConsultation   ActivityCategory = "Consultation"
	CategoryTeleconsulting ActivityCategory = "Téléconsultation"
)

// ActivityType is the lower-case form stored on requests.
func (c ActivityCategory) ActivityType() string {
	switch c {
	case CategoryConsultation:
		return "consultation"
	case CategoryTeleconsulting:
		return "téléconsultation"
	default:
		return "visite"
	}
}

// DaySegment splits the week for quality and opening lookups.
type DaySegment string

const (
	SegmentWeekday  DaySegment = "weekdays"
	SegmentSaturday DaySegment = "saturday"
	SegmentSunday   DaySegment = "sunday"
)

// PlanningColumn is one slot definition of a tour's grid.
type PlanningColumn struct {
	TourNumber           int              `db:"tour_number" json:"tour_number" yaml:"-"`
	Position             int              `db:"position" json:"position" yaml:"position"`
	Label                string           `db:"label" json:"label" yaml:"label"`
	TypeCode             string           `db:"type_code" json:"type_code" yaml:"type_code"`
	TypeCategory         ActivityCategory `db:"type_category" json:"type_category" yaml:"type_category"`
	StartTime            *string          `db:"start_time" json:"start_time,omitempty" yaml:"start_time"`
	EndTime              *string          `db:"end_time" json:"end_time,omitempty" yaml:"end_time"`
	Color                string           `db:"color" json:"color" yaml:"color"`
	QualityWeekdays      SlotQuality      `db:"quality_weekdays" json:"quality_weekdays" yaml:"quality_weekdays"`
	QualitySaturday      SlotQuality      `db:"quality_saturday" json:"quality_saturday" yaml:"quality_saturday"`
	QualitySunday        SlotQuality      `db:"quality_sunday" json:"quality_sunday" yaml:"quality_sunday"`
	OpenMauvaiseWeekdays bool             `db:"open_mauvaise_weekdays" json:"open_mauvaise_weekdays" yaml:"open_mauvaise_weekdays"`
	OpenMauvaiseSaturday bool             `db:"open_mauvaise_saturday" json:"open_mauvaise_saturday" yaml:"open_mauvaise_saturday"`
	OpenMauvaiseSunday   bool             `db:"open_mauvaise_sunday" json:"open_mauvaise_sunday" yaml:"open_mauvaise_sunday"`
	OpenBonusWeekdays    bool             `db:"open_bonus_weekdays" json:"open_bonus_weekdays" yaml:"open_bonus_weekdays"`
	OpenBonusSaturday    bool             `db:"open_bonus_saturday" json:"open_bonus_saturday" yaml:"open_bonus_saturday"`
	OpenBonusSunday      bool             `db:"open_bonus_sunday" json:"open_bonus_sunday" yaml:"open_bonus_sunday"`
}

// Quality returns the column quality for a segment.
func (c PlanningColumn) Quality(segment DaySegment) SlotQuality {
	switch segment {
	case SegmentSaturday:
		return c.QualitySaturday
	case SegmentSunday:
		return c.QualitySunday
	default:
		return c.QualityWeekdays
	}
}

// OpenFor reports whether the column accepts a nature on a segment.
func (c PlanningColumn) OpenFor(nature GuardNature, segment DaySegment) bool {
	if nature == NatureGood {
		switch segment {
		case SegmentSaturday:
			return c.OpenBonusSaturday
		case SegmentSunday:
			return c.OpenBonusSunday
		default:
			return c.OpenBonusWeekdays
		}
	}
	switch segment {
	case SegmentSaturday:
		return c.OpenMauvaiseSaturday
	case SegmentSunday:
		return c.OpenMauvaiseSunday
	default:
		return c.OpenMauvaiseWeekdays
	}
}

// PlanningSettings holds the administrative parameters. Months are stored 0-based.
type PlanningSettings struct {
	ID               int       `db:"id" json:"id"`
	ActiveTour       int       `db:"active_tour" json:"active_tour"`
	PlanningYear     *int      `db:"planning_year" json:"planning_year"`
	PlanningMonthOne *int      `db:"planning_month_one" json:"planning_month_one"`
	PlanningMonthTwo *int      `db:"planning_month_two" json:"planning_month_two"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
