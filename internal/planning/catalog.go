// Package planning holds the pure on-call planning rules: slot catalog defaults, calendar
// segments, selection grouping, acceptance resolution and rotation auto-assignment.
// Nothing in here performs I/O.
package planning

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Maelco1/reset/internal/models"
)

const (
	// ColumnCount is the number of slot positions of a tour grid.
	ColumnCount = 46
	// DefaultColor is applied when a column colour is missing or malformed.
	DefaultColor = "#1e293b"
	// MinTour and MaxTour bound the planning tours.
	MinTour = 1
	MaxTour = 6
)

var defaultTypeCodes = map[int]string{
	1: "1N", 2: "2N", 3: "3N", 4: "4C", 5: "5S", 6: "6S",
	7: "VIS", 8: "VIS", 9: "VIS", 10: "VIS", 11: "VIS",
	12: "TC", 13: "C1COU", 14: "C2COU", 15: "C1BOU", 16: "C2BOU", 17: "PFG",
	18: "C1ANT", 19: "C2ANT", 20: "TC", 21: "N", 22: "C", 23: "S",
	24: "VIS", 25: "VIS", 26: "VIS", 27: "C1COU", 28: "C2COU", 29: "C1BOU",
	30: "C2BOU", 31: "PFG", 32: "C1ANT", 33: "C2ANT", 34: "TC", 35: "VIS",
	36: "PFG", 37: "VIS", 38: "VIS", 39: "VIS", 40: "VIS", 41: "VIS", 42: "VIS",
	43: "TCN", 44: "VIS", 45: "VIS", 46: "VIS",
}

var typeCategories = map[string]models.ActivityCategory{
	"1N": models.CategoryVisit, "2N": models.CategoryVisit, "3N": models.CategoryVisit,
	"4C": models.CategoryVisit, "5S": models.CategoryVisit, "6S": models.CategoryVisit,
	"N": models.CategoryVisit, "C": models.CategoryVisit, "S": models.CategoryVisit,
	"VIS": models.CategoryVisit,
	"C1COU": models.CategoryConsultation, "C2COU": models.CategoryConsultation,
	"C1BOU": models.CategoryConsultation, "C2BOU": models.CategoryConsultation,
	"PFG": models.CategoryConsultation, "C1ANT": models.CategoryConsultation,
	"C2ANT": models.CategoryConsultation, "C1": models.CategoryConsultation,
	"C2": models.CategoryConsultation, "C3": models.CategoryConsultation,
	"TC": models.CategoryTeleconsulting, "TCN": models.CategoryTeleconsulting,
}

var (
	longHex  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	shortHex = regexp.MustCompile(`^#[0-9a-fA-F]{3}$`)
)

// InferCategory maps a type code to its activity category, Visite when unknown.
func InferCategory(typeCode string) models.ActivityCategory {
	if category, ok := typeCategories[strings.ToUpper(strings.TrimSpace(typeCode))]; ok {
		return category
	}
	return models.CategoryVisit
}

// SanitizeColor returns a lower-case #rrggbb colour, expanding #rgb. Anything else yields DefaultColor.
func SanitizeColor(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch {
	case longHex.MatchString(trimmed):
		return strings.ToLower(trimmed)
	case shortHex.MatchString(trimmed):
		var b strings.Builder
		b.WriteByte('#')
		for _, ch := range trimmed[1:] {
			b.WriteRune(ch)
			b.WriteRune(ch)
		}
		return strings.ToLower(b.String())
	default:
		return DefaultColor
	}
}

// SanitizeQuality keeps Bonus and maps everything else to Mauvaise.
func SanitizeQuality(q models.SlotQuality) models.SlotQuality {
	if q == models.QualityGood {
		return q
	}
	return models.QualityNormal
}

// SanitizeTour returns tour when it is within bounds, fallback otherwise.
func SanitizeTour(tour, fallback int) int {
	if tour < MinTour || tour > MaxTour {
		return fallback
	}
	return tour
}

// DefaultColumn builds the factory definition of a position.
func DefaultColumn(tour, position int) models.PlanningColumn {
	code, ok := defaultTypeCodes[position]
	if !ok {
		code = fmt.Sprintf("COL%02d", position)
	}
	return models.PlanningColumn{
		TourNumber:           tour,
		Position:             position,
		Label:                code,
		TypeCode:             code,
		TypeCategory:         InferCategory(code),
		Color:                DefaultColor,
		QualityWeekdays:      models.QualityNormal,
		QualitySaturday:      models.QualityNormal,
		QualitySunday:        models.QualityNormal,
		OpenMauvaiseWeekdays: true,
		OpenMauvaiseSaturday: true,
		OpenMauvaiseSunday:   true,
		OpenBonusWeekdays:    true,
		OpenBonusSaturday:    true,
		OpenBonusSunday:      true,
	}
}

// NormalizeColumn repairs a stored or imported definition in place of rejecting it.
func NormalizeColumn(col models.PlanningColumn) models.PlanningColumn {
	col.TypeCode = strings.TrimSpace(col.TypeCode)
	if col.TypeCode == "" {
		col.TypeCode = DefaultColumn(col.TourNumber, col.Position).TypeCode
	}
	col.Label = strings.TrimSpace(col.Label)
	if col.Label == "" {
		col.Label = fmt.Sprintf("Colonne %d", col.Position)
	}
	switch col.TypeCategory {
	case models.CategoryVisit, models.CategoryConsultation, models.CategoryTeleconsulting:
	default:
		col.TypeCategory = InferCategory(col.TypeCode)
	}
	col.Color = SanitizeColor(col.Color)
	col.QualityWeekdays = SanitizeQuality(col.QualityWeekdays)
	col.QualitySaturday = SanitizeQuality(col.QualitySaturday)
	col.QualitySunday = SanitizeQuality(col.QualitySunday)
	col.StartTime = trimOptional(col.StartTime)
	col.EndTime = trimOptional(col.EndTime)
	return col
}

// MissingColumns returns factory definitions for the positions absent from existing.
func MissingColumns(tour int, existing []models.PlanningColumn) []models.PlanningColumn {
	present := make(map[int]struct{}, len(existing))
	for _, col := range existing {
		present[col.Position] = struct{}{}
	}
	missing := make([]models.PlanningColumn, 0)
	for position := 1; position <= ColumnCount; position++ {
		if _, ok := present[position]; !ok {
			missing = append(missing, DefaultColumn(tour, position))
		}
	}
	return missing
}

// ColumnIndex looks columns up by position.
type ColumnIndex map[int]models.PlanningColumn

// IndexColumns builds a ColumnIndex, normalizing every entry.
func IndexColumns(columns []models.PlanningColumn) ColumnIndex {
	idx := make(ColumnIndex, len(columns))
	for _, col := range columns {
		idx[col.Position] = NormalizeColumn(col)
	}
	return idx
}

// Sorted returns the columns ordered by position.
func (idx ColumnIndex) Sorted() []models.PlanningColumn {
	out := make([]models.PlanningColumn, 0, len(idx))
	for _, col := range idx {
		out = append(out, col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Range returns the time range of a column, nil bounds when unknown.
func (idx ColumnIndex) Range(position int) TimeRange {
	col, ok := idx[position]
	if !ok {
		return TimeRange{}
	}
	return RangeOf(col)
}

// IsSlotOpen applies the opening rules. A nil override accepts either nature, otherwise the
// override nature's flag decides.
func IsSlotOpen(col models.PlanningColumn, segment models.DaySegment, override *models.GuardNature) bool {
	if override == nil {
		return col.OpenFor(models.NatureNormal, segment) || col.OpenFor(models.NatureGood, segment)
	}
	return col.OpenFor(*override, segment)
}

// PreferredNature is the nature matching the column quality on a segment.
func PreferredNature(col models.PlanningColumn, segment models.DaySegment) models.GuardNature {
	return SanitizeQuality(col.Quality(segment)).Nature()
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
