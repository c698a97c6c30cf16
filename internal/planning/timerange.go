package planning

import (
	"strconv"
	"strings"

	"github.com/Maelco1/reset/internal/models"
)

// TimeRange is a column's opening range in minutes since midnight. Nil bounds are unknown.
type TimeRange struct {
	Start *int
	End   *int
}

// ParseClock reads "HH:MM" (seconds ignored) into minutes.
func ParseClock(raw string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return hours*60 + minutes, true
}

// RangeOf extracts the time range of a column.
func RangeOf(col models.PlanningColumn) TimeRange {
	var r TimeRange
	if col.StartTime != nil {
		if v, ok := ParseClock(*col.StartTime); ok {
			r.Start = &v
		}
	}
	if col.EndTime != nil {
		if v, ok := ParseClock(*col.EndTime); ok {
			r.End = &v
		}
	}
	return r
}

// Complete reports whether both bounds are known.
func (r TimeRange) Complete() bool {
	return r.Start != nil && r.End != nil
}

// Overlaps is strict interval overlap; a missing bound never overlaps.
func (r TimeRange) Overlaps(other TimeRange) bool {
	if !r.Complete() || !other.Complete() {
		return false
	}
	return *r.Start < *other.End && *other.Start < *r.End
}
