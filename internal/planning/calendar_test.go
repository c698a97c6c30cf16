package planning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/models"
)

func TestEaster(t *testing.T) {
	assert.Equal(t, Date(2024, time.March, 31), Easter(2024))
	assert.Equal(t, Date(2025, time.April, 20), Easter(2025))
}

func TestSegmentTreatsHolidaysAsSunday(t *testing.T) {
	assert.Equal(t, models.SegmentWeekday, Segment(Date(2024, time.June, 3)))
	assert.Equal(t, models.SegmentSaturday, Segment(Date(2024, time.June, 8)))
	assert.Equal(t, models.SegmentSunday, Segment(Date(2024, time.June, 9)))
	// Whit Monday 2024
	assert.Equal(t, models.SegmentSunday, Segment(Date(2024, time.May, 20)))
	assert.Equal(t, models.SegmentSunday, Segment(Date(2024, time.July, 14)))
}

func TestDayLabel(t *testing.T) {
	assert.Equal(t, "Lundi 03 Juin 2024", DayLabel(Date(2024, time.June, 3)))
}

func TestMonthDays(t *testing.T) {
	days, err := MonthDays(2024, time.February)
	require.NoError(t, err)
	require.Len(t, days, 29)
	assert.Equal(t, Date(2024, time.February, 1), days[0])
	assert.Equal(t, Date(2024, time.February, 29), days[28])
}

func TestWindowFromSettings(t *testing.T) {
	now := Date(2024, time.March, 15)

	w := WindowFromSettings(nil, 9, now)
	assert.Equal(t, 1, w.Tour)
	assert.Equal(t, "tour1-2024-03-04", w.Reference())

	year, one, two := 2024, 11, 0
	w = WindowFromSettings(&models.PlanningSettings{ActiveTour: 3, PlanningYear: &year, PlanningMonthOne: &one, PlanningMonthTwo: &two}, 1, now)
	assert.Equal(t, "tour3-2024-12-01", w.Reference())
	assert.True(t, w.Contains(Date(2024, time.December, 24)))
	assert.True(t, w.Contains(Date(2025, time.January, 2)))
	assert.False(t, w.Contains(Date(2024, time.January, 2)))

	days, err := w.Days()
	require.NoError(t, err)
	assert.Len(t, days, 62)
	assert.Equal(t, Date(2025, time.January, 31), days[len(days)-1])
}
