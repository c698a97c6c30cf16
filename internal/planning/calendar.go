package planning

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/Maelco1/reset/internal/models"
)

var weekdayLabels = [...]string{"Dimanche", "Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi"}

var monthNames = [...]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}

// Date returns a UTC midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day, keeping the calendar date.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Easter returns Easter Sunday of year (anonymous Gregorian algorithm).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return Date(year, time.Month(month), day)
}

// Holidays returns the French public holidays of year keyed by ISO day.
func Holidays(year int) map[string]string {
	holidays := map[string]string{
		Date(year, time.January, 1).Format(models.DayLayout):   "Jour de l'An",
		Date(year, time.May, 1).Format(models.DayLayout):       "Fête du Travail",
		Date(year, time.May, 8).Format(models.DayLayout):       "Victoire 1945",
		Date(year, time.July, 14).Format(models.DayLayout):     "Fête Nationale",
		Date(year, time.August, 15).Format(models.DayLayout):   "Assomption",
		Date(year, time.November, 1).Format(models.DayLayout):  "Toussaint",
		Date(year, time.November, 11).Format(models.DayLayout): "Armistice",
		Date(year, time.December, 25).Format(models.DayLayout): "Noël",
	}
	easter := Easter(year)
	holidays[easter.AddDate(0, 0, 1).Format(models.DayLayout)] = "Lundi de Pâques"
	holidays[easter.AddDate(0, 0, 39).Format(models.DayLayout)] = "Ascension"
	holidays[easter.AddDate(0, 0, 50).Format(models.DayLayout)] = "Lundi de Pentecôte"
	return holidays
}

// HolidayName returns the holiday falling on day, if any.
func HolidayName(day time.Time) (string, bool) {
	name, ok := Holidays(day.Year())[day.Format(models.DayLayout)]
	return name, ok
}

// Segment classifies a day. Holidays count as Sundays.
func Segment(day time.Time) models.DaySegment {
	if _, holiday := HolidayName(day); holiday || day.Weekday() == time.Sunday {
		return models.SegmentSunday
	}
	if day.Weekday() == time.Saturday {
		return models.SegmentSaturday
	}
	return models.SegmentWeekday
}

// DayLabel renders "Lundi 03 Juin 2024".
func DayLabel(day time.Time) string {
	return fmt.Sprintf("%s %02d %s %d", weekdayLabels[day.Weekday()], day.Day(), monthNames[day.Month()-1], day.Year())
}

// MonthDays enumerates every day of a month with a daily recurrence rule.
func MonthDays(year int, month time.Month) ([]time.Time, error) {
	first := Date(year, month, 1)
	last := first.AddDate(0, 1, -1)
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
	})
	if err != nil {
		return nil, fmt.Errorf("build month rule: %w", err)
	}
	return rule.All(), nil
}

// Window is the two-month planning period of a tour.
type Window struct {
	Tour     int
	Year     int
	MonthOne time.Month
	MonthTwo time.Month
}

// WindowFromSettings resolves stored settings, filling gaps from now. Stored months are 0-based.
func WindowFromSettings(settings *models.PlanningSettings, fallbackTour int, now time.Time) Window {
	w := Window{
		Tour:     SanitizeTour(fallbackTour, MinTour),
		Year:     now.Year(),
		MonthOne: now.Month(),
	}
	if settings != nil {
		w.Tour = SanitizeTour(settings.ActiveTour, w.Tour)
		if settings.PlanningYear != nil && *settings.PlanningYear > 0 {
			w.Year = *settings.PlanningYear
		}
		if settings.PlanningMonthOne != nil && *settings.PlanningMonthOne >= 0 && *settings.PlanningMonthOne <= 11 {
			w.MonthOne = time.Month(*settings.PlanningMonthOne + 1)
		}
	}
	w.MonthTwo = w.MonthOne%12 + 1
	if settings != nil && settings.PlanningMonthTwo != nil && *settings.PlanningMonthTwo >= 0 && *settings.PlanningMonthTwo <= 11 {
		w.MonthTwo = time.Month(*settings.PlanningMonthTwo + 1)
	}
	return w
}

// Reference renders the planning reference, e.g. tour1-2024-06-07.
func (w Window) Reference() string {
	return fmt.Sprintf("tour%d-%d-%02d-%02d", w.Tour, w.Year, int(w.MonthOne), int(w.MonthTwo))
}

// secondYear rolls the year over when the second month wraps into January.
func (w Window) secondYear() int {
	if w.MonthTwo < w.MonthOne {
		return w.Year + 1
	}
	return w.Year
}

// Contains reports whether day falls in one of the two months.
func (w Window) Contains(day time.Time) bool {
	return (day.Year() == w.Year && day.Month() == w.MonthOne) ||
		(day.Year() == w.secondYear() && day.Month() == w.MonthTwo)
}

// Days lists every day of both months in order.
func (w Window) Days() ([]time.Time, error) {
	first, err := MonthDays(w.Year, w.MonthOne)
	if err != nil {
		return nil, err
	}
	second, err := MonthDays(w.secondYear(), w.MonthTwo)
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}
