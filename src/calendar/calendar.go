package calendar

import (
	"time"
)

const (
	DaysPerWeek          = 7
	FirstWeekOffset      = 0
	SecondWeekOffset     = 1
	ThirdWeekOffset      = 2
	FourthWeekOffset     = 3
	JuneteenthFirstYear  = 2021
	maxBusinessDaySearch = 14
)

// IsBusinessDay reports whether US markets would normally be open on the
// calendar day of t.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !IsHoliday(t)
}

// NextBusinessDay returns the first business day on or after t, at midnight UTC.
func NextBusinessDay(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxBusinessDaySearch && !IsBusinessDay(day); i++ {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// IsHoliday reports whether t falls on a US federal holiday, using the
// observed date when the holiday lands on a weekend.
func IsHoliday(t time.Time) bool {
	return isDateAmong(t, holidays(t.Year()))
}

func holidays(year int) []time.Time {
	days := []time.Time{
		observed(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		calculateSpecificMonday(year, time.January, ThirdWeekOffset),
		calculateSpecificMonday(year, time.February, ThirdWeekOffset),
		lastMonday(year, time.May),
		observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		calculateSpecificMonday(year, time.September, FirstWeekOffset),
		calculateSpecificMonday(year, time.October, SecondWeekOffset),
		observed(time.Date(year, time.November, 11, 0, 0, 0, 0, time.UTC)),
		calculateSpecificThursday(year, time.November, FourthWeekOffset),
		observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}

	if year >= JuneteenthFirstYear {
		days = append(days, observed(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC)))
	}

	// New Year's Day of the following year is observed on Dec 31 when it is a Saturday.
	nextNewYear := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	if nextNewYear.Weekday() == time.Saturday {
		days = append(days, nextNewYear.AddDate(0, 0, -1))
	}

	return days
}

// observed shifts a fixed-date holiday off the weekend: Saturday to Friday, Sunday to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		if d.Month() == time.January && d.Day() == 1 {
			// observed in the previous year, see holidays
			return d
		}
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

func lastMonday(year int, month time.Month) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// calculateSpecificMonday calculates the specific Monday of a month (like the third Monday).
func calculateSpecificMonday(year int, month time.Month, mondayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Monday-firstOfMonth.Weekday()+DaysPerWeek) % DaysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+mondayOffset*DaysPerWeek)
}

// calculateSpecificThursday calculates the specific Thursday of a month (like the fourth Thursday).
func calculateSpecificThursday(year int, month time.Month, thursdayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Thursday-firstOfMonth.Weekday()+DaysPerWeek) % DaysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+thursdayOffset*DaysPerWeek)
}

// isDateAmong checks if the given date matches any date in the list.
func isDateAmong(t time.Time, dates []time.Time) bool {
	for _, d := range dates {
		if t.Format("2006-01-02") == d.Format("2006-01-02") {
			return true
		}
	}
	return false
}
