package utils

import (
	"fmt"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"
)

const DateLayout = "2006-01-02"

// ResetTime resets the time component based on the granularity specified.
// Pass "minute" to reset seconds to zero.
// Pass "hour" to reset minutes and seconds to zero.
// Pass "day" to get midnight UTC of the calendar day t falls on.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute)
	case "hour":
		return t.Truncate(time.Hour)
	case "day":
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	default:
		logger.WithField("granularity", granularity).Warn("invalid granularity, use minute, hour or day")
		return t
	}
}

// Date drops the clock part of t.
func Date(t time.Time) time.Time {
	return ResetTime(t, "day")
}

// Today is the current UTC calendar day.
func Today() time.Time {
	return Date(time.Now().UTC())
}

// AddDays moves the calendar day of t by n days.
func AddDays(t time.Time, n int) time.Time {
	return Date(t).AddDate(0, 0, n)
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Date(b).Sub(Date(a)).Hours() / 24))
}

// MaxDate returns the later of a and b.
func MaxDate(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// ParseDate parses a YYYY-MM-DD string as a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
