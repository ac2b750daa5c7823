package tracker

import (
	"errors"
	"fmt"
	"time"

	"fururank/src/mentions"
	"fururank/src/model"
)

var (
	ErrTooYoung     = errors.New("account too young")
	ErrInactive     = errors.New("tweet activity out of range")
	ErrNotVaried    = errors.New("ticker variety out of range")
	errNoAccountAge = errors.New("account creation date unknown")
)

const (
	daysPerMonth = 30.5
	hoursPerDay  = 24
)

// ValidationRules decide whether a discovered account is worth tracking.
// Activity bounds scale with the account age in months.
type ValidationRules struct {
	MinMonthsOld       float64
	MinTweetsPerMonth  float64
	MaxTweetsPerMonth  float64
	MinTickersPerMonth float64
	MaxTickersPerMonth float64
}

// AgeInMonths counts whole days since created, in 30.5-day months.
func AgeInMonths(created, now time.Time) float64 {
	days := float64(int(now.Sub(created).Hours() / hoursPerDay))
	return days / daysPerMonth
}

// Validate checks an account's age, its tweet count and the number of
// distinct tickers it tagged against the rules.
func (r ValidationRules) Validate(created time.Time, tweets []model.Tweet, now time.Time) error {
	if created.IsZero() {
		return errNoAccountAge
	}

	months := AgeInMonths(created, now)
	if months <= r.MinMonthsOld {
		return fmt.Errorf("%w: %.1f months", ErrTooYoung, months)
	}

	n := float64(len(tweets))
	if n < r.MinTweetsPerMonth*months || n > r.MaxTweetsPerMonth*months {
		return fmt.Errorf("%w: %d tweets in %.1f months", ErrInactive, len(tweets), months)
	}

	tickers := float64(mentions.DistinctSymbols(tweets))
	if tickers < r.MinTickersPerMonth*months || tickers > r.MaxTickersPerMonth*months {
		return fmt.Errorf("%w: %d tickers in %.1f months", ErrNotVaried, int(tickers), months)
	}

	return nil
}
