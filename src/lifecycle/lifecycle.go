package lifecycle

import (
	"time"

	"fururank/src/model"
	"fururank/src/utils"

	logger "github.com/sirupsen/logrus"
)

// Policy is the failure hysteresis of one entity kind: MaxAttempts
// failures inside the trial window move it to Failed, and it returns to
// active once Cooldown days have passed since the latest failure.
type Policy struct {
	TrialWindowDays int
	MaxAttempts     int
	CooldownDays    int
	Failed          model.Status
}

func FuruPolicy() Policy {
	return Policy{TrialWindowDays: 3 * 7, MaxAttempts: 3, CooldownDays: 2 * 7, Failed: model.StatusError}
}

func TickerPolicy() Policy {
	return Policy{TrialWindowDays: 8 * 7, MaxAttempts: 3, CooldownDays: 12 * 7, Failed: model.StatusCancelled}
}

// EvaluateFailures returns the status after counting failures dated inside
// the trial window ending at now. A failed entity stays failed.
func (p Policy) EvaluateFailures(current model.Status, now time.Time, failures []time.Time) model.Status {
	if current == p.Failed {
		return current
	}

	from := utils.AddDays(now, -p.TrialWindowDays)
	recent := 0
	for _, f := range failures {
		if !utils.Date(f).Before(from) {
			recent++
		}
	}

	if recent >= p.MaxAttempts {
		return p.Failed
	}
	return current
}

// RegisterFailure appends a failure at now and evaluates the result.
func (p Policy) RegisterFailure(current model.Status, now time.Time, failures []time.Time) ([]time.Time, model.Status) {
	failures = append(failures, utils.Date(now))
	return failures, p.EvaluateFailures(current, now, failures)
}

// EvaluateReactivation returns active when a failed entity's most recent
// failure is at least the cooldown before now. Other states are returned
// unchanged.
func (p Policy) EvaluateReactivation(current model.Status, now time.Time, failures []time.Time) model.Status {
	if current != p.Failed {
		return current
	}
	if len(failures) == 0 {
		return model.StatusActive
	}

	latest := failures[0]
	for _, f := range failures[1:] {
		latest = utils.MaxDate(latest, f)
	}

	if utils.DaysBetween(latest, now) >= p.CooldownDays {
		return model.StatusActive
	}
	return current
}

// RecordFuruFailure stores a fetch failure on the furu and applies the
// furu policy. It returns the resulting status.
func RecordFuruFailure(p Policy, f *model.Furu, now time.Time, source string) model.Status {
	dates, next := p.RegisterFailure(f.Status, now, f.FailureDates())
	f.AddFailure(dates[len(dates)-1], source)
	if next != f.Status {
		logger.WithFields(map[string]interface{}{
			"handle":   f.Handle,
			"failures": len(f.Failures),
			"status":   next,
		}).Warn("Furu moved to error after repeated fetch failures")
	}
	f.Status = next
	return next
}

func RecordTickerFailure(p Policy, t *model.Ticker, now time.Time, source string) model.Status {
	dates, next := p.RegisterFailure(t.Status, now, t.FailureDates())
	t.AddFailure(dates[len(dates)-1], source)
	if next != t.Status {
		logger.WithFields(map[string]interface{}{
			"symbol":   t.Symbol,
			"failures": len(t.Failures),
			"status":   next,
		}).Warn("Ticker cancelled after repeated fetch failures")
	}
	t.Status = next
	return next
}

// ReactivateFuru reports whether the furu went back to active.
func ReactivateFuru(p Policy, f *model.Furu, now time.Time) bool {
	next := p.EvaluateReactivation(f.Status, now, f.FailureDates())
	if next == f.Status {
		return false
	}
	logger.WithField("handle", f.Handle).Info("Reactivating furu after cooldown")
	f.Status = next
	return true
}

func ReactivateTicker(p Policy, t *model.Ticker, now time.Time) bool {
	next := p.EvaluateReactivation(t.Status, now, t.FailureDates())
	if next == t.Status {
		return false
	}
	logger.WithField("symbol", t.Symbol).Info("Reactivating ticker after cooldown")
	t.Status = next
	return true
}
