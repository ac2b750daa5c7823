package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fururank/src/calendar"
	"fururank/src/model"
	"fururank/src/pricing"
	"fururank/src/utils"

	logger "github.com/sirupsen/logrus"
)

var (
	// ErrCloseBeforeEntry means no trading day on or after entry could be
	// found for a close, even after pushing the close a week later.
	ErrCloseBeforeEntry = errors.New("close date before entry date")
	// ErrAmbiguousOverlap flags more than one position overlapping a close.
	// It is logged, never returned.
	ErrAmbiguousOverlap = errors.New("more than one overlapping position")
)

// closeRetryDays pushes a close that resolved before entry one week later.
const closeRetryDays = 7

// Config holds the timeline parameters. It is passed by value and never
// mutated.
type Config struct {
	SilenceDays   int
	ExitLagDays   int
	ToleranceDays int
}

func DefaultConfig() Config {
	return Config{SilenceDays: 45, ExitLagDays: 3, ToleranceDays: 10}
}

// Quoter resolves the trading day used for an entry or exit on or after
// date, and its price when one is known.
type Quoter interface {
	Quote(ctx context.Context, symbol string, date time.Time) (pricing.Quote, error)
}

// CalendarQuoter snaps dates to the next US business day without pricing
// them. Raw positions built this way are priced later.
type CalendarQuoter struct{}

func (CalendarQuoter) Quote(_ context.Context, _ string, date time.Time) (pricing.Quote, error) {
	return pricing.Quote{Date: calendar.NextBusinessDay(date)}, nil
}

// Ledger turns mention timelines into positions on a furu aggregate. It
// only touches the furu it is given, so one ledger may serve concurrent
// workers as long as its Quoter is safe for that.
type Ledger struct {
	cfg    Config
	quoter Quoter
}

func New(cfg Config, quoter Quoter) *Ledger {
	return &Ledger{cfg: cfg, quoter: quoter}
}

func (l *Ledger) Config() Config {
	return l.cfg
}

func (l *Ledger) log(furu *model.Furu, symbol string) *logger.Entry {
	return logger.WithFields(map[string]interface{}{
		"component": "ledger",
		"handle":    furu.Handle,
		"symbol":    symbol,
	})
}

// Apply processes the mention dates of one symbol in ascending order:
// open on the first mention, extend while mentions keep coming, close at
// the last mention plus the exit lag once a gap exceeds the silence window
// and reopen on the next mention. It finishes with the silence check
// against today.
//
// Price failures drop the affected position; a failed open is retried on
// the following mention.
func (l *Ledger) Apply(ctx context.Context, furu *model.Furu, symbol string, mentions []time.Time, today time.Time) {
	if len(mentions) == 0 {
		return
	}

	dates := make([]time.Time, len(mentions))
	for i, m := range mentions {
		dates[i] = utils.Date(m)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	log := l.log(furu, symbol)

	var pos *model.Position
	for _, d := range dates {
		if pos != nil && !pos.IsOpen() && d.After(*pos.DateClosed) {
			pos = nil
		}

		// A backfilled position must end before the next position of the
		// pair once the timeline reaches it.
		if pos != nil && pos.IsOpen() {
			if next := nextOf(furu, pos); next != nil && !d.Before(next.DateEntered) {
				if err := l.settleBefore(ctx, furu, pos, next); err != nil {
					log.WithError(err).Warn("Dropping position that could not be closed")
					furu.RemovePosition(pos)
				}
				pos = nil
			}
		}

		if pos != nil && utils.DaysBetween(pos.DateLastMentioned, d) > l.cfg.SilenceDays {
			candidate := utils.AddDays(pos.DateLastMentioned, l.cfg.ExitLagDays)
			if err := l.Close(ctx, furu, pos, candidate); err != nil {
				log.WithError(err).Warn("Dropping position that could not be closed")
				furu.RemovePosition(pos)
			}
			pos = nil
		}

		if pos == nil {
			opened, err := l.openOrGet(ctx, furu, symbol, d)
			if err != nil {
				log.WithError(err).WithField("mention", d.Format(utils.DateLayout)).Warn("Could not open position")
				continue
			}
			pos = opened
		}

		if d.After(pos.DateLastMentioned) {
			pos.DateLastMentioned = d
		}
	}

	if pos == nil || !pos.IsOpen() {
		return
	}
	if next := nextOf(furu, pos); next != nil {
		if err := l.settleBefore(ctx, furu, pos, next); err != nil {
			log.WithError(err).Warn("Dropping position that could not be closed")
			furu.RemovePosition(pos)
		}
		return
	}
	if utils.DaysBetween(pos.DateLastMentioned, today) > l.cfg.SilenceDays {
		candidate := utils.AddDays(pos.DateLastMentioned, l.cfg.ExitLagDays)
		if err := l.Close(ctx, furu, pos, candidate); err != nil {
			log.WithError(err).Warn("Dropping position that could not be closed")
			furu.RemovePosition(pos)
		}
	}
}

// nextOf returns the earliest position of the pair entered after pos.
func nextOf(furu *model.Furu, pos *model.Position) *model.Position {
	var next *model.Position
	for _, p := range furu.PositionsFor(pos.Symbol) {
		if p == pos || !p.DateEntered.After(pos.DateEntered) {
			continue
		}
		if next == nil || p.DateEntered.Before(next.DateEntered) {
			next = p
		}
	}
	return next
}

// settleBefore closes the open position pos at its last mention plus the
// exit lag. When that close would reach next, pos is folded into next
// instead, which then starts at pos's entry.
func (l *Ledger) settleBefore(ctx context.Context, furu *model.Furu, pos, next *model.Position) error {
	candidate := utils.AddDays(pos.DateLastMentioned, l.cfg.ExitLagDays)
	q, err := l.quoter.Quote(ctx, pos.Symbol, candidate)
	if err != nil {
		return fmt.Errorf("close %s: %w", pos.Symbol, err)
	}
	if q.Date.Before(next.DateEntered) {
		return l.Close(ctx, furu, pos, candidate)
	}

	next.DateEntered = pos.DateEntered
	next.PriceEntered = pos.PriceEntered
	if pos.DateLastMentioned.After(next.DateLastMentioned) {
		next.DateLastMentioned = pos.DateLastMentioned
	}
	if next.TickerID == nil {
		next.TickerID = pos.TickerID
	}
	furu.RemovePosition(pos)
	return nil
}

// SweepSilenced closes every open position whose last mention is more than
// the silence window before today. It returns how many were closed.
func (l *Ledger) SweepSilenced(ctx context.Context, furu *model.Furu, today time.Time) int {
	var silenced []*model.Position
	for _, p := range furu.Positions {
		if p.IsOpen() && utils.DaysBetween(p.DateLastMentioned, today) > l.cfg.SilenceDays {
			silenced = append(silenced, p)
		}
	}

	closed := 0
	for _, p := range silenced {
		if !p.IsOpen() {
			// closed by an earlier merge in this sweep
			continue
		}
		candidate := utils.AddDays(utils.MaxDate(p.DateLastMentioned, p.DateEntered), l.cfg.ExitLagDays)
		if err := l.Close(ctx, furu, p, candidate); err != nil {
			l.log(furu, p.Symbol).WithError(err).Warn("Dropping silenced position that could not be closed")
			furu.RemovePosition(p)
			continue
		}
		closed++
	}

	if len(silenced) > 0 {
		l.log(furu, "").WithFields(map[string]interface{}{
			"silenced": len(silenced),
			"closed":   closed,
		}).Info("Closed silenced positions")
	}
	return closed
}

// openOrGet returns the position of the pair covering the entry day of
// mention, creating one when none exists.
func (l *Ledger) openOrGet(ctx context.Context, furu *model.Furu, symbol string, mention time.Time) (*model.Position, error) {
	q, err := l.quoter.Quote(ctx, symbol, mention)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}

	var covering []*model.Position
	var open *model.Position
	for _, p := range furu.PositionsFor(symbol) {
		if p.Contains(q.Date) {
			covering = append(covering, p)
		}
		if p.IsOpen() {
			open = p
		}
	}

	if len(covering) > 0 {
		return l.keepEarliest(furu, symbol, covering), nil
	}

	// An open position starting shortly after this entry is moved back,
	// provided nothing else of the pair lies in between.
	if open != nil && l.canMoveBack(furu, open, q.Date, mention) {
		open.DateEntered = q.Date
		open.PriceEntered = q.Price
		if q.TickerID != nil {
			open.TickerID = q.TickerID
		}
		return open, nil
	}

	pos := &model.Position{
		Symbol:            symbol,
		TickerID:          q.TickerID,
		DateEntered:       q.Date,
		DateLastMentioned: mention,
		PriceEntered:      q.Price,
	}
	furu.AddPosition(pos)
	return pos, nil
}

func (l *Ledger) canMoveBack(furu *model.Furu, open *model.Position, entry, mention time.Time) bool {
	if !open.DateEntered.After(entry) {
		return false
	}
	if utils.DaysBetween(mention, open.DateEntered) > l.cfg.SilenceDays {
		return false
	}
	for _, p := range furu.PositionsFor(open.Symbol) {
		if p != open && p.Intersects(entry, open.DateEntered) {
			return false
		}
	}
	return true
}

// Close closes pos at the trading day on or after candidate, merging it
// with any other position of the pair that overlaps the resulting window.
func (l *Ledger) Close(ctx context.Context, furu *model.Furu, pos *model.Position, candidate time.Time) error {
	q, err := l.quoter.Quote(ctx, pos.Symbol, candidate)
	if err != nil {
		return fmt.Errorf("close %s: %w", pos.Symbol, err)
	}
	if q.Date.Before(pos.DateEntered) {
		q, err = l.quoter.Quote(ctx, pos.Symbol, candidate.AddDate(0, 0, closeRetryDays))
		if err != nil {
			return fmt.Errorf("close %s: %w", pos.Symbol, err)
		}
		if q.Date.Before(pos.DateEntered) {
			return fmt.Errorf("%w: %s entered %s, close %s", ErrCloseBeforeEntry, pos.Symbol,
				pos.DateEntered.Format(utils.DateLayout), q.Date.Format(utils.DateLayout))
		}
	}

	var overlapping []*model.Position
	for _, other := range furu.PositionsFor(pos.Symbol) {
		if other != pos && other.Intersects(pos.DateEntered, q.Date) {
			overlapping = append(overlapping, other)
		}
	}

	if len(overlapping) == 0 {
		closeDate := q.Date
		pos.DateClosed = &closeDate
		pos.PriceClosed = q.Price
		if pos.TickerID == nil {
			pos.TickerID = q.TickerID
		}
		return nil
	}

	other := l.keepEarliest(furu, pos.Symbol, overlapping)
	merge(furu, pos, other, q)
	return nil
}

// keepEarliest returns the earliest-entered of candidates and removes the
// rest from the furu.
func (l *Ledger) keepEarliest(furu *model.Furu, symbol string, candidates []*model.Position) *model.Position {
	if len(candidates) == 1 {
		return candidates[0]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DateEntered.Before(candidates[j].DateEntered)
	})
	l.log(furu, symbol).WithError(ErrAmbiguousOverlap).
		WithField("count", len(candidates)).
		Warn("Keeping earliest overlapping position and removing the rest")

	for _, p := range candidates[1:] {
		furu.RemovePosition(p)
	}
	return candidates[0]
}

// merge folds other into pos, which closes at q unless other closes later.
func merge(furu *model.Furu, pos, other *model.Position, q pricing.Quote) {
	if other.DateEntered.Before(pos.DateEntered) {
		pos.DateEntered = other.DateEntered
		pos.PriceEntered = other.PriceEntered
	} else if pos.PriceEntered == nil && other.DateEntered.Equal(pos.DateEntered) {
		pos.PriceEntered = other.PriceEntered
	}

	closeDate, closePrice := q.Date, q.Price
	if other.DateClosed != nil {
		switch {
		case other.DateClosed.After(closeDate):
			closeDate, closePrice = *other.DateClosed, other.PriceClosed
		case other.DateClosed.Equal(closeDate) && closePrice == nil:
			closePrice = other.PriceClosed
		}
	}
	pos.DateClosed = &closeDate
	pos.PriceClosed = closePrice

	if other.DateLastMentioned.After(pos.DateLastMentioned) {
		pos.DateLastMentioned = other.DateLastMentioned
	}
	if pos.TickerID == nil {
		pos.TickerID = other.TickerID
	}
	if pos.TickerID == nil {
		pos.TickerID = q.TickerID
	}

	furu.RemovePosition(other)
}
