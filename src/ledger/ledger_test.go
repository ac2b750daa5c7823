package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fururank/src/calendar"
	"fururank/src/model"
	"fururank/src/pricing"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

// pricedQuoter snaps to the next business day and prices each day at
// 100 + day of year.
type pricedQuoter struct {
	missing map[string]bool
	calls   int
}

func (q *pricedQuoter) Quote(_ context.Context, symbol string, date time.Time) (pricing.Quote, error) {
	q.calls++
	d := calendar.NextBusinessDay(date)
	if q.missing[d.Format("2006-01-02")] {
		return pricing.Quote{}, fmt.Errorf("%w: %s", pricing.ErrMissingHistory, symbol)
	}
	price := 100 + float64(d.YearDay())
	id := uint(9)
	return pricing.Quote{Date: d, Price: &price, TickerID: &id}, nil
}

// backwardQuoter always answers with a fixed date.
type backwardQuoter struct{ date time.Time }

func (q backwardQuoter) Quote(context.Context, string, time.Time) (pricing.Quote, error) {
	return pricing.Quote{Date: q.date}, nil
}

func testConfig() Config {
	return Config{SilenceDays: 45, ExitLagDays: 3, ToleranceDays: 10}
}

func requireLedgerInvariants(t *testing.T, furu *model.Furu) {
	t.Helper()
	bySymbol := map[string][]*model.Position{}
	for _, p := range furu.Positions {
		require.NoError(t, p.Validate())
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], p)
	}
	for symbol, positions := range bySymbol {
		open := 0
		for i, a := range positions {
			if a.IsOpen() {
				open++
			}
			for _, b := range positions[i+1:] {
				end := a.DateEntered.AddDate(100, 0, 0)
				if a.DateClosed != nil {
					end = *a.DateClosed
				}
				require.False(t, b.Intersects(a.DateEntered, end), "overlap in %s", symbol)
			}
		}
		require.LessOrEqual(t, open, 1, "open positions in %s", symbol)
	}
}

func TestApplySilenceScenario(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "scenario"}
	l := New(testConfig(), CalendarQuoter{})

	// days 1, 3, 40 and 100 counted from Monday 2021-03-01
	mentions := []time.Time{day("2021-06-08"), day("2021-03-01"), day("2021-03-03"), day("2021-04-09")}
	l.Apply(context.Background(), furu, "XYZ", mentions, day("2021-06-20"))

	require.Len(t, furu.Positions, 2)
	first, second := furu.Positions[0], furu.Positions[1]

	require.True(t, first.DateEntered.Equal(day("2021-03-01")))
	require.NotNil(t, first.DateClosed)
	require.True(t, first.DateClosed.Equal(day("2021-04-12")))
	require.True(t, first.DateLastMentioned.Equal(day("2021-04-09")))
	require.Nil(t, first.PriceEntered)

	require.True(t, second.DateEntered.Equal(day("2021-06-08")))
	require.True(t, second.IsOpen())
	requireLedgerInvariants(t, furu)
}

func TestApplyClosesOnFinalSilence(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "quiet"}
	l := New(testConfig(), CalendarQuoter{})

	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-03-01")}, day("2021-06-20"))

	require.Len(t, furu.Positions, 1)
	require.True(t, furu.Positions[0].DateClosed.Equal(day("2021-03-04")))
}

func TestApplyPricedPositions(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "priced"}
	l := New(testConfig(), &pricedQuoter{})

	// Saturday mention enters on Monday
	l.Apply(context.Background(), furu, "ABC", []time.Time{day("2021-03-06"), day("2021-03-10")}, day("2021-06-20"))

	require.Len(t, furu.Positions, 1)
	p := furu.Positions[0]
	require.True(t, p.DateEntered.Equal(day("2021-03-08")))
	require.Equal(t, 100+float64(day("2021-03-08").YearDay()), *p.PriceEntered)
	require.True(t, p.DateClosed.Equal(day("2021-03-15")))
	require.Equal(t, 100+float64(day("2021-03-15").YearDay()), *p.PriceClosed)
	require.Equal(t, uint(9), *p.TickerID)
	require.Equal(t, model.PositionClosed, p.State())
}

func TestApplyReusesCoveringPosition(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "repeat"}
	existing := &model.Position{Symbol: "XYZ", DateEntered: day("2021-03-01"), DateLastMentioned: day("2021-03-05")}
	furu.AddPosition(existing)

	l := New(testConfig(), CalendarQuoter{})
	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-03-10")}, day("2021-03-20"))

	require.Len(t, furu.Positions, 1)
	require.Same(t, existing, furu.Positions[0])
	require.True(t, existing.DateLastMentioned.Equal(day("2021-03-10")))
	require.True(t, existing.IsOpen())
}

func TestApplyMovesOpenPositionBack(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "late"}
	existing := &model.Position{Symbol: "XYZ", DateEntered: day("2021-03-10"), DateLastMentioned: day("2021-03-12")}
	furu.AddPosition(existing)

	l := New(testConfig(), CalendarQuoter{})
	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-03-02")}, day("2021-03-20"))

	require.Len(t, furu.Positions, 1)
	require.True(t, existing.DateEntered.Equal(day("2021-03-02")))
	require.True(t, existing.DateLastMentioned.Equal(day("2021-03-12")))
	requireLedgerInvariants(t, furu)
}

func TestApplyBackfillBeforeClosedPositionOpensSeparately(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "backfill"}
	closed := &model.Position{Symbol: "XYZ", DateEntered: day("2021-02-01"), DateClosed: ptr(day("2021-03-01")), DateLastMentioned: day("2021-02-20")}
	open := &model.Position{Symbol: "XYZ", DateEntered: day("2021-06-01"), DateLastMentioned: day("2021-06-05")}
	furu.AddPosition(closed)
	furu.AddPosition(open)

	l := New(testConfig(), CalendarQuoter{})
	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-01-15")}, day("2021-06-10"))

	requireLedgerInvariants(t, furu)
	require.Len(t, furu.Positions, 3)
	require.True(t, closed.DateEntered.Equal(day("2021-02-01")))
	require.True(t, open.DateEntered.Equal(day("2021-06-01")))
	require.True(t, open.IsOpen())

	backfilled := furu.Positions[2]
	require.True(t, backfilled.DateEntered.Equal(day("2021-01-15")))
	require.NotNil(t, backfilled.DateClosed)
	// 2021-01-18 is Martin Luther King Jr. Day
	require.True(t, backfilled.DateClosed.Equal(day("2021-01-19")))
}

func TestApplyBackfillBeyondSilenceOpensSeparately(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "stale"}
	open := &model.Position{Symbol: "XYZ", DateEntered: day("2021-06-01"), DateLastMentioned: day("2021-06-05")}
	furu.AddPosition(open)

	l := New(testConfig(), CalendarQuoter{})
	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-01-15")}, day("2021-06-10"))

	requireLedgerInvariants(t, furu)
	require.Len(t, furu.Positions, 2)
	require.True(t, open.DateEntered.Equal(day("2021-06-01")))
	require.True(t, open.IsOpen())
	require.False(t, furu.Positions[1].IsOpen())
	require.True(t, furu.Positions[1].DateClosed.Before(open.DateEntered))
}

func TestApplyBackfillFoldsIntoAdjacentPosition(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "adjacent"}
	closed := &model.Position{Symbol: "XYZ", DateEntered: day("2021-03-03"), DateClosed: ptr(day("2021-03-05")), DateLastMentioned: day("2021-03-03")}
	open := &model.Position{Symbol: "XYZ", DateEntered: day("2021-03-10"), DateLastMentioned: day("2021-03-12")}
	furu.AddPosition(closed)
	furu.AddPosition(open)

	l := New(testConfig(), CalendarQuoter{})
	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-03-01")}, day("2021-03-20"))

	requireLedgerInvariants(t, furu)
	require.Len(t, furu.Positions, 2)
	require.True(t, closed.DateEntered.Equal(day("2021-03-01")))
	require.True(t, closed.DateClosed.Equal(day("2021-03-05")))
	require.True(t, open.DateEntered.Equal(day("2021-03-10")))
	require.True(t, open.IsOpen())
}

func TestApplyRetriesFailedOpenOnNextMention(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "gaps"}
	quoter := &pricedQuoter{missing: map[string]bool{"2021-03-01": true}}
	l := New(testConfig(), quoter)

	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-03-01"), day("2021-03-03")}, day("2021-03-20"))

	require.Len(t, furu.Positions, 1)
	require.True(t, furu.Positions[0].DateEntered.Equal(day("2021-03-03")))
}

func TestApplyDropsPositionWhenCloseFails(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "unpriced"}
	quoter := &pricedQuoter{missing: map[string]bool{"2021-03-04": true}}
	l := New(testConfig(), quoter)

	l.Apply(context.Background(), furu, "XYZ", []time.Time{day("2021-03-01")}, day("2021-06-20"))

	require.Empty(t, furu.Positions)
}

func TestCloseBeforeEntry(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "backwards"}
	pos := &model.Position{Symbol: "XYZ", DateEntered: day("2021-03-10"), DateLastMentioned: day("2021-03-10")}
	furu.AddPosition(pos)

	l := New(testConfig(), backwardQuoter{date: day("2021-03-01")})
	err := l.Close(context.Background(), furu, pos, day("2021-03-05"))

	require.ErrorIs(t, err, ErrCloseBeforeEntry)
	require.True(t, pos.IsOpen())
}

func TestCloseMergesIntersectingPosition(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "merge"}
	a := &model.Position{ID: 1, Symbol: "XYZ", DateEntered: day("2021-01-01"), DateLastMentioned: day("2021-01-05")}
	b := &model.Position{ID: 2, Symbol: "XYZ", DateEntered: day("2021-01-10"), DateClosed: ptr(day("2021-01-20")), DateLastMentioned: day("2021-01-17")}
	furu.AddPosition(a)
	furu.AddPosition(b)

	l := New(testConfig(), CalendarQuoter{})
	require.NoError(t, l.Close(context.Background(), furu, a, day("2021-01-15")))

	require.Len(t, furu.Positions, 1)
	require.Same(t, a, furu.Positions[0])
	require.True(t, a.DateEntered.Equal(day("2021-01-01")))
	require.True(t, a.DateClosed.Equal(day("2021-01-20")))
	require.True(t, a.DateLastMentioned.Equal(day("2021-01-17")))
	require.Equal(t, []uint{2}, furu.RemovedPositionIDs())
}

func TestCloseMergeTakesPricesFromBoundSide(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "prices"}
	a := &model.Position{Symbol: "XYZ", DateEntered: day("2021-01-11"), DateLastMentioned: day("2021-01-11"), PriceEntered: ptr(5.0)}
	b := &model.Position{Symbol: "XYZ", DateEntered: day("2021-01-04"), DateClosed: ptr(day("2021-01-12")), DateLastMentioned: day("2021-01-08"), PriceEntered: ptr(4.0), PriceClosed: ptr(6.0)}
	furu.AddPosition(a)
	furu.AddPosition(b)

	l := New(testConfig(), &pricedQuoter{})
	require.NoError(t, l.Close(context.Background(), furu, a, day("2021-01-15")))

	require.Len(t, furu.Positions, 1)
	require.True(t, a.DateEntered.Equal(day("2021-01-04")))
	require.Equal(t, 4.0, *a.PriceEntered)
	require.True(t, a.DateClosed.Equal(day("2021-01-15")))
	require.Equal(t, 100+float64(day("2021-01-15").YearDay()), *a.PriceClosed)
}

func TestCloseKeepsEarliestOfSeveralOverlaps(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "dupes"}
	a := &model.Position{ID: 1, Symbol: "XYZ", DateEntered: day("2021-01-01"), DateLastMentioned: day("2021-01-01")}
	b := &model.Position{ID: 2, Symbol: "XYZ", DateEntered: day("2021-01-05"), DateClosed: ptr(day("2021-01-08")), DateLastMentioned: day("2021-01-05")}
	c := &model.Position{ID: 3, Symbol: "XYZ", DateEntered: day("2021-01-11"), DateClosed: ptr(day("2021-01-20")), DateLastMentioned: day("2021-01-11")}
	furu.AddPosition(c)
	furu.AddPosition(a)
	furu.AddPosition(b)

	l := New(testConfig(), CalendarQuoter{})
	require.NoError(t, l.Close(context.Background(), furu, a, day("2021-01-15")))

	require.Len(t, furu.Positions, 1)
	require.True(t, a.DateEntered.Equal(day("2021-01-01")))
	require.True(t, a.DateClosed.Equal(day("2021-01-15")))
	require.ElementsMatch(t, []uint{2, 3}, furu.RemovedPositionIDs())
	requireLedgerInvariants(t, furu)
}

func TestSweepSilenced(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "sweep"}
	stale := &model.Position{Symbol: "OLD", DateEntered: day("2021-03-10"), DateLastMentioned: day("2021-03-08")}
	fresh := &model.Position{Symbol: "NEW", DateEntered: day("2021-06-01"), DateLastMentioned: day("2021-06-15")}
	furu.AddPosition(stale)
	furu.AddPosition(fresh)

	l := New(testConfig(), CalendarQuoter{})
	closed := l.SweepSilenced(context.Background(), furu, day("2021-06-20"))

	require.Equal(t, 1, closed)
	// later of last mention and entry, plus the lag
	require.True(t, stale.DateClosed.Equal(day("2021-03-15")))
	require.True(t, fresh.IsOpen())
}

func TestSweepDropsUnpriceable(t *testing.T) {
	furu := &model.Furu{ID: 1, Handle: "sweep"}
	furu.AddPosition(&model.Position{ID: 5, Symbol: "OLD", DateEntered: day("2021-03-01"), DateLastMentioned: day("2021-03-01")})

	l := New(testConfig(), &pricedQuoter{missing: map[string]bool{"2021-03-04": true}})
	require.Zero(t, l.SweepSilenced(context.Background(), furu, day("2021-06-20")))
	require.Empty(t, furu.Positions)
	require.Equal(t, []uint{5}, furu.RemovedPositionIDs())
}

func TestApplyKeepsInvariantsOverManyTimelines(t *testing.T) {
	timelines := [][]string{
		{"2021-01-04", "2021-01-05", "2021-03-30", "2021-04-01", "2021-08-02"},
		{"2021-02-01", "2021-02-01", "2021-02-02"},
		{"2021-01-04", "2021-05-03", "2021-09-01", "2021-09-02", "2021-12-01"},
	}

	furu := &model.Furu{ID: 1, Handle: "many"}
	l := New(testConfig(), CalendarQuoter{})
	for _, timeline := range timelines {
		var dates []time.Time
		for _, s := range timeline {
			dates = append(dates, day(s))
		}
		l.Apply(context.Background(), furu, "XYZ", dates, day("2022-01-31"))
		requireLedgerInvariants(t, furu)
	}
	require.NotEmpty(t, furu.Positions)
}

func TestCalendarQuoterNeverPrices(t *testing.T) {
	q, err := CalendarQuoter{}.Quote(context.Background(), "XYZ", day("2021-07-03"))
	require.NoError(t, err)
	require.True(t, q.Date.Equal(day("2021-07-06")))
	require.Nil(t, q.Price)
	require.False(t, errors.Is(err, pricing.ErrMissingHistory))
}
