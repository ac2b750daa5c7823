package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fururank/src/model"
	"fururank/src/utils"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

var (
	// ErrMissingHistory means no bar exists in the requested window, even
	// after asking the provider.
	ErrMissingHistory = errors.New("missing price history")
	// ErrDataError means a bar was found but lacks an open or close.
	ErrDataError = errors.New("price bar lacks open or close")
)

// IngestLookbackDays is how far before a missed date ingestion starts.
const IngestLookbackDays = 10

// HistoryProvider returns daily bars of a symbol starting at start.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, start time.Time) ([]model.PriceBar, error)
}

// Index answers price lookups for one ticker. Its bars are kept sorted by
// date and are extended in place by ingestion; new bars have no ID until
// the ticker is saved.
type Index struct {
	ticker   *model.Ticker
	provider HistoryProvider
	now      func() time.Time
}

func NewIndex(ticker *model.Ticker, provider HistoryProvider) *Index {
	sort.SliceStable(ticker.Bars, func(i, j int) bool {
		return ticker.Bars[i].Date.Before(ticker.Bars[j].Date)
	})
	return &Index{ticker: ticker, provider: provider, now: time.Now}
}

// WithClock replaces the clock used to stamp ingested bars.
func (i *Index) WithClock(now func() time.Time) *Index {
	i.now = now
	return i
}

func (i *Index) Ticker() *model.Ticker {
	return i.ticker
}

// find returns the earliest bar dated within [date, date+tol].
func (i *Index) find(date time.Time, tol int) *model.PriceBar {
	bars := i.ticker.Bars
	k := sort.Search(len(bars), func(j int) bool {
		return !bars[j].Date.Before(date)
	})
	if k < len(bars) && !bars[k].Date.After(date.AddDate(0, 0, tol)) {
		return &bars[k]
	}
	return nil
}

// PriceOnOrAfter returns the first bar on or after date within tol days.
// A miss triggers one ingestion starting IngestLookbackDays before date.
func (i *Index) PriceOnOrAfter(ctx context.Context, date time.Time, tol int) (*model.PriceBar, error) {
	day := utils.Date(date)
	if bar := i.find(day, tol); bar != nil {
		return bar, nil
	}

	if i.provider == nil || !i.ticker.Status.IsActive() {
		return nil, fmt.Errorf("%w: %s on %s", ErrMissingHistory, i.ticker.Symbol, day.Format(utils.DateLayout))
	}

	if _, err := i.Ingest(ctx, day.AddDate(0, 0, -IngestLookbackDays)); err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrMissingHistory, i.ticker.Symbol, day.Format(utils.DateLayout), err)
	}

	if bar := i.find(day, tol); bar != nil {
		return bar, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrMissingHistory, i.ticker.Symbol, day.Format(utils.DateLayout))
}

// Ingest fetches bars from start and adds the unseen ones.
func (i *Index) Ingest(ctx context.Context, start time.Time) (int, error) {
	bars, err := i.provider.History(ctx, i.ticker.Symbol, start)
	if err != nil {
		return 0, err
	}
	added := i.Add(bars, i.now())

	logger.WithFields(map[string]interface{}{
		"symbol":  i.ticker.Symbol,
		"start":   start.Format(utils.DateLayout),
		"fetched": len(bars),
		"added":   added,
	}).Debug("Ingested price history")

	return added, nil
}

// Add clamps and appends bars for dates not yet known, keeps the bars
// sorted, and stamps the ticker's last update with today. Bars dated today
// or later are still forming and are not stored; a later ingestion picks
// them up once final.
func (i *Index) Add(bars []model.PriceBar, today time.Time) int {
	seen := make(map[time.Time]struct{}, len(i.ticker.Bars))
	for _, b := range i.ticker.Bars {
		seen[b.Date] = struct{}{}
	}

	cutoff := utils.Date(today)
	added := 0
	for _, b := range bars {
		b.ID = 0
		b.TickerID = i.ticker.ID
		b.Date = utils.Date(b.Date)
		if !b.Date.Before(cutoff) {
			continue
		}
		if _, ok := seen[b.Date]; ok {
			continue
		}
		b.Clamp()
		seen[b.Date] = struct{}{}
		i.ticker.Bars = append(i.ticker.Bars, b)
		added++
	}

	if added > 0 {
		sort.SliceStable(i.ticker.Bars, func(a, c int) bool {
			return i.ticker.Bars[a].Date.Before(i.ticker.Bars[c].Date)
		})
	}

	stamp := utils.Date(today)
	i.ticker.DateLastUpdated = &stamp
	return added
}

// Quote resolves the priced trading day on or after date and its midpoint.
func (i *Index) Quote(ctx context.Context, date time.Time, tol int) (Quote, error) {
	bar, err := i.PriceOnOrAfter(ctx, date, tol)
	if err != nil {
		return Quote{}, err
	}
	price, err := MidPrice(*bar)
	if err != nil {
		return Quote{}, fmt.Errorf("%s on %s: %w", i.ticker.Symbol, bar.Date.Format(utils.DateLayout), err)
	}

	q := Quote{Date: bar.Date, Price: &price}
	if i.ticker.ID != 0 {
		id := i.ticker.ID
		q.TickerID = &id
	}
	return q, nil
}

// MidPrice is the midpoint of a bar's open and close.
func MidPrice(bar model.PriceBar) (float64, error) {
	if !bar.HasOpenClose() {
		return 0, ErrDataError
	}
	mid := bar.Open.Decimal.Add(bar.Close.Decimal).Div(decimal.NewFromInt(2))
	return mid.InexactFloat64(), nil
}
