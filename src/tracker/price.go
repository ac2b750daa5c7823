package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fururank/src/batch"
	"fururank/src/connectors"
	"fururank/src/lifecycle"
	"fururank/src/model"
	"fururank/src/pricing"
	"fururank/src/repository"
	"fururank/src/utils"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// priceJob is the unit of the pricing pass: one symbol, its ticker and the
// positions waiting for a price.
type priceJob struct {
	symbol    string
	ticker    *model.Ticker
	positions []*model.Position
	bars      []model.PriceBar
	fetchErr  error
	filled    int
}

// PricePending fills missing entry and close prices from daily bars. It
// first reactivates cancelled tickers whose cooldown has passed.
func (t *Tracker) PricePending(ctx context.Context) (Summary, error) {
	sum := Summary{Pass: "price"}

	reactivated, err := t.reactivateTickers(ctx)
	if err != nil {
		return sum, err
	}
	sum.Reactivated = reactivated

	today := t.today()
	pending, err := t.positions().PricePending(ctx, today)
	if err != nil {
		return sum, fmt.Errorf("list pending positions: %w", err)
	}

	cancelled, err := t.tickers().SymbolsByStatus(ctx, model.StatusCancelled)
	if err != nil {
		return sum, fmt.Errorf("list cancelled tickers: %w", err)
	}
	skip := make(map[string]struct{}, len(cancelled))
	for _, s := range cancelled {
		skip[s] = struct{}{}
	}

	bySymbol := map[string][]*model.Position{}
	var tooLong []uint
	start := today
	for _, p := range pending {
		if len(p.Symbol) > t.cfg.MaxSymbolLength {
			tooLong = append(tooLong, p.ID)
			continue
		}
		if _, ok := skip[p.Symbol]; ok {
			continue
		}
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], p)
		if p.DateEntered.Before(start) {
			start = p.DateEntered
		}
	}

	if len(tooLong) > 0 {
		if err := t.positions().DeleteByIDs(ctx, tooLong); err != nil {
			return sum, fmt.Errorf("delete long-symbol positions: %w", err)
		}
		sum.Deleted = len(tooLong)
		logger.WithField("count", len(tooLong)).Info("Deleted positions with symbols too long to be tickers")
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	if len(symbols) == 0 {
		logSummary(sum)
		return sum, nil
	}

	existing, err := t.tickers().FindBySymbols(ctx, symbols)
	if err != nil {
		return sum, fmt.Errorf("load tickers: %w", err)
	}

	fetched, fetchErrs := connectors.BulkHistory(ctx, t.prices, symbols, utils.AddDays(start, -pricing.IngestLookbackDays), t.cfg.Workers)

	jobs := make([]*priceJob, 0, len(symbols))
	for _, s := range symbols {
		jobs = append(jobs, &priceJob{
			symbol:    s,
			ticker:    existing[s],
			positions: bySymbol[s],
			bars:      fetched[s],
			fetchErr:  fetchErrs[s],
		})
	}

	res, err := batch.Run(ctx, jobs, t.cfg.PriceBatchOptions(),
		func(j *priceJob) string { return "$" + j.symbol },
		func(ctx context.Context, j *priceJob) error {
			return t.priceSymbol(ctx, j, today)
		},
		func(ctx context.Context, done []*priceJob, failed []batch.Failure[*priceJob]) error {
			return t.transaction(ctx, func(tx *gorm.DB) error {
				tickers := repository.NewTickerRepositoryWithDB(tx)
				positions := repository.NewPositionRepositoryWithDB(tx)
				for _, j := range done {
					if err := tickers.SaveAggregate(ctx, j.ticker); err != nil {
						return fmt.Errorf("save ticker %s: %w", j.symbol, err)
					}
					if !j.ticker.Status.IsActive() {
						sum.Failed++
					}
					if j.filled == 0 {
						continue
					}
					id := j.ticker.ID
					for _, p := range j.positions {
						p.TickerID = &id
					}
					if _, err := positions.SaveAll(ctx, j.positions); err != nil {
						return fmt.Errorf("save positions of %s: %w", j.symbol, err)
					}
				}
				return recordFailures(ctx, tx, "price", "PricePending", failed)
			})
		},
	)
	sum.absorb(res)
	if err != nil {
		return sum, err
	}
	logSummary(sum)
	return sum, nil
}

func (t *Tracker) reactivateTickers(ctx context.Context) (int, error) {
	failed, err := t.tickers().ListByStatus(ctx, t.tickerPolicy.Failed)
	if err != nil {
		return 0, fmt.Errorf("list cancelled tickers: %w", err)
	}

	now := t.now()
	n := 0
	for _, tk := range failed {
		if !lifecycle.ReactivateTicker(t.tickerPolicy, tk, now) {
			continue
		}
		if err := t.tickers().UpdateStatus(ctx, tk.ID, tk.Status); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// priceSymbol mutates only the job's ticker and positions.
func (t *Tracker) priceSymbol(ctx context.Context, j *priceJob, today time.Time) error {
	if j.ticker == nil {
		j.ticker = &model.Ticker{Symbol: j.symbol, Status: model.StatusActive}
	}
	log := logger.WithFields(map[string]interface{}{
		"op":     "price",
		"symbol": j.symbol,
	})

	if j.fetchErr != nil || !anyPriced(j.bars) {
		if j.fetchErr != nil {
			log = log.WithError(j.fetchErr)
		}
		log.Warn("No usable price history")
		lifecycle.RecordTickerFailure(t.tickerPolicy, j.ticker, t.now(), model.FailureSourcePrices)
		return nil
	}

	idx := pricing.NewIndex(j.ticker, nil).WithClock(t.now)
	idx.Add(j.bars, today)

	for _, p := range j.positions {
		if fillPosition(ctx, idx, p, t.cfg.FillToleranceDays, log) {
			j.filled++
		}
	}
	return nil
}

// fillPosition snaps the unpriced dates of p to trading days and sets their
// midpoint prices. It reports whether anything changed.
func fillPosition(ctx context.Context, idx *pricing.Index, p *model.Position, tol int, log *logger.Entry) bool {
	changed := false
	plog := log.WithField("position_id", p.ID)

	if p.PriceEntered == nil {
		q, err := idx.Quote(ctx, p.DateEntered, tol)
		if err != nil {
			plog.WithError(err).Warn("Could not price entry")
		} else {
			p.DateEntered = q.Date
			p.PriceEntered = q.Price
			changed = true
		}
	}

	if p.DateClosed != nil && p.PriceClosed == nil {
		q, err := idx.Quote(ctx, *p.DateClosed, tol)
		if err != nil {
			plog.WithError(err).Warn("Could not price close")
		} else {
			closed := q.Date
			p.DateClosed = &closed
			p.PriceClosed = q.Price
			changed = true
		}
	}

	return changed
}

func anyPriced(bars []model.PriceBar) bool {
	for _, b := range bars {
		if b.HasOpenClose() {
			return true
		}
	}
	return false
}
