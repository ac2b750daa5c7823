package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fururank/src/batch"
	"fururank/src/ledger"
	"fururank/src/mentions"
	"fururank/src/model"
	"fururank/src/pricing"
	"fururank/src/repository"
	"fururank/src/scoring"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Rebuild discards the positions of the given furus and replays every
// archived tweet through the priced ledger, then rescores them. Furus run
// one at a time because they share one price book.
func (t *Tracker) Rebuild(ctx context.Context, handles []string) (Summary, error) {
	sum := Summary{Pass: "rebuild"}
	today := t.today()

	furus, err := t.furus().FindByHandles(ctx, handles)
	if err != nil {
		return sum, fmt.Errorf("load furus: %w", err)
	}
	if len(furus) < len(handles) {
		logger.WithFields(map[string]interface{}{
			"requested": len(handles),
			"found":     len(furus),
		}).Warn("Some handles are not tracked")
	}

	book := pricing.NewBook(t.prices, t.tickers(), t.cfg.PriceToleranceDays).WithClock(t.now)
	priced := ledger.New(t.cfg.LedgerConfig(), book)

	opts := t.cfg.BatchOptions()
	opts.Concurrency = 1

	res, err := batch.Run(ctx, furus, opts, furuKey,
		func(ctx context.Context, f *model.Furu) error {
			return t.rebuildFuru(ctx, priced, f, today)
		},
		func(ctx context.Context, done []*model.Furu, failed []batch.Failure[*model.Furu]) error {
			return t.transaction(ctx, func(tx *gorm.DB) error {
				tickers := repository.NewTickerRepositoryWithDB(tx)
				ids := map[string]uint{}
				for _, tk := range book.Tickers() {
					if err := tickers.SaveAggregate(ctx, tk); err != nil {
						return fmt.Errorf("save ticker %s: %w", tk.Symbol, err)
					}
					ids[tk.Symbol] = tk.ID
				}

				furus := repository.NewFuruRepositoryWithDB(tx)
				for _, f := range done {
					// rows the aggregate never loaded go too
					if err := furus.DeletePositions(ctx, f.ID); err != nil {
						return fmt.Errorf("clear positions of @%s: %w", f.Handle, err)
					}
					f.ClearRemoved()
					for _, p := range f.Positions {
						if p.TickerID == nil && p.PriceEntered != nil {
							if id, ok := ids[p.Symbol]; ok {
								p.TickerID = &id
							}
						}
					}
					if err := furus.SaveAggregate(ctx, f); err != nil {
						return fmt.Errorf("save @%s: %w", f.Handle, err)
					}
				}
				return recordFailures(ctx, tx, "rebuild", "Rebuild", failed)
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

func (t *Tracker) rebuildFuru(ctx context.Context, priced *ledger.Ledger, f *model.Furu, today time.Time) error {
	tweets, err := t.furus().TweetsSince(ctx, f.ID, time.Time{})
	if err != nil {
		return fmt.Errorf("archived tweets of @%s: %w", f.Handle, err)
	}

	for _, p := range append([]*model.Position(nil), f.Positions...) {
		f.RemovePosition(p)
	}

	timelines := mentions.Timelines(tweets)
	symbols := make([]string, 0, len(timelines))
	for s := range timelines {
		if len(s) <= t.cfg.MaxSymbolLength {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		priced.Apply(ctx, f, symbol, timelines[symbol], today)
	}
	priced.SweepSilenced(ctx, f, today)
	trades := scoring.Recompute(f)
	f.DateLastUpdated = &today

	logger.WithFields(map[string]interface{}{
		"op":        "rebuild",
		"handle":    f.Handle,
		"tweets":    len(tweets),
		"symbols":   len(symbols),
		"positions": len(f.Positions),
		"trades":    trades,
	}).Info("Furu rebuilt")
	return nil
}
