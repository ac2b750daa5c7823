package connectors

import (
	"context"
	"strings"
	"sync"
	"time"

	"fururank/src/model"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HistorySource is satisfied by every daily bar client.
type HistorySource interface {
	History(ctx context.Context, symbol string, start time.Time) ([]model.PriceBar, error)
}

// Router sends configured crypto symbols to one source and everything else
// to the equity source.
type Router struct {
	equities HistorySource
	crypto   HistorySource
	symbols  map[string]struct{}
}

func NewRouter(equities, crypto HistorySource, cryptoSymbols []string) *Router {
	set := make(map[string]struct{}, len(cryptoSymbols))
	for _, s := range cryptoSymbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return &Router{equities: equities, crypto: crypto, symbols: set}
}

// NewRouterFromConfig wires Yahoo for equities and Binance for crypto.
func NewRouterFromConfig(cfg Config) *Router {
	return NewRouter(
		NewYahooClient(cfg.YahooBaseURL, cfg.HTTPTimeout),
		NewBinanceClient(cfg.BinanceBaseURL, cfg.CryptoQuote, cfg.HTTPTimeout),
		cfg.CryptoSymbols,
	)
}

func (r *Router) IsCrypto(symbol string) bool {
	_, ok := r.symbols[strings.ToUpper(symbol)]
	return ok && r.crypto != nil
}

func (r *Router) History(ctx context.Context, symbol string, start time.Time) ([]model.PriceBar, error) {
	if r.IsCrypto(symbol) {
		return r.crypto.History(ctx, symbol, start)
	}
	return r.equities.History(ctx, symbol, start)
}

// BulkHistory fetches every symbol from start with at most concurrency
// requests in flight. Per-symbol errors are returned in the second map and
// never abort the others.
func BulkHistory(
	ctx context.Context,
	source HistorySource,
	symbols []string,
	start time.Time,
	concurrency int,
) (map[string][]model.PriceBar, map[string]error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	bars := make(map[string][]model.PriceBar, len(symbols))
	errs := map[string]error{}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			got, err := source.History(ctx, symbol, start)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[symbol] = err
				return nil
			}
			bars[symbol] = got
			return nil
		})
	}
	_ = g.Wait()

	logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"fetched": len(bars),
		"failed":  len(errs),
		"start":   start.Format("2006-01-02"),
	}).Info("Bulk history fetched")
	return bars, errs
}
