package pricing

import (
	"context"
	"sort"
	"sync"
	"time"

	"fururank/src/model"
)

// Quote is a resolved trading day. Price is nil when the quoter only
// snaps dates; TickerID is nil until the ticker has a row.
type Quote struct {
	Date     time.Time
	Price    *float64
	TickerID *uint
}

// TickerLoader finds a stored ticker with its bars, returning (nil, nil)
// when the symbol has no row.
type TickerLoader interface {
	FindBySymbol(ctx context.Context, symbol string) (*model.Ticker, error)
}

// Book hands out one Index per symbol, loading stored tickers on first use
// and creating in-memory tickers for unknown symbols.
type Book struct {
	provider  HistoryProvider
	loader    TickerLoader
	tolerance int
	now       func() time.Time

	mu      sync.Mutex
	indexes map[string]*Index
}

func NewBook(provider HistoryProvider, loader TickerLoader, tolerance int) *Book {
	return &Book{
		provider:  provider,
		loader:    loader,
		tolerance: tolerance,
		now:       time.Now,
		indexes:   make(map[string]*Index),
	}
}

// WithClock replaces the clock used to stamp ingested tickers.
func (b *Book) WithClock(now func() time.Time) *Book {
	b.now = now
	return b
}

// Index returns the index of symbol, loading it on first use.
func (b *Book) Index(ctx context.Context, symbol string) (*Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[symbol]; ok {
		return idx, nil
	}

	var ticker *model.Ticker
	if b.loader != nil {
		loaded, err := b.loader.FindBySymbol(ctx, symbol)
		if err != nil {
			return nil, err
		}
		ticker = loaded
	}
	if ticker == nil {
		ticker = &model.Ticker{Symbol: symbol, Status: model.StatusActive}
	}

	idx := NewIndex(ticker, b.provider)
	idx.now = b.now
	b.indexes[symbol] = idx
	return idx, nil
}

// Quote prices symbol on or after date within the book's tolerance.
func (b *Book) Quote(ctx context.Context, symbol string, date time.Time) (Quote, error) {
	idx, err := b.Index(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	return idx.Quote(ctx, date, b.tolerance)
}

// Tickers returns every ticker touched by the book, sorted by symbol.
func (b *Book) Tickers() []*model.Ticker {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*model.Ticker, 0, len(b.indexes))
	for _, idx := range b.indexes {
		out = append(out, idx.ticker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
