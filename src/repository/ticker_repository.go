package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fururank/src/database"
	"fururank/src/model"
)

// TickerRepository loads and saves ticker aggregates with their bars and
// fetch failures.
type TickerRepository struct {
	db *gorm.DB
}

func NewTickerRepository() *TickerRepository {
	return &TickerRepository{db: database.MainDB}
}

func NewTickerRepositoryWithDB(db *gorm.DB) *TickerRepository {
	return &TickerRepository{db: db}
}

func (r *TickerRepository) WithDB(db *gorm.DB) *TickerRepository {
	return &TickerRepository{db: db}
}

func preloadBars(db *gorm.DB) *gorm.DB {
	return db.Order("date ASC")
}

// FindBySymbol fetches a ticker with its bars in date order.
// Returns (nil, nil) if the symbol has no row yet.
func (r *TickerRepository) FindBySymbol(ctx context.Context, symbol string) (*model.Ticker, error) {
	var ticker model.Ticker

	err := r.db.WithContext(ctx).
		Preload("Bars", preloadBars).
		Preload("Failures").
		Where("symbol = ?", symbol).
		First(&ticker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "TickerRepository",
			"op":     "FindBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch ticker")
		return nil, err
	}

	return &ticker, nil
}

// FindBySymbols loads the tickers that exist for the given symbols, keyed
// by symbol.
func (r *TickerRepository) FindBySymbols(ctx context.Context, symbols []string) (map[string]*model.Ticker, error) {
	out := make(map[string]*model.Ticker, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	var tickers []*model.Ticker
	err := r.db.WithContext(ctx).
		Preload("Bars", preloadBars).
		Preload("Failures").
		Where("symbol IN ?", symbols).
		Find(&tickers).Error
	if err != nil {
		return nil, err
	}

	for _, t := range tickers {
		out[t.Symbol] = t
	}
	return out, nil
}

// ListByStatus returns the tickers of one status with failures preloaded.
// Bars are not loaded.
func (r *TickerRepository) ListByStatus(ctx context.Context, status model.Status) ([]*model.Ticker, error) {
	var tickers []*model.Ticker
	err := r.db.WithContext(ctx).
		Preload("Failures").
		Where("status = ?", status).
		Order("symbol ASC").
		Find(&tickers).Error
	return tickers, err
}

func (r *TickerRepository) SymbolsByStatus(ctx context.Context, status model.Status) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&model.Ticker{}).
		Where("status = ?", status).
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error
	return symbols, err
}

// SaveAggregate writes the ticker row, then inserts unseen bars and new
// failures. Bars already stored for a date are left untouched.
func (r *TickerRepository) SaveAggregate(ctx context.Context, ticker *model.Ticker) error {
	db := r.db.WithContext(ctx)

	if err := db.Omit(clause.Associations).Save(ticker).Error; err != nil {
		return err
	}

	var bars []*model.PriceBar
	for i := range ticker.Bars {
		if ticker.Bars[i].ID == 0 {
			ticker.Bars[i].TickerID = ticker.ID
			bars = append(bars, &ticker.Bars[i])
		}
	}
	if len(bars) > 0 {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticker_id"}, {Name: "date"}},
			DoNothing: true,
		}).CreateInBatches(bars, 500).Error
		if err != nil {
			return err
		}
	}

	for i := range ticker.Failures {
		failure := &ticker.Failures[i]
		if failure.ID != 0 {
			continue
		}
		failure.TickerID = ticker.ID
		if err := db.Create(failure).Error; err != nil {
			return err
		}
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TickerRepository",
		"op":       "SaveAggregate",
		"symbol":   ticker.Symbol,
		"new_bars": len(bars),
	}).Debug("Ticker saved")

	return nil
}

func (r *TickerRepository) UpdateStatus(ctx context.Context, id uint, status model.Status) error {
	return r.db.WithContext(ctx).
		Model(&model.Ticker{}).
		Where("id = ?", id).
		Update("status", status).Error
}
