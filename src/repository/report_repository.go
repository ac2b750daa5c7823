package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fururank/src/database"
	"fururank/src/model"
)

// LeaderboardFilter bounds the furus that qualify for ranked views. All
// comparisons are strict.
type LeaderboardFilter struct {
	MinAccuracy    float64
	MinPerformance float64
	MinTrades      int
	MinHoldingDays float64
}

// ReportRepository runs the read-only queries behind the reports.
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository uses the read-only connection.
func NewReportRepository() *ReportRepository {
	return &ReportRepository{db: database.ReadOnlyDB}
}

func NewReportRepositoryWithDB(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func applyFilter(db *gorm.DB, prefix string, f LeaderboardFilter) *gorm.DB {
	return db.
		Where(prefix+"accuracy > ?", f.MinAccuracy).
		Where(prefix+"performance_score > ?", f.MinPerformance).
		Where(prefix+"total_trades_measured > ?", f.MinTrades).
		Where(prefix+"average_holding_period_days > ?", f.MinHoldingDays)
}

// Leaderboard returns the furus passing f, best performance first.
func (r *ReportRepository) Leaderboard(ctx context.Context, f LeaderboardFilter) ([]model.Furu, error) {
	var furus []model.Furu

	err := applyFilter(r.db.WithContext(ctx), "", f).
		Order("performance_score DESC, id ASC").
		Find(&furus).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ReportRepository",
			"op":   "Leaderboard",
		}).WithError(err).Error("Failed to query leaderboard")
		return nil, err
	}

	return furus, nil
}

func closedTrades(db *gorm.DB) *gorm.DB {
	return db.
		Table("positions p").
		Select("f.handle, p.symbol, p.date_entered, p.date_closed, p.price_entered, p.price_closed").
		Joins("JOIN furus f ON f.id = p.furu_id").
		Where("p.date_closed IS NOT NULL AND p.price_closed IS NOT NULL AND p.price_entered > 0")
}

// BestTrades returns closed and priced trades ordered by price ratio.
func (r *ReportRepository) BestTrades(ctx context.Context, limit int) ([]model.TradeRow, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []model.TradeRow
	err := closedTrades(r.db.WithContext(ctx)).
		Order("p.price_closed / p.price_entered DESC, p.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// ClosedTrades returns every closed and priced trade, oldest close first.
func (r *ReportRepository) ClosedTrades(ctx context.Context) ([]model.TradeRow, error) {
	var rows []model.TradeRow
	err := closedTrades(r.db.WithContext(ctx)).
		Order("p.date_closed ASC, p.id ASC").
		Scan(&rows).Error
	return rows, err
}

func openPositions(db *gorm.DB) *gorm.DB {
	return db.
		Table("positions p").
		Select("p.furu_id, f.handle, p.symbol, p.date_entered, p.date_last_mentioned, p.price_entered, f.accuracy, f.average_profit, f.average_holding_period_days").
		Joins("JOIN furus f ON f.id = p.furu_id").
		Where("p.date_closed IS NULL AND p.ticker_id IS NOT NULL")
}

// GoldenCandidates returns open priced positions of the furus passing f.
func (r *ReportRepository) GoldenCandidates(ctx context.Context, f LeaderboardFilter) ([]model.OpenPositionRow, error) {
	var rows []model.OpenPositionRow
	err := applyFilter(openPositions(r.db.WithContext(ctx)), "f.", f).
		Order("p.symbol ASC, p.date_entered ASC").
		Scan(&rows).Error
	return rows, err
}

// OpenPositions returns the open priced positions of the given handles, or
// of every furu when handles is empty.
func (r *ReportRepository) OpenPositions(ctx context.Context, handles []string) ([]model.OpenPositionRow, error) {
	query := openPositions(r.db.WithContext(ctx))
	if len(handles) > 0 {
		lowered := make([]string, 0, len(handles))
		for _, h := range handles {
			lowered = append(lowered, NormalizeHandle(h))
		}
		query = query.Where("LOWER(f.handle) IN (?)", lowerAll(lowered))
	}

	var rows []model.OpenPositionRow
	err := query.
		Order("p.symbol ASC, p.date_entered ASC").
		Scan(&rows).Error
	return rows, err
}

// OpenSymbolCrowd counts open priced positions per symbol across all furus.
func (r *ReportRepository) OpenSymbolCrowd(ctx context.Context) (map[string]int, error) {
	var counts []struct {
		Symbol string
		Total  int
	}

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Select("symbol, COUNT(*) AS total").
		Where("date_closed IS NULL AND ticker_id IS NOT NULL").
		Group("symbol").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.Symbol] = c.Total
	}
	return out, nil
}

func (r *ReportRepository) CountFurus(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Furu{}).Count(&count).Error
	return count, err
}
