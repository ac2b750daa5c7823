package analytics

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"fururank/src/model"
	"fururank/src/repository"
)

// Source is the read side the reports are built from.
type Source interface {
	Leaderboard(ctx context.Context, f repository.LeaderboardFilter) ([]model.Furu, error)
	BestTrades(ctx context.Context, limit int) ([]model.TradeRow, error)
	GoldenCandidates(ctx context.Context, f repository.LeaderboardFilter) ([]model.OpenPositionRow, error)
	OpenPositions(ctx context.Context, handles []string) ([]model.OpenPositionRow, error)
	OpenSymbolCrowd(ctx context.Context) (map[string]int, error)
	CountFurus(ctx context.Context) (int64, error)
}

// Reporter assembles the ranked views.
type Reporter struct {
	source Source
	filter repository.LeaderboardFilter
	now    func() time.Time
}

func NewReporter(source Source) *Reporter {
	return &Reporter{source: source, filter: DefaultFilter, now: time.Now}
}

// NewDefaultReporter reads through the read-only connection.
func NewDefaultReporter() *Reporter {
	return NewReporter(repository.NewReportRepository())
}

func (r *Reporter) WithFilter(f repository.LeaderboardFilter) *Reporter {
	r.filter = f
	return r
}

func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

func logFailure(op string, err error) {
	logger.WithFields(map[string]interface{}{
		"service": "Reporter",
		"op":      op,
	}).WithError(err).Error("Failed to build report")
}

func (r *Reporter) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	furus, err := r.source.Leaderboard(ctx, r.filter)
	if err != nil {
		logFailure("Leaderboard", err)
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return BuildLeaderboard(furus), nil
}

func (r *Reporter) BestTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = DefaultBestTradesLimit
	}
	rows, err := r.source.BestTrades(ctx, limit)
	if err != nil {
		logFailure("BestTrades", err)
		return nil, fmt.Errorf("best trades: %w", err)
	}
	return BuildTrades(rows), nil
}

func (r *Reporter) GoldenPortfolio(ctx context.Context) ([]GoldenRow, error) {
	rows, err := r.source.GoldenCandidates(ctx, r.filter)
	if err != nil {
		logFailure("GoldenPortfolio", err)
		return nil, fmt.Errorf("golden candidates: %w", err)
	}
	crowd, err := r.source.OpenSymbolCrowd(ctx)
	if err != nil {
		logFailure("GoldenPortfolio", err)
		return nil, fmt.Errorf("open symbol crowd: %w", err)
	}
	total, err := r.source.CountFurus(ctx)
	if err != nil {
		logFailure("GoldenPortfolio", err)
		return nil, fmt.Errorf("count furus: %w", err)
	}
	return BuildGoldenPortfolio(rows, crowd, total, r.now()), nil
}

func (r *Reporter) TickerScores(ctx context.Context, symbols []string) ([]GoldenRow, error) {
	rows, err := r.GoldenPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	return FilterSymbols(rows, symbols), nil
}

// Portfolio groups the open positions of handles, or of every furu when
// handles is empty.
func (r *Reporter) Portfolio(ctx context.Context, handles []string) ([]PortfolioRow, error) {
	rows, err := r.source.OpenPositions(ctx, handles)
	if err != nil {
		logFailure("Portfolio", err)
		return nil, fmt.Errorf("open positions: %w", err)
	}
	return BuildPortfolio(rows, r.now()), nil
}
