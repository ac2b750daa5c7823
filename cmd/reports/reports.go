package reports

import (
	"context"
	"fmt"
	"io"

	logger "github.com/sirupsen/logrus"

	"fururank/src/analytics"
	"fururank/src/export"
)

// Reports prints the ranked views as text tables.
type Reports struct {
	Log      *logger.Entry
	Out      io.Writer
	Config   *Config
	Reporter *analytics.Reporter
	Trades   export.TradeSource
}

func (r *Reports) rows() int {
	if r.Config == nil {
		r.Config = GetConfig()
	}
	return r.Config.PrintRows
}

// Leaderboard prints the table, or the one-line share format when lines is set.
func (r *Reports) Leaderboard(ctx context.Context, lines bool) error {
	entries, err := r.Reporter.Leaderboard(ctx)
	if err != nil {
		return err
	}
	if lines {
		return analytics.RenderLeaderboardLines(r.Out, entries)
	}
	return analytics.RenderLeaderboard(r.Out, entries)
}

func (r *Reports) BestTrades(ctx context.Context, limit int) error {
	trades, err := r.Reporter.BestTrades(ctx, limit)
	if err != nil {
		return err
	}
	return analytics.RenderBestTrades(r.Out, trades, r.rows())
}

func (r *Reports) GoldenPortfolio(ctx context.Context) error {
	rows, err := r.Reporter.GoldenPortfolio(ctx)
	if err != nil {
		return err
	}
	return analytics.RenderGoldenPortfolio(r.Out, rows, r.rows())
}

func (r *Reports) TickerScores(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols given")
	}
	rows, err := r.Reporter.TickerScores(ctx, symbols)
	if err != nil {
		return err
	}
	return analytics.RenderTickerScores(r.Out, rows)
}

// Portfolio prints the open positions of handles, or of everyone.
func (r *Reports) Portfolio(ctx context.Context, handles []string) error {
	rows, err := r.Reporter.Portfolio(ctx, handles)
	if err != nil {
		return err
	}
	return analytics.RenderPortfolio(r.Out, rows)
}

func (r *Reports) ExportTrades(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("no output path given")
	}
	n, err := export.ExportTrades(ctx, r.Trades, path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(r.Out, "wrote %d trades to %s\n", n, path)
	return err
}
