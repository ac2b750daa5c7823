package analytics

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"fururank/src/utils"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(tw *tabwriter.Writer, cells ...interface{}) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = fmt.Sprint(c)
	}
	_, _ = fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

func head[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

func price(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func RenderLeaderboard(w io.Writer, entries []LeaderboardEntry) error {
	tw := newTable(w)
	row(tw, "handle", "accuracy", "performance_score", "total_trades_measured", "average_profit", "average_loss", "average_holding_period_days")
	for _, e := range entries {
		row(tw,
			e.Handle,
			FormatPercent(e.Accuracy),
			fmt.Sprintf("%.4f", e.PerformanceScore),
			e.TotalTradesMeasured,
			FormatPercent(e.AverageProfit),
			FormatPercent(e.AverageLoss),
			FormatDays(e.AverageHoldingPeriodDays),
		)
	}
	return tw.Flush()
}

// RenderLeaderboardLines writes the one-line share format, one furu a line.
func RenderLeaderboardLines(w io.Writer, entries []LeaderboardEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.Line); err != nil {
			return err
		}
	}
	return nil
}

func RenderBestTrades(w io.Writer, trades []Trade, n int) error {
	tw := newTable(w)
	row(tw, "handle", "symbol", "date_entered", "date_closed", "price_entered", "price_closed", "return")
	for _, t := range head(trades, n) {
		row(tw,
			"@"+t.Handle,
			t.Symbol,
			t.DateEntered.Format(utils.DateLayout),
			t.DateClosed.Format(utils.DateLayout),
			fmt.Sprintf("%.2f", t.PriceEntered),
			fmt.Sprintf("%.2f", t.PriceClosed),
			t.ReturnText,
		)
	}
	return tw.Flush()
}

func RenderGoldenPortfolio(w io.Writer, rows []GoldenRow, n int) error {
	tw := newTable(w)
	row(tw, "position", "symbol", "golden_rank")
	for _, r := range head(rows, n) {
		row(tw, r.Position, r.Symbol, fmt.Sprintf("%.4f", r.GoldenRank))
	}
	return tw.Flush()
}

func RenderTickerScores(w io.Writer, rows []GoldenRow) error {
	tw := newTable(w)
	row(tw, "symbol", "last_mention_score", "golden_rank")
	for _, r := range rows {
		row(tw, r.Symbol, fmt.Sprintf("%.4f", r.LastMentionScore), fmt.Sprintf("%.4f", r.GoldenRank))
	}
	return tw.Flush()
}

func RenderPortfolio(w io.Writer, rows []PortfolioRow) error {
	tw := newTable(w)
	row(tw, "symbol", "trader_count", "handles", "earliest_entry", "latest_entry", "least_price_paid", "max_price_paid", "avg_accuracy", "avg_holding_period", "days_held", "")
	for _, r := range rows {
		row(tw,
			r.Symbol,
			r.TraderCount,
			strings.Join(r.Handles, " "),
			r.EarliestEntry.Format(utils.DateLayout),
			r.LatestEntry.Format(utils.DateLayout),
			price(r.MinPriceEntered),
			price(r.MaxPriceEntered),
			FormatPercent(r.AverageAccuracy),
			FormatDays(r.AverageHolding),
			r.DaysHeld,
			r.Medal,
		)
	}
	return tw.Flush()
}
