package analytics

import (
	"fmt"
	"math"
	"strconv"

	"fururank/src/model"
	"fururank/src/repository"
)

// DefaultFilter is the bar a furu has to clear to show up in ranked views.
var DefaultFilter = repository.LeaderboardFilter{
	MinAccuracy:    0.55,
	MinPerformance: 0.3,
	MinTrades:      30,
	MinHoldingDays: 12,
}

const (
	sharpshooterAccuracy = 0.80
	bigWinnerProfit      = 0.80
)

var medals = []string{"🥇", "🥈", "🥉"}

// LeaderboardEntry is one ranked furu with its display strings.
type LeaderboardEntry struct {
	Rank                     int     `json:"rank"`
	Handle                   string  `json:"handle"`
	Accuracy                 float64 `json:"accuracy"`
	PerformanceScore         float64 `json:"performance_score"`
	TotalTradesMeasured      int     `json:"total_trades_measured"`
	AverageProfit            float64 `json:"average_profit"`
	AverageLoss              float64 `json:"average_loss"`
	AverageHoldingPeriodDays float64 `json:"average_holding_period_days"`
	Emoji                    string  `json:"emoji"`
	Line                     string  `json:"line"`
}

// BuildLeaderboard decorates furus that are already filtered and ordered.
func BuildLeaderboard(furus []model.Furu) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(furus))
	for i, f := range furus {
		e := LeaderboardEntry{
			Rank:                     i + 1,
			Handle:                   "@" + f.Handle,
			Accuracy:                 deref(f.Accuracy),
			PerformanceScore:         deref(f.PerformanceScore),
			AverageProfit:            deref(f.AverageProfit),
			AverageLoss:              deref(f.AverageLoss),
			AverageHoldingPeriodDays: deref(f.AverageHoldingPeriodDays),
		}
		if f.TotalTradesMeasured != nil {
			e.TotalTradesMeasured = *f.TotalTradesMeasured
		}

		e.Emoji = medal(i)
		if e.Accuracy > sharpshooterAccuracy {
			e.Emoji += "🎯"
		}
		if e.AverageProfit > bigWinnerProfit {
			e.Emoji += "💰"
		}

		e.Line = fmt.Sprintf("%s 💰:%s 🎯:%s 📆:%s %s",
			e.Handle,
			FormatPercent(e.AverageProfit),
			FormatPercent(e.Accuracy),
			FormatDays(e.AverageHoldingPeriodDays),
			e.Emoji,
		)
		out = append(out, e)
	}
	return out
}

// FormatPercent renders a ratio as a signed whole percentage, e.g. "+57%".
func FormatPercent(p float64) string {
	s := strconv.Itoa(int(math.Round(p * 100)))
	if p >= 0 {
		return "+" + s + "%"
	}
	return s + "%"
}

// FormatDays renders a day count rounded to the nearest day, e.g. "14d".
func FormatDays(d float64) string {
	return strconv.Itoa(int(math.RoundToEven(d))) + "d"
}

func medal(i int) string {
	if i < len(medals) {
		return medals[i]
	}
	return ""
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
