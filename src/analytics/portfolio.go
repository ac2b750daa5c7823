package analytics

import (
	"sort"
	"time"

	"fururank/src/model"
	"fururank/src/utils"
)

// PortfolioRow is one symbol held open by the selected furus.
type PortfolioRow struct {
	Symbol          string      `json:"symbol"`
	TraderCount     int         `json:"trader_count"`
	Handles         []string    `json:"handles"`
	EntryDates      []time.Time `json:"entry_dates"`
	EarliestEntry   time.Time   `json:"earliest_entry"`
	LatestEntry     time.Time   `json:"latest_entry"`
	MinPriceEntered *float64    `json:"min_price_entered,omitempty"`
	MaxPriceEntered *float64    `json:"max_price_entered,omitempty"`
	AverageAccuracy float64     `json:"average_accuracy"`
	AverageHolding  float64     `json:"average_holding_period_days"`
	DaysHeld        int         `json:"days_held"`
	Medal           string      `json:"medal,omitempty"`
}

// BuildPortfolio groups open positions by symbol, newest first entry on top.
// When several furus are involved the three most shared symbols get medals.
func BuildPortfolio(rows []model.OpenPositionRow, today time.Time) []PortfolioRow {
	today = utils.Date(today)
	furus := make(map[uint]struct{})
	for _, r := range rows {
		furus[r.FuruID] = struct{}{}
	}

	groups := groupOpenPositions(rows)
	out := make([]PortfolioRow, 0, len(groups))
	for _, g := range groups {
		out = append(out, PortfolioRow{
			Symbol:          g.row.Symbol,
			TraderCount:     g.row.FuruCount,
			Handles:         g.row.Handles,
			EntryDates:      g.row.EntryDates,
			EarliestEntry:   g.row.EarliestEntry,
			LatestEntry:     g.row.LatestEntry,
			MinPriceEntered: g.row.MinPriceEntered,
			MaxPriceEntered: g.row.MaxPriceEntered,
			AverageAccuracy: g.row.AverageAccuracy,
			AverageHolding:  g.row.AverageHolding,
			DaysHeld:        utils.DaysBetween(g.row.EarliestEntry, today),
		})
	}

	if len(furus) > 1 {
		byCount := make([]int, len(out))
		for i := range byCount {
			byCount[i] = i
		}
		sort.SliceStable(byCount, func(a, b int) bool {
			return out[byCount[a]].TraderCount > out[byCount[b]].TraderCount
		})
		for rank, i := range byCount {
			out[i].Medal = medal(rank)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EarliestEntry.Equal(out[j].EarliestEntry) {
			return out[i].EarliestEntry.After(out[j].EarliestEntry)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
