package analytics

import (
	"sort"
	"strings"
	"time"

	"fururank/src/model"
	"fururank/src/utils"
)

// Golden rank weights and windows.
const (
	countWeight       = 0.5
	saturationWeight  = 0.2
	lastMentionWeight = 0.2
	entryWeight       = 0.1

	lastMentionWindowDays = 12
	saturationShare       = 2.0 / 3.0
)

// entryBuckets score an entry by how recent it is; the first matching
// bucket wins and anything older scores zero.
var entryBuckets = []struct {
	days  int
	score float64
}{
	{3, 1},
	{6, 2.0 / 3.0},
	{9, 1.0 / 3.0},
}

// GoldenRow is one symbol held open by leaderboard-grade furus.
type GoldenRow struct {
	Position         int         `json:"position"`
	Symbol           string      `json:"symbol"`
	FuruCount        int         `json:"furu_count"`
	Handles          []string    `json:"handles"`
	EntryDates       []time.Time `json:"entry_dates"`
	LastMentions     []time.Time `json:"last_mentions"`
	EarliestEntry    time.Time   `json:"earliest_entry"`
	LatestEntry      time.Time   `json:"latest_entry"`
	MinPriceEntered  *float64    `json:"min_price_entered,omitempty"`
	MaxPriceEntered  *float64    `json:"max_price_entered,omitempty"`
	AverageAccuracy  float64     `json:"average_accuracy"`
	AverageReturn    float64     `json:"average_return"`
	AverageHolding   float64     `json:"average_holding_period_days"`
	CrowdSize        int         `json:"crowd_size"`
	CountScore       float64     `json:"count_score"`
	SaturationScore  float64     `json:"saturation_score"`
	LastMentionScore float64     `json:"last_mention_score"`
	EntryScore       float64     `json:"entry_score"`
	GoldenRank       float64     `json:"golden_rank"`
}

type averager struct {
	sum float64
	n   int
}

func (a *averager) add(v *float64) {
	if v == nil {
		return
	}
	a.sum += *v
	a.n++
}

func (a averager) mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

type symbolGroup struct {
	row      GoldenRow
	accuracy averager
	profit   averager
	holding  averager
}

func groupOpenPositions(rows []model.OpenPositionRow) []*symbolGroup {
	bySymbol := make(map[string]*symbolGroup)
	var order []*symbolGroup

	for _, r := range rows {
		g, ok := bySymbol[r.Symbol]
		if !ok {
			g = &symbolGroup{row: GoldenRow{
				Symbol:        r.Symbol,
				EarliestEntry: r.DateEntered,
				LatestEntry:   r.DateEntered,
			}}
			bySymbol[r.Symbol] = g
			order = append(order, g)
		}

		row := &g.row
		row.FuruCount++
		row.Handles = append(row.Handles, "@"+r.Handle)
		row.EntryDates = append(row.EntryDates, r.DateEntered)
		row.LastMentions = append(row.LastMentions, r.DateLastMentioned)
		if r.DateEntered.Before(row.EarliestEntry) {
			row.EarliestEntry = r.DateEntered
		}
		if r.DateEntered.After(row.LatestEntry) {
			row.LatestEntry = r.DateEntered
		}
		if r.PriceEntered != nil {
			p := *r.PriceEntered
			if row.MinPriceEntered == nil || p < *row.MinPriceEntered {
				row.MinPriceEntered = &p
			}
			if row.MaxPriceEntered == nil || p > *row.MaxPriceEntered {
				row.MaxPriceEntered = &p
			}
		}

		g.accuracy.add(r.Accuracy)
		g.profit.add(r.AverageProfit)
		g.holding.add(r.AverageHoldingPeriodDays)
	}

	for _, g := range order {
		g.row.AverageAccuracy = g.accuracy.mean()
		g.row.AverageReturn = g.profit.mean()
		g.row.AverageHolding = g.holding.mean()
	}
	return order
}

// BuildGoldenPortfolio ranks the symbols in rows. crowd holds the open
// position count per symbol across every furu and totalFurus the number of
// furus tracked. The result is ordered by rank, best first.
func BuildGoldenPortfolio(rows []model.OpenPositionRow, crowd map[string]int, totalFurus int64, today time.Time) []GoldenRow {
	groups := groupOpenPositions(rows)

	maxCount := 0
	for _, g := range groups {
		if g.row.FuruCount > maxCount {
			maxCount = g.row.FuruCount
		}
	}

	capacity := saturationShare * float64(totalFurus)
	today = utils.Date(today)

	out := make([]GoldenRow, 0, len(groups))
	for _, g := range groups {
		row := g.row
		row.CrowdSize = crowd[row.Symbol]

		if maxCount > 0 {
			row.CountScore = float64(row.FuruCount) / float64(maxCount)
		}
		row.SaturationScore = saturation(row.CrowdSize, capacity)
		row.LastMentionScore = lastMentionScore(row.LastMentions, today)
		row.EntryScore = entryScore(row.EntryDates, today)
		row.GoldenRank = countWeight*row.CountScore +
			saturationWeight*row.SaturationScore +
			lastMentionWeight*row.LastMentionScore +
			entryWeight*row.EntryScore
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GoldenRank != out[j].GoldenRank {
			return out[i].GoldenRank > out[j].GoldenRank
		}
		return out[i].Symbol < out[j].Symbol
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

func saturation(crowd int, capacity float64) float64 {
	if capacity <= 0 || float64(crowd) > capacity {
		return 0
	}
	return 1 - float64(crowd)/capacity
}

func lastMentionScore(mentions []time.Time, today time.Time) float64 {
	if len(mentions) == 0 {
		return 0
	}
	cutoff := utils.AddDays(today, -lastMentionWindowDays)
	recent := 0
	for _, m := range mentions {
		if utils.Date(m).After(cutoff) {
			recent++
		}
	}
	return float64(recent) / float64(len(mentions))
}

func entryScore(entries []time.Time, today time.Time) float64 {
	if len(entries) == 0 {
		return 0
	}
	total := 0.0
	for _, e := range entries {
		e = utils.Date(e)
		for _, b := range entryBuckets {
			if e.After(utils.AddDays(today, -b.days)) {
				total += b.score
				break
			}
		}
	}
	return total / float64(len(entries))
}

// FilterSymbols keeps the rows whose symbol is in symbols, ignoring case and
// a leading "$".
func FilterSymbols(rows []GoldenRow, symbols []string) []GoldenRow {
	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "$"))] = struct{}{}
	}

	var out []GoldenRow
	for _, r := range rows {
		if _, ok := wanted[r.Symbol]; ok {
			out = append(out, r)
		}
	}
	return out
}
