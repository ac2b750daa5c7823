package scoring

import (
	"errors"
	"math"
	"sort"

	"fururank/src/model"

	logger "github.com/sirupsen/logrus"
)

// ErrNotScorable is returned for positions missing a close date or a price.
var ErrNotScorable = errors.New("position is not closed and priced")

// Apply folds one closed position into the running stats. The winner and
// loser counts behind the averages are implied from the current accuracy,
// so the result depends on the order positions are applied in.
func Apply(s *model.Stats, p *model.Position) error {
	r, ok := p.Return()
	if !ok {
		return ErrNotScorable
	}

	won := 0.0
	if r > 0 {
		won = 1
	}
	days := float64(p.HoldingDays())

	if s.TotalTradesMeasured == nil || *s.TotalTradesMeasured == 0 {
		n := 1
		s.TotalTradesMeasured = &n
		s.Accuracy = ptr(won)
		s.AverageProfit, s.AverageLoss = nil, nil
		if won == 1 {
			s.AverageProfit = ptr(r)
		} else {
			s.AverageLoss = ptr(r)
		}
		s.AverageHoldingPeriodDays = ptr(days)
		return nil
	}

	n := *s.TotalTradesMeasured + 1
	s.TotalTradesMeasured = &n
	acc := *s.Accuracy

	if won == 1 {
		profitable := math.RoundToEven(acc * float64(n))
		if profitable == 0 || s.AverageProfit == nil {
			s.AverageProfit = ptr(r)
		} else {
			s.AverageProfit = ptr(*s.AverageProfit + (r-*s.AverageProfit)/profitable)
		}
	} else {
		unprofitable := math.RoundToEven((1 - acc) * float64(n))
		if unprofitable == 0 || s.AverageLoss == nil {
			s.AverageLoss = ptr(r)
		} else {
			loss := math.Abs(*s.AverageLoss)
			s.AverageLoss = ptr(-(loss + (math.Abs(r)-loss)/unprofitable))
		}
	}

	s.Accuracy = ptr(acc + (won-acc)/float64(n))
	hold := *s.AverageHoldingPeriodDays
	s.AverageHoldingPeriodDays = ptr(hold + (days-hold)/float64(n))
	return nil
}

// Derive sets expected return and performance score from the running
// stats. Unset profit or loss counts as zero.
func Derive(s *model.Stats) {
	if s.Accuracy == nil {
		s.ExpectedReturn, s.PerformanceScore = nil, nil
		return
	}

	acc := *s.Accuracy
	profit, loss := 0.0, 0.0
	if s.AverageProfit != nil {
		profit = *s.AverageProfit
	}
	if s.AverageLoss != nil {
		loss = *s.AverageLoss
	}

	s.ExpectedReturn = ptr(acc*profit + (1-acc)*loss)
	s.PerformanceScore = ptr(acc*profit + (1-acc)*(loss-profit))
}

func Reset(s *model.Stats) {
	*s = model.Stats{}
}

// ReplayOrder returns the scorable positions sorted by close date, then
// entry date, then id.
func ReplayOrder(positions []*model.Position) []*model.Position {
	out := make([]*model.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsScorable() {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DateClosed.Equal(*b.DateClosed) {
			return a.DateClosed.Before(*b.DateClosed)
		}
		if !a.DateEntered.Equal(b.DateEntered) {
			return a.DateEntered.Before(b.DateEntered)
		}
		return a.ID < b.ID
	})
	return out
}

// Recompute resets the furu's stats and replays every closed, priced
// position. It returns the number of positions scored.
func Recompute(f *model.Furu) int {
	Reset(&f.Stats)

	scored := 0
	for _, p := range ReplayOrder(f.Positions) {
		if err := Apply(&f.Stats, p); err != nil {
			logger.WithFields(map[string]interface{}{
				"handle":      f.Handle,
				"position_id": p.ID,
			}).WithError(err).Warn("Could not score position")
			continue
		}
		scored++
	}

	if scored > 0 {
		Derive(&f.Stats)
	}
	return scored
}

func ptr(v float64) *float64 {
	return &v
}
