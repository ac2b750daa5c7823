package model

import "time"

// Stats holds the running performance figures of a furu. Every field stays
// nil until at least one closed position has been scored.
type Stats struct {
	Accuracy                 *float64 `json:"accuracy,omitempty"`
	AverageProfit            *float64 `json:"average_profit,omitempty"`
	AverageLoss              *float64 `json:"average_loss,omitempty"`
	AverageHoldingPeriodDays *float64 `json:"average_holding_period_days,omitempty"`
	TotalTradesMeasured      *int     `json:"total_trades_measured,omitempty"`
	ExpectedReturn           *float64 `json:"expected_return,omitempty"`
	PerformanceScore         *float64 `json:"performance_score,omitempty"`
}

// StatsColumns lists the columns written when only the stats change.
var StatsColumns = []string{
	"accuracy",
	"average_profit",
	"average_loss",
	"average_holding_period_days",
	"total_trades_measured",
	"expected_return",
	"performance_score",
}

// Furu is a tracked commentator. It owns its positions, fetch failures and
// archived tweets; positions only point back through FuruID.
type Furu struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Handle string `gorm:"size:50;uniqueIndex;not null" json:"handle"`
	Status Status `gorm:"size:4;not null;default:ACTV;index" json:"status"`
	// ExternalID is the Twitter user id, resolved on first fetch.
	ExternalID string `gorm:"size:32;index" json:"external_id,omitempty"`

	Stats `gorm:"embedded"`

	DateLastUpdated *time.Time `json:"date_last_updated,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Positions []*Position       `gorm:"foreignKey:FuruID" json:"positions,omitempty"`
	Failures  []FuruFetchFailure `gorm:"foreignKey:FuruID" json:"-"`
	Tweets    []Tweet            `gorm:"foreignKey:FuruID" json:"-"`

	removedPositions []uint
}

func (Furu) TableName() string {
	return "furus"
}

// PositionsFor returns the positions of one symbol, in stored order.
func (f *Furu) PositionsFor(symbol string) []*Position {
	var out []*Position
	for _, p := range f.Positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// AddPosition appends a new position owned by this furu.
func (f *Furu) AddPosition(p *Position) {
	p.FuruID = f.ID
	f.Positions = append(f.Positions, p)
}

// RemovePosition drops p from the aggregate. Persisted positions are
// remembered so the next save deletes their rows.
func (f *Furu) RemovePosition(p *Position) {
	for i, candidate := range f.Positions {
		if candidate != p {
			continue
		}
		f.Positions = append(f.Positions[:i], f.Positions[i+1:]...)
		if p.ID != 0 {
			f.removedPositions = append(f.removedPositions, p.ID)
		}
		return
	}
}

// RemovedPositionIDs returns the ids dropped since the aggregate was loaded.
func (f *Furu) RemovedPositionIDs() []uint {
	return f.removedPositions
}

// ClearRemoved forgets removed ids once they have been deleted.
func (f *Furu) ClearRemoved() {
	f.removedPositions = nil
}

// AddFailure records a fetch failure for the furu.
func (f *Furu) AddFailure(at time.Time, source string) {
	f.Failures = append(f.Failures, FuruFetchFailure{FuruID: f.ID, FailureDate: at, Source: source})
}

func (f *Furu) FailureDates() []time.Time {
	dates := make([]time.Time, 0, len(f.Failures))
	for _, failure := range f.Failures {
		dates = append(dates, failure.FailureDate)
	}
	return dates
}
