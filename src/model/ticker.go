package model

import "time"

// Ticker is a priced symbol. A symbol that never reached the pricing pass
// has no row and only lives as a string on positions.
type Ticker struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Symbol          string     `gorm:"size:20;uniqueIndex;not null" json:"symbol"`
	Status          Status     `gorm:"size:4;not null;default:ACTV;index" json:"status"`
	DateLastUpdated *time.Time `json:"date_last_updated,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Bars     []PriceBar           `gorm:"foreignKey:TickerID" json:"-"`
	Failures []TickerFetchFailure `gorm:"foreignKey:TickerID" json:"-"`
}

func (Ticker) TableName() string {
	return "tickers"
}

func (t *Ticker) AddFailure(at time.Time, source string) {
	t.Failures = append(t.Failures, TickerFetchFailure{TickerID: t.ID, FailureDate: at, Source: source})
}

func (t *Ticker) FailureDates() []time.Time {
	dates := make([]time.Time, 0, len(t.Failures))
	for _, failure := range t.Failures {
		dates = append(dates, failure.FailureDate)
	}
	return dates
}
