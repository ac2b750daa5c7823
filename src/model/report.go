package model

import "time"

// TradeRow is a closed and priced position joined with its furu handle.
type TradeRow struct {
	Handle       string    `json:"handle"`
	Symbol       string    `json:"symbol"`
	DateEntered  time.Time `json:"date_entered"`
	DateClosed   time.Time `json:"date_closed"`
	PriceEntered float64   `json:"price_entered"`
	PriceClosed  float64   `json:"price_closed"`
}

func (r TradeRow) Return() float64 {
	if r.PriceEntered == 0 {
		return 0
	}
	return r.PriceClosed/r.PriceEntered - 1
}

// OpenPositionRow is an open position joined with its furu's stats.
type OpenPositionRow struct {
	FuruID                   uint      `json:"furu_id"`
	Handle                   string    `json:"handle"`
	Symbol                   string    `json:"symbol"`
	DateEntered              time.Time `json:"date_entered"`
	DateLastMentioned        time.Time `json:"date_last_mentioned"`
	PriceEntered             *float64  `json:"price_entered,omitempty"`
	Accuracy                 *float64  `json:"accuracy,omitempty"`
	AverageProfit            *float64  `json:"average_profit,omitempty"`
	AverageHoldingPeriodDays *float64  `json:"average_holding_period_days,omitempty"`
}
