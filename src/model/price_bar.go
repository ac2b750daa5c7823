package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinimumPrice is the floor applied to every stored price so returns never
// divide by zero on dead OTC quotes.
var MinimumPrice = decimal.RequireFromString("0.00001")

// PriceBar is one daily OHLCV bar of a ticker. Bars are append-only and
// unique per (ticker, date).
type PriceBar struct {
	ID       uint                `gorm:"primaryKey" json:"id"`
	TickerID uint                `gorm:"not null;uniqueIndex:ux_price_bars_ticker_date,priority:1" json:"ticker_id"`
	Date     time.Time           `gorm:"not null;uniqueIndex:ux_price_bars_ticker_date,priority:2;index:idx_price_bars_date" json:"date"`
	Open     decimal.NullDecimal `gorm:"type:double precision" json:"open"`
	High     decimal.NullDecimal `gorm:"type:double precision" json:"high"`
	Low      decimal.NullDecimal `gorm:"type:double precision" json:"low"`
	Close    decimal.NullDecimal `gorm:"type:double precision" json:"close"`
	Volume   decimal.Decimal     `gorm:"type:double precision;not null;default:0" json:"volume"`
}

func (PriceBar) TableName() string {
	return "price_bars"
}

// Clamp raises every present price below MinimumPrice to the floor.
func (b *PriceBar) Clamp() {
	for _, field := range []*decimal.NullDecimal{&b.Open, &b.High, &b.Low, &b.Close} {
		if field.Valid && field.Decimal.LessThan(MinimumPrice) {
			field.Decimal = MinimumPrice
		}
	}
}

// HasOpenClose reports whether the bar can be priced.
func (b PriceBar) HasOpenClose() bool {
	return b.Open.Valid && b.Close.Valid
}
