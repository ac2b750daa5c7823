package model

import (
	"errors"
	"time"

	"fururank/src/utils"

	"gorm.io/gorm"
)

var ErrClosedBeforeEntered = errors.New("position closed before it was entered")

// PositionState is derived from which fields of a position are set.
type PositionState string

const (
	PositionRaw    PositionState = "RAW"
	PositionOpen   PositionState = "OPEN"
	PositionClosed PositionState = "CLOSED"
)

// Position is a simulated trade inferred from a furu's mentions of a symbol.
// TickerID stays nil until the pricing pass finds history for Symbol.
type Position struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	FuruID            uint       `gorm:"not null;index:idx_positions_furu_symbol,priority:1" json:"furu_id"`
	Symbol            string     `gorm:"size:20;not null;index:idx_positions_furu_symbol,priority:2;index" json:"symbol"`
	TickerID          *uint      `gorm:"index" json:"ticker_id,omitempty"`
	DateEntered       time.Time  `gorm:"not null" json:"date_entered"`
	DateClosed        *time.Time `json:"date_closed,omitempty"`
	DateLastMentioned time.Time  `gorm:"not null" json:"date_last_mentioned"`
	PriceEntered      *float64   `json:"price_entered,omitempty"`
	PriceClosed       *float64   `json:"price_closed,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) IsOpen() bool {
	return p.DateClosed == nil
}

// State derives RAW, OPEN or CLOSED.
func (p *Position) State() PositionState {
	switch {
	case p.TickerID == nil || p.PriceEntered == nil:
		return PositionRaw
	case p.DateClosed == nil:
		return PositionOpen
	default:
		return PositionClosed
	}
}

// IsScorable reports whether both dates and both prices are known.
func (p *Position) IsScorable() bool {
	return p.DateClosed != nil && p.PriceEntered != nil && p.PriceClosed != nil && *p.PriceEntered > 0
}

// Return is price_closed / price_entered - 1. ok is false until the
// position is scorable.
func (p *Position) Return() (float64, bool) {
	if !p.IsScorable() {
		return 0, false
	}
	return *p.PriceClosed / *p.PriceEntered - 1, true
}

// HoldingDays is the number of calendar days between entry and close.
func (p *Position) HoldingDays() int {
	if p.DateClosed == nil {
		return 0
	}
	return utils.DaysBetween(p.DateEntered, *p.DateClosed)
}

// Contains reports whether day lies in [entered, closed], open-ended when
// the position has not closed.
func (p *Position) Contains(day time.Time) bool {
	if day.Before(p.DateEntered) {
		return false
	}
	return p.DateClosed == nil || !day.After(*p.DateClosed)
}

// Intersects reports whether the window [from, to] overlaps the position.
func (p *Position) Intersects(from, to time.Time) bool {
	if p.DateEntered.After(to) {
		return false
	}
	return p.DateClosed == nil || !p.DateClosed.Before(from)
}

func (p *Position) Validate() error {
	if p.DateClosed != nil && p.DateClosed.Before(p.DateEntered) {
		return ErrClosedBeforeEntered
	}
	return nil
}

func (p *Position) BeforeSave(_ *gorm.DB) error {
	return p.Validate()
}
