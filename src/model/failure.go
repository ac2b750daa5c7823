package model

import "time"

const (
	FailureSourceTwitter = "twitter"
	FailureSourcePrices  = "prices"
)

type FuruFetchFailure struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FuruID      uint      `gorm:"not null;index" json:"furu_id"`
	FailureDate time.Time `gorm:"not null" json:"failure_date"`
	Source      string    `gorm:"size:30" json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

func (FuruFetchFailure) TableName() string {
	return "furu_fetch_failures"
}

type TickerFetchFailure struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TickerID    uint      `gorm:"not null;index" json:"ticker_id"`
	FailureDate time.Time `gorm:"not null" json:"failure_date"`
	Source      string    `gorm:"size:30" json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TickerFetchFailure) TableName() string {
	return "ticker_fetch_failures"
}
