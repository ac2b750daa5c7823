package model

import "time"

// Tweet is an archived post of a furu, kept so positions can be rebuilt
// without refetching.
type Tweet struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FuruID     uint      `gorm:"not null;uniqueIndex:ux_tweets_furu_external,priority:1" json:"furu_id"`
	ExternalID string    `gorm:"size:32;not null;uniqueIndex:ux_tweets_furu_external,priority:2" json:"external_id"`
	PostedAt   time.Time `gorm:"not null;index" json:"posted_at"`
	Text       string    `gorm:"type:text" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Tweet) TableName() string {
	return "tweets"
}
