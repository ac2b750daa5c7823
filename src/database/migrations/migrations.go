// Package migrations holds schema preparation and one-shot data fixes.
package migrations

import (
	"errors"
	"fmt"
	"time"

	"fururank/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration is one applied row in data_migrations.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

// Migration rewrites rows that AutoMigrate cannot fix. IDs sort in the order
// the migrations must run.
type Migration struct {
	ID string
	Fn func(*gorm.DB) error
}

// registry is append-only. Never renumber an applied ID.
var registry = []Migration{
	{ID: "00001_uppercase_position_symbols", Fn: uppercasePositionSymbols},
	{ID: "00002_clamp_price_bar_floor", Fn: clampPriceBarFloor},
}

// Applied returns the IDs already recorded, oldest first.
func Applied(db *gorm.DB) ([]string, error) {
	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return nil, fmt.Errorf("ensure data_migrations: %w", err)
	}
	var ids []string
	err := db.Model(&DataMigration{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// RunOnce applies fn in a transaction unless migrationID is already
// recorded. The record is written in the same transaction.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	if db == nil {
		return nil
	}
	switch {
	case migrationID == "":
		return errors.New("migration id is empty")
	case fn == nil:
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return fmt.Errorf("ensure data_migrations: %w", err)
	}

	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&DataMigration{}).Where("id = ?", migrationID).Count(&seen).Error; err != nil {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}
		if seen > 0 {
			return nil
		}
		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}
		applied = true
		return tx.Create(&DataMigration{ID: migrationID, AppliedAt: time.Now().UTC()}).Error
	})
	if err != nil {
		return err
	}
	if applied {
		logrus.WithField("migration", migrationID).Info("Data migration applied")
	}
	return nil
}

// Run applies every registered migration in order.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	for _, m := range registry {
		if err := RunOnce(db, m.ID, m.Fn); err != nil {
			return err
		}
	}
	return nil
}

// uppercasePositionSymbols normalizes symbols written before mentions were
// upper-cased at parse time.
func uppercasePositionSymbols(db *gorm.DB) error {
	return db.Exec("UPDATE positions SET symbol = UPPER(symbol) WHERE symbol <> UPPER(symbol)").Error
}

// clampPriceBarFloor raises stored prices below the floor, matching what
// ingestion does for new bars.
func clampPriceBarFloor(db *gorm.DB) error {
	floor := model.MinimumPrice.InexactFloat64()
	for _, column := range []string{"open", "high", "low", "close"} {
		err := db.Model(&model.PriceBar{}).
			Where(fmt.Sprintf("%s IS NOT NULL AND %s < ?", column, column), floor).
			Update(column, floor).Error
		if err != nil {
			return fmt.Errorf("clamp price_bars.%s: %w", column, err)
		}
	}
	return nil
}
