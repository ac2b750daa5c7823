package database

import (
	"fmt"

	"fururank/src/database/migrations"
	"fururank/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	db, err := Open(config.Driver, config.DatabaseURLMain, config.GormLogLevel, false)
	if err != nil {
		return fmt.Errorf("failed to connect to main database: %w", err)
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Migrate brings a database to the current schema: legacy table renames,
// AutoMigrate of every model, then the recorded data migrations.
func Migrate(db *gorm.DB) error {
	// Rename tables of the original store before AutoMigrate so existing
	// rows are kept instead of new empty tables being created next to them.
	if err := migrations.PrepareLegacySchema(db); err != nil {
		return fmt.Errorf("failed to prepare legacy schema: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Furu{},
		&model.Ticker{},
		&model.PriceBar{},
		&model.Position{},
		&model.FuruFetchFailure{},
		&model.TickerFetchFailure{},
		&model.Tweet{},
		&model.Exception{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}

	return nil
}
