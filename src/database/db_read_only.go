package database

import (
	"fmt"

	"fururank/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReadOnlyDB serves the reporting views. It points at a replica when
// DATABASE_URL_READONLY is set and at MainDB otherwise.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()
	if config.DatabaseURLReadOnly == "" {
		if MainDB == nil {
			return fmt.Errorf("no read-only url configured and MainDB is not initialized")
		}
		ReadOnlyDB = MainDB
		logrus.Info("[ReadOnlyDB] no replica configured, reusing MainDB")
		return nil
	}

	db, err := Open(config.Driver, config.DatabaseURLReadOnly, config.GormLogLevel, true)
	if err != nil {
		return fmt.Errorf("failed to connect to read-only database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	// The replica must already carry the schema written by MainDB.
	var count int64
	if err := db.Model(&model.Furu{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access furus on ReadOnlyDB: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"furus": count}).Info("[ReadOnlyDB] furus reachable")

	ReadOnlyDB = db

	return nil
}
