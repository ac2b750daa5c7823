package database

import (
	"fmt"
	"testing"

	"fururank/src/model"

	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	for _, driver := range []string{"sqlite", "sqlite3", "postgres", "POSTGRESQL"} {
		d, err := Dialector(driver, "fururank.db")
		require.NoError(t, err, driver)
		require.NotNil(t, d)
	}

	_, err := Dialector("mysql", "dsn")
	require.Error(t, err)
}

func TestGetConfigDefaults(t *testing.T) {
	cfg := GetConfig()
	require.Equal(t, "sqlite", cfg.Driver)
	require.Equal(t, "fururank.db", cfg.DatabaseURLMain)
	require.Empty(t, cfg.DatabaseURLReadOnly)
}

func TestMigrateCreatesSchema(t *testing.T) {
	db, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), 1, false)
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	// idempotent
	require.NoError(t, Migrate(db))

	m := db.Migrator()
	for _, table := range []interface{}{
		&model.Furu{}, &model.Ticker{}, &model.PriceBar{}, &model.Position{},
		&model.FuruFetchFailure{}, &model.TickerFetchFailure{}, &model.Tweet{}, &model.Exception{},
	} {
		require.True(t, m.HasTable(table))
	}

	var applied int64
	require.NoError(t, db.Table("data_migrations").Count(&applied).Error)
	require.Equal(t, int64(2), applied)
}

func TestInitReadOnlyDBFallsBackToMain(t *testing.T) {
	db, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), 1, false)
	require.NoError(t, err)

	prevMain, prevRO := MainDB, ReadOnlyDB
	t.Cleanup(func() { MainDB, ReadOnlyDB = prevMain, prevRO })

	MainDB = db
	require.NoError(t, InitReadOnlyDB())
	require.Same(t, db, ReadOnlyDB)
}
