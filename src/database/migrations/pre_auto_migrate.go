package migrations

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// legacyTables maps table names of the original store to the current ones.
var legacyTables = []struct{ from, to string }{
	{"furu", "furus"},
	{"ticker", "tickers"},
	{"furu_ticker", "positions"},
	{"ticker_history", "price_bars"},
	{"furu_fetch_failure", "furu_fetch_failures"},
	{"ticker_fetch_failure", "ticker_fetch_failures"},
}

// legacyColumns lists columns renamed after the tables above have moved.
var legacyColumns = []struct{ table, from, to string }{
	{"positions", "ticker_symbol", "symbol"},
	{"furu_fetch_failures", "fetch_failure_date", "failure_date"},
	{"furu_fetch_failures", "platform", "source"},
	{"ticker_fetch_failures", "fetch_failure_date", "failure_date"},
	{"ticker_fetch_failures", "platform", "source"},
}

// PrepareLegacySchema renames tables and columns of a database created by
// the original tracker so AutoMigrate extends them in place.
func PrepareLegacySchema(db *gorm.DB) error {
	m := db.Migrator()

	for _, t := range legacyTables {
		if !m.HasTable(t.from) || m.HasTable(t.to) {
			continue
		}
		if err := m.RenameTable(t.from, t.to); err != nil {
			return fmt.Errorf("rename table %s to %s: %w", t.from, t.to, err)
		}
		logrus.WithFields(map[string]interface{}{"from": t.from, "to": t.to}).Info("[migrations] renamed legacy table")
	}

	for _, c := range legacyColumns {
		if !m.HasTable(c.table) {
			continue
		}
		columns, err := columnNames(m, c.table)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", c.table, err)
		}
		if !columns[c.from] || columns[c.to] {
			continue
		}
		if err := m.RenameColumn(c.table, c.from, c.to); err != nil {
			return fmt.Errorf("rename column %s.%s: %w", c.table, c.from, err)
		}
	}

	return nil
}

// columnNames reads exact column names; Migrator.HasColumn matches
// substrings on sqlite, so "symbol" would be found inside "ticker_symbol".
func columnNames(m gorm.Migrator, table string) (map[string]bool, error) {
	types, err := m.ColumnTypes(table)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(types))
	for _, ct := range types {
		names[strings.ToLower(ct.Name())] = true
	}
	return names, nil
}
