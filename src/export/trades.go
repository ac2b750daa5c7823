package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	logger "github.com/sirupsen/logrus"

	"fururank/src/model"
)

// TradeRecord is the on-disk parquet schema for one closed trade.
type TradeRecord struct {
	Handle       string  `parquet:"handle"`
	Symbol       string  `parquet:"symbol"`
	DateEntered  int64   `parquet:"date_entered,timestamp(millisecond)"`
	DateClosed   int64   `parquet:"date_closed,timestamp(millisecond)"`
	PriceEntered float64 `parquet:"price_entered"`
	PriceClosed  float64 `parquet:"price_closed"`
	Return       float64 `parquet:"return"`
}

// TradeSource lists closed and priced trades.
type TradeSource interface {
	ClosedTrades(ctx context.Context) ([]model.TradeRow, error)
}

func Records(rows []model.TradeRow) []TradeRecord {
	out := make([]TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, TradeRecord{
			Handle:       r.Handle,
			Symbol:       r.Symbol,
			DateEntered:  r.DateEntered.UnixMilli(),
			DateClosed:   r.DateClosed.UnixMilli(),
			PriceEntered: r.PriceEntered,
			PriceClosed:  r.PriceClosed,
			Return:       r.Return(),
		})
	}
	return out
}

// WriteTradesFile writes rows to path, creating parent directories.
func WriteTradesFile(path string, rows []model.TradeRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, Records(rows))
}

// ExportTrades dumps every closed trade from src into a parquet file and
// returns how many rows were written.
func ExportTrades(ctx context.Context, src TradeSource, path string) (int, error) {
	rows, err := src.ClosedTrades(ctx)
	if err != nil {
		return 0, fmt.Errorf("load closed trades: %w", err)
	}
	if err := WriteTradesFile(path, rows); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}

	logger.WithFields(map[string]interface{}{
		"path": path,
		"rows": len(rows),
	}).Info("Exported closed trades")
	return len(rows), nil
}
