package analytics

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fururank/src/model"
)

const (
	DefaultBestTradesLimit = 100
	DefaultPrintRows       = 30
)

var numbers = message.NewPrinter(language.English)

// Trade is a closed trade with its return precomputed.
type Trade struct {
	Handle       string    `json:"handle"`
	Symbol       string    `json:"symbol"`
	DateEntered  time.Time `json:"date_entered"`
	DateClosed   time.Time `json:"date_closed"`
	PriceEntered float64   `json:"price_entered"`
	PriceClosed  float64   `json:"price_closed"`
	Return       float64   `json:"return"`
	ReturnText   string    `json:"return_text"`
}

func BuildTrades(rows []model.TradeRow) []Trade {
	out := make([]Trade, 0, len(rows))
	for _, r := range rows {
		ret := r.Return()
		out = append(out, Trade{
			Handle:       r.Handle,
			Symbol:       r.Symbol,
			DateEntered:  r.DateEntered,
			DateClosed:   r.DateClosed,
			PriceEntered: r.PriceEntered,
			PriceClosed:  r.PriceClosed,
			Return:       ret,
			ReturnText:   FormatReturn(ret),
		})
	}
	return out
}

// FormatReturn renders a ratio as a percentage with two decimals and
// thousands separators, e.g. "1,234.50%".
func FormatReturn(r float64) string {
	return numbers.Sprintf("%.2f%%", r*100)
}
