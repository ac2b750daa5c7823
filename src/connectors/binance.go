package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fururank/src/model"
	"fururank/src/utils"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const binanceKlineLimit = 1000

// KlineSource is the part of goex.API used to read candles.
type KlineSource interface {
	GetKlineRecords(pair goex.CurrencyPair, period goex.KlinePeriod, size int, optional ...goex.OptionalParameter) ([]goex.Kline, error)
}

// BinanceClient reads daily klines for crypto symbols quoted in Quote.
type BinanceClient struct {
	exchange KlineSource
	quote    string
	now      func() time.Time
}

func NewBinanceClient(baseURL, quote string, timeout time.Duration) *BinanceClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = binance.GLOBAL_API_BASE_URL
	}
	apiConfig := &goex.APIConfig{
		HttpClient: &http.Client{Timeout: timeout},
		Endpoint:   strings.TrimRight(baseURL, "/"),
	}
	return NewBinanceClientWithSource(binance.NewWithConfig(apiConfig), quote)
}

func NewBinanceClientWithSource(source KlineSource, quote string) *BinanceClient {
	if quote == "" {
		quote = "USDT"
	}
	return &BinanceClient{exchange: source, quote: strings.ToUpper(quote), now: time.Now}
}

// History pages forward through daily klines from start until today. The
// context is only checked between pages because goex takes none.
func (c *BinanceClient) History(ctx context.Context, symbol string, start time.Time) ([]model.PriceBar, error) {
	pair := goex.NewCurrencyPair(goex.Currency{Symbol: strings.ToUpper(symbol)}, goex.Currency{Symbol: c.quote})
	end := c.now().UTC()

	const millis = 1000
	var bars []model.PriceBar
	from := utils.Date(start)
	for !from.After(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		klines, err := c.exchange.GetKlineRecords(
			pair,
			goex.KLINE_PERIOD_1DAY,
			binanceKlineLimit,
			goex.OptionalParameter{}.
				Optional("startTime", from.Unix()*millis).
				Optional("endTime", end.Unix()*millis),
		)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", pair.String(), err)
		}
		if len(klines) == 0 {
			break
		}

		last := from
		for _, k := range klines {
			day := utils.Date(time.Unix(k.Timestamp, 0).UTC())
			bars = append(bars, model.PriceBar{
				Date:   day,
				Open:   decimal.NewNullDecimal(decimal.NewFromFloat(k.Open)),
				High:   decimal.NewNullDecimal(decimal.NewFromFloat(k.High)),
				Low:    decimal.NewNullDecimal(decimal.NewFromFloat(k.Low)),
				Close:  decimal.NewNullDecimal(decimal.NewFromFloat(k.Close)),
				Volume: decimal.NewFromFloat(k.Vol),
			})
			last = utils.MaxDate(last, day)
		}

		if len(klines) < binanceKlineLimit {
			break
		}
		from = utils.AddDays(last, 1)
	}

	logger.WithFields(map[string]interface{}{
		"pair": pair.String(),
		"bars": len(bars),
	}).Debug("Fetched binance klines")

	if len(bars) == 0 {
		return nil, fmt.Errorf("binance klines %s: %w", pair.String(), ErrNoPriceData)
	}
	return bars, nil
}
