package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fururank/src/model"
	"fururank/src/utils"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// ErrNoPriceData means the provider answered but had no usable bars.
var ErrNoPriceData = errors.New("no price data")

const chartPath = "/v8/finance/chart/{symbol}"

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// YahooClient reads daily bars from the Yahoo Finance chart API.
type YahooClient struct {
	http *resty.Client
	now  func() time.Time
}

func NewYahooClient(baseURL string, timeout time.Duration) *YahooClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://query1.finance.yahoo.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	return &YahooClient{
		http: newRestClient(strings.TrimRight(baseURL, "/"), timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "Mozilla/5.0 (compatible; fururank/1.0)"),
		now: time.Now,
	}
}

func (c *YahooClient) History(ctx context.Context, symbol string, start time.Time) ([]model.PriceBar, error) {
	var out chartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(utils.Date(start).Unix(), 10),
			"period2":  strconv.FormatInt(c.now().UTC().Unix(), 10),
			"interval": "1d",
			"events":   "history",
		}).
		SetResult(&out).
		SetError(&out).
		Get(chartPath)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrNoPriceData)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("yahoo chart %s: unexpected status %d", symbol, resp.StatusCode())
	}
	if out.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart %s: %s: %w", symbol, out.Chart.Error.Description, ErrNoPriceData)
	}
	if len(out.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrNoPriceData)
	}

	bars := chartBars(out.Chart.Result[0])
	if !anyOpenClose(bars) {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrNoPriceData)
	}
	return bars, nil
}

func chartBars(r chartResult) []model.PriceBar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	bars := make([]model.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		bar := model.PriceBar{
			Date:  utils.Date(time.Unix(ts, 0).UTC()),
			Open:  nullAt(q.Open, i),
			High:  nullAt(q.High, i),
			Low:   nullAt(q.Low, i),
			Close: nullAt(q.Close, i),
		}
		if v := nullAt(q.Volume, i); v.Valid {
			bar.Volume = v.Decimal
		}
		bars = append(bars, bar)
	}
	return bars
}

func nullAt(values []*float64, i int) decimal.NullDecimal {
	if i >= len(values) || values[i] == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*values[i]))
}

func anyOpenClose(bars []model.PriceBar) bool {
	for _, b := range bars {
		if b.HasOpenClose() {
			return true
		}
	}
	return false
}
