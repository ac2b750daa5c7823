package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fururank/src/model"

	"github.com/go-resty/resty/v2"
	"github.com/nntaoli-project/goex"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableResp(t *testing.T) {
	tests := []struct {
		name string
		code int
		err  error
		want bool
	}{
		{"transport error", 0, errors.New("reset"), true},
		{"server error", http.StatusBadGateway, nil, true},
		{"too many requests", http.StatusTooManyRequests, nil, true},
		{"timeout", http.StatusRequestTimeout, nil, true},
		{"not found", http.StatusNotFound, nil, false},
		{"ok", http.StatusOK, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var resp *resty.Response
			if tc.code != 0 {
				resp = &resty.Response{RawResponse: &http.Response{StatusCode: tc.code}}
			}
			require.Equal(t, tc.want, isRetryableResp(resp, tc.err))
		})
	}
}

func TestRetryOnce(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), time.Millisecond, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = RetryOnce(context.Background(), time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.EqualError(t, err, "down")
	require.Equal(t, 2, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RetryOnce(ctx, time.Hour, func(context.Context) error { return errors.New("down") })
	require.ErrorIs(t, err, context.Canceled)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestYahooHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		require.Equal(t, "1d", r.URL.Query().Get("interval"))
		require.Equal(t, "1609459200", r.URL.Query().Get("period1"))

		writeJSON(t, w, map[string]interface{}{
			"chart": map[string]interface{}{
				"result": []interface{}{map[string]interface{}{
					"timestamp": []int64{1609770600, 1609857000},
					"indicators": map[string]interface{}{
						"quote": []interface{}{map[string]interface{}{
							"open":   []interface{}{133.52, nil},
							"high":   []interface{}{133.61, 131.74},
							"low":    []interface{}{126.76, 128.43},
							"close":  []interface{}{129.41, nil},
							"volume": []interface{}{143301900, nil},
						}},
					},
				}},
				"error": nil,
			},
		})
	}))
	defer srv.Close()

	c := NewYahooClient(srv.URL, 5*time.Second)
	bars, err := c.History(context.Background(), "AAPL", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), bars[0].Date)
	require.True(t, bars[0].HasOpenClose())
	require.Equal(t, "129.41", bars[0].Close.Decimal.String())
	require.Equal(t, "143301900", bars[0].Volume.String())
	require.False(t, bars[1].HasOpenClose())
}

func TestYahooHistoryNoData(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload interface{}
	}{
		{"not found", http.StatusNotFound, map[string]interface{}{
			"chart": map[string]interface{}{"result": nil, "error": map[string]string{"code": "Not Found", "description": "No data found, symbol may be delisted"}},
		}},
		{"empty result", http.StatusOK, map[string]interface{}{
			"chart": map[string]interface{}{"result": []interface{}{}},
		}},
		{"all null prices", http.StatusOK, map[string]interface{}{
			"chart": map[string]interface{}{"result": []interface{}{map[string]interface{}{
				"timestamp":  []int64{1609770600},
				"indicators": map[string]interface{}{"quote": []interface{}{map[string]interface{}{"open": []interface{}{nil}, "close": []interface{}{nil}}}},
			}}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				require.NoError(t, json.NewEncoder(w).Encode(tc.payload))
			}))
			defer srv.Close()

			_, err := NewYahooClient(srv.URL, time.Second).History(context.Background(), "ZZZZ", time.Now())
			require.ErrorIs(t, err, ErrNoPriceData)
		})
	}
}

type fakeKlines struct {
	pages [][]goex.Kline
	calls int
	pair  goex.CurrencyPair
}

func (f *fakeKlines) GetKlineRecords(pair goex.CurrencyPair, period goex.KlinePeriod, size int, _ ...goex.OptionalParameter) ([]goex.Kline, error) {
	f.pair = pair
	if period != goex.KLINE_PERIOD_1DAY || size != binanceKlineLimit {
		return nil, errors.New("unexpected kline request")
	}
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func TestBinanceHistory(t *testing.T) {
	src := &fakeKlines{pages: [][]goex.Kline{{
		{Timestamp: time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC).Unix(), Open: 32000, High: 33600, Low: 27700, Close: 31900, Vol: 1000},
		{Timestamp: time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC).Unix(), Open: 31900, High: 34400, Low: 29900, Close: 33900, Vol: 900},
	}}}

	c := NewBinanceClientWithSource(src, "usdt")
	bars, err := c.History(context.Background(), "btc", time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, "BTC", src.pair.CurrencyA.Symbol)
	require.Equal(t, "USDT", src.pair.CurrencyB.Symbol)
	require.Equal(t, "31900", bars[0].Close.Decimal.String())
	require.Equal(t, 1, src.calls)

	_, err = NewBinanceClientWithSource(&fakeKlines{}, "").History(context.Background(), "ETH", time.Now())
	require.ErrorIs(t, err, ErrNoPriceData)
}

type staticSource struct {
	name  string
	calls int32
	fail  map[string]bool
}

func (s *staticSource) History(_ context.Context, symbol string, start time.Time) ([]model.PriceBar, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.fail[symbol] {
		return nil, ErrNoPriceData
	}
	return []model.PriceBar{{Date: start}}, nil
}

func setupMockBinanceServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v3/time", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int64{"serverTime": time.Now().UnixMilli()})
	})
	handler.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			[1499040000000, "0.01634790", "0.80000000", "0.01575800", "0.01577100", "148976.11427815", 1499644799999, "2434.19055334", 308, "1756.87402397", "28.46694368", "17928899.62484339"]
		]`))
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceHistoryOverHTTP(t *testing.T) {
	srv := setupMockBinanceServer(t)

	bars, err := NewBinanceClient(srv.URL, "usdt", 5*time.Second).
		History(context.Background(), "btc", time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.True(t, bars[0].Date.Equal(time.Date(2017, 7, 3, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "0.016348", bars[0].Open.Decimal.StringFixed(6))
	require.Equal(t, "0.015771", bars[0].Close.Decimal.StringFixed(6))
}

func TestRouterAndBulkHistory(t *testing.T) {
	equities := &staticSource{name: "yahoo", fail: map[string]bool{"DEAD": true}}
	crypto := &staticSource{name: "binance"}
	r := NewRouter(equities, crypto, []string{"btc", " eth "})

	require.True(t, r.IsCrypto("BTC"))
	require.True(t, r.IsCrypto("eth"))
	require.False(t, r.IsCrypto("AAPL"))

	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	bars, errs := BulkHistory(context.Background(), r, []string{"AAPL", "BTC", "DEAD"}, start, 2)
	require.Len(t, bars, 2)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs["DEAD"], ErrNoPriceData)
	require.Equal(t, int32(2), atomic.LoadInt32(&equities.calls))
	require.Equal(t, int32(1), atomic.LoadInt32(&crypto.calls))
}

func testTwitter(t *testing.T, handler http.HandlerFunc) *TwitterClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTwitterClient(Config{
		TwitterBaseURL:     srv.URL,
		TwitterBearerToken: "token",
		TwitterRatePerSec:  1000,
		TwitterPageSize:    100,
		HTTPTimeout:        5 * time.Second,
	})
}

func TestTwitterLookupUser(t *testing.T) {
	c := testTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/2/users/by/username/stonkguru":
			writeJSON(t, w, map[string]interface{}{"data": map[string]string{
				"id": "42", "username": "StonkGuru", "created_at": "2019-03-01T12:00:00.000Z",
			}})
		default:
			writeJSON(t, w, map[string]interface{}{"errors": []map[string]string{{"title": "Not Found Error"}}})
		}
	})

	u, err := c.LookupUser(context.Background(), "@stonkguru")
	require.NoError(t, err)
	require.Equal(t, "42", u.ID)
	require.Equal(t, "StonkGuru", u.Handle)
	require.Equal(t, 2019, u.CreatedAt.Year())

	_, err = c.LookupUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestTwitterFetchTweetsPaginatesAndCaps(t *testing.T) {
	c := testTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/users/42/tweets", r.URL.Path)
		require.Equal(t, "2021-01-01T00:00:00Z", r.URL.Query().Get("start_time"))
		if r.URL.Query().Get("pagination_token") == "" {
			writeJSON(t, w, map[string]interface{}{
				"data": []map[string]string{
					{"id": "3", "text": "$AMD ripping", "created_at": "2021-02-03T15:00:00.000Z"},
					{"id": "2", "text": "$AMD starter", "created_at": "2021-02-02T15:00:00.000Z"},
				},
				"meta": map[string]interface{}{"result_count": 2, "next_token": "p2"},
			})
			return
		}
		writeJSON(t, w, map[string]interface{}{
			"data": []map[string]string{
				{"id": "1", "text": "hello", "created_at": "2021-02-01T15:00:00.000Z"},
			},
			"meta": map[string]interface{}{"result_count": 1},
		})
	})

	since := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	tweets, err := c.FetchTweets(context.Background(), "42", since)
	require.NoError(t, err)
	require.Len(t, tweets, 3)
	require.Equal(t, "3", tweets[0].ExternalID)
	require.Equal(t, "$AMD ripping", tweets[0].Text)
	require.Equal(t, time.Date(2021, 2, 3, 15, 0, 0, 0, time.UTC), tweets[0].PostedAt)

	tweets, err = c.WithMaxTweets(2).FetchTweets(context.Background(), "42", since)
	require.NoError(t, err)
	require.Len(t, tweets, 2)
}

func TestTwitterSearchRecentResolvesAuthors(t *testing.T) {
	c := testTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		require.Equal(t, "$NIO", r.URL.Query().Get("query"))
		writeJSON(t, w, map[string]interface{}{
			"data": []map[string]string{
				{"id": "9", "author_id": "7", "text": "$NIO to the moon", "created_at": "2021-02-03T15:00:00.000Z"},
			},
			"includes": map[string]interface{}{"users": []map[string]string{{"id": "7", "username": "evbull"}}},
			"meta":     map[string]interface{}{"result_count": 1},
		})
	})

	posts, err := c.SearchRecent(context.Background(), "$NIO", time.Now().AddDate(0, 0, -14))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "evbull", posts[0].AuthorHandle)
}

func TestTwitterServerErrorIsReported(t *testing.T) {
	var calls int32
	c := testTwitter(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.FetchTweets(context.Background(), "42", time.Now())
	require.ErrorContains(t, err, "unexpected status 401")
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
