package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TwitterBaseURL     string  `envconfig:"TWITTER_BASE_URL" default:"https://api.twitter.com"`
	TwitterBearerToken string  `envconfig:"TWITTER_BEARER_TOKEN"`
	TwitterRatePerSec  float64 `envconfig:"TWITTER_RATE_PER_SEC" default:"1"`
	TwitterPageSize    int     `envconfig:"TWITTER_PAGE_SIZE" default:"100"`

	YahooBaseURL string `envconfig:"YAHOO_BASE_URL" default:"https://query1.finance.yahoo.com"`

	BinanceBaseURL string   `envconfig:"BINANCE_BASE_URL" default:"https://api.binance.com"`
	CryptoSymbols  []string `envconfig:"CRYPTO_SYMBOLS" default:"BTC,ETH,SOL,ADA,XRP,DOGE,DOT,LTC"`
	CryptoQuote    string   `envconfig:"CRYPTO_QUOTE" default:"USDT"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
