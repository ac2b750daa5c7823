package tracker

import (
	"fmt"
	"time"

	"fururank/src/batch"
	"fururank/src/ledger"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SilenceDays        int `envconfig:"SILENCE_DAYS" default:"45"`
	ExitLagDays        int `envconfig:"EXIT_LAG_DAYS" default:"3"`
	PriceToleranceDays int `envconfig:"PRICE_TOLERANCE_DAYS" default:"10"`
	FillToleranceDays  int `envconfig:"FILL_TOLERANCE_DAYS" default:"5"`

	ChunkSize      int           `envconfig:"CHUNK_SIZE" default:"100"`
	Workers        int           `envconfig:"WORKERS" default:"4"`
	PriceChunkSize int           `envconfig:"PRICE_CHUNK_SIZE" default:"50"`
	RetryDelay     time.Duration `envconfig:"RETRY_DELAY" default:"2s"`

	HistoryCutoffDays int `envconfig:"HISTORY_CUTOFF_DAYS" default:"1095"`
	MaxTotalTweets    int `envconfig:"MAX_TOTAL_TWEETS" default:"12000"`
	MaxSymbolLength   int `envconfig:"MAX_SYMBOL_LENGTH" default:"6"`

	MinMonthsOld          float64 `envconfig:"MIN_MONTHS_OLD" default:"9"`
	MinTweetsPerMonth     float64 `envconfig:"MIN_TWEETS_PER_MONTH" default:"10"`
	MaxTweetsPerMonth     float64 `envconfig:"MAX_TWEETS_PER_MONTH" default:"500"`
	MinTickersPerMonth    float64 `envconfig:"MIN_TICKERS_PER_MONTH" default:"1"`
	MaxTickersPerMonth    float64 `envconfig:"MAX_TICKERS_PER_MONTH" default:"15"`
	ValidationCutoffDays  int     `envconfig:"VALIDATION_CUTOFF_DAYS" default:"365"`
	DiscoveryLookbackDays int     `envconfig:"DISCOVERY_LOOKBACK_DAYS" default:"14"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		SilenceDays:           45,
		ExitLagDays:           3,
		PriceToleranceDays:    10,
		FillToleranceDays:     5,
		ChunkSize:             100,
		Workers:               4,
		PriceChunkSize:        50,
		RetryDelay:            2 * time.Second,
		HistoryCutoffDays:     1095,
		MaxTotalTweets:        12000,
		MaxSymbolLength:       6,
		MinMonthsOld:          9,
		MinTweetsPerMonth:     10,
		MaxTweetsPerMonth:     500,
		MinTickersPerMonth:    1,
		MaxTickersPerMonth:    15,
		ValidationCutoffDays:  365,
		DiscoveryLookbackDays: 14,
	}
}

func (c Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		SilenceDays:   c.SilenceDays,
		ExitLagDays:   c.ExitLagDays,
		ToleranceDays: c.PriceToleranceDays,
	}
}

func (c Config) BatchOptions() batch.Options {
	return batch.Options{ChunkSize: c.ChunkSize, Concurrency: c.Workers}
}

func (c Config) PriceBatchOptions() batch.Options {
	return batch.Options{ChunkSize: c.PriceChunkSize, Concurrency: c.Workers}
}

func (c Config) ValidationRules() ValidationRules {
	return ValidationRules{
		MinMonthsOld:       c.MinMonthsOld,
		MinTweetsPerMonth:  c.MinTweetsPerMonth,
		MaxTweetsPerMonth:  c.MaxTweetsPerMonth,
		MinTickersPerMonth: c.MinTickersPerMonth,
		MaxTickersPerMonth: c.MaxTickersPerMonth,
	}
}
