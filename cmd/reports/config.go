package reports

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PrintRows int `envconfig:"REPORT_ROWS" default:"30"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
