package scheduler

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	UpdateCron string `envconfig:"UPDATE_CRON" default:"0 30 22 * * 1-5"`
	RunOnStart bool   `envconfig:"RUN_ON_START" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
