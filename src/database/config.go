package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogLevel            string `envconfig:"LOG_LEVEL" default:"info"`  // Expected to hold values like "debug", "info", "warn", "error"
	LogFormat           string `envconfig:"LOG_FORMAT" default:"text"` // Expected to hold values like "json" or "text"
	Driver              string `envconfig:"DB_DRIVER" default:"sqlite"` // "sqlite" or "postgres"
	DatabaseURLMain     string `envconfig:"DATABASE_URL_MAIN" default:"fururank.db"`
	DatabaseURLReadOnly string `envconfig:"DATABASE_URL_READONLY"`
	GormLogLevel        int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
