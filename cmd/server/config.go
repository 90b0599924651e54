package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	MySQLDSN      string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/tapledger?parseTime=true"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	IngestChannel string `env:"TAP_INGEST_CHANNEL" envDefault:"taps:ingest"`
	LiveChannel   string `env:"TAP_LIVE_CHANNEL" envDefault:"taps:live"`
	WorkerCount   int    `env:"WORKER_COUNT" envDefault:"10"`
	QueueSize     int    `env:"QUEUE_SIZE" envDefault:"10000"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
