// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Package config loads the service configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven service configuration.
type Config struct {
	AppEnv        string        `env:"APP_ENV" envDefault:"development"`
	Addr          string        `env:"ADDR" envDefault:":8080"`
	RedisAddr     string        `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	MySQLDSN      string        `env:"MYSQL_DSN"`
	WebhookSecret string        `env:"WEBHOOK_SECRET,notEmpty"`
	QueueName     string        `env:"QUEUE_NAME" envDefault:"docpipe"`
	Concurrency   int           `env:"WORKER_CONCURRENCY" envDefault:"5"`
	BatchCeiling  int64         `env:"BATCH_CONCURRENCY" envDefault:"8"`
	Visibility    time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"5m"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"10m"`
	ProcessedTTL  time.Duration `env:"PROCESSED_TTL" envDefault:"168h"`
}

// Load parses the configuration from the process environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
