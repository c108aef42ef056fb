package main

import (
	"errors"
	"net/url"
	"time"

	"github.com/fastprodman/topupledger/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" default:"8080"`
	LogLevel        string        `env:"APP_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"10s"`
	BaseURL         string        `env:"APP_BASE_URL"`

	Postgres  config.PostgresConfig
	Gateway   config.GatewayConfig
	Auth      config.AuthConfig
	Kafka     config.KafkaConfig
	RateLimit config.RateLimitConfig
}

func (c *apiConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("APP_BASE_URL must be an absolute URL")
	}

	return nil
}
