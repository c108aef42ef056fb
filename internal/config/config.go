package config

import (
	"errors"
	"strings"
	"time"
)

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"10"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

func (c PostgresConfig) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("PG_DSN is empty")
	}

	return nil
}

// GatewayConfig describes the hosted-checkout payment gateway.
type GatewayConfig struct {
	APIKey          string        `env:"GATEWAY_API_KEY"`
	WebhookSecret   string        `env:"GATEWAY_WEBHOOK_SECRET"`
	BaseURL         string        `env:"GATEWAY_BASE_URL" default:"https://api.commerce.coinbase.com"`
	APIVersion      string        `env:"GATEWAY_API_VERSION" default:"2018-03-22"`
	Currency        string        `env:"GATEWAY_CURRENCY" default:"USD"`
	Timeout         time.Duration `env:"GATEWAY_TIMEOUT" default:"10s"`
	MaxRetries      int           `env:"GATEWAY_MAX_RETRIES" default:"3"`
	RetryDelay      time.Duration `env:"GATEWAY_RETRY_DELAY" default:"2s"`
	RetryableStatus int           `env:"GATEWAY_RETRYABLE_STATUS" default:"526"`
	SignatureHeader string        `env:"GATEWAY_SIGNATURE_HEADER" default:"X-CC-Webhook-Signature"`
}

// Validate refuses to start with an unconfigured key or secret: an empty
// webhook secret would make every signature check fail (or be skippable).
func (c GatewayConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("GATEWAY_API_KEY is empty"))
	}

	if strings.TrimSpace(c.WebhookSecret) == "" {
		errs = append(errs, errors.New("GATEWAY_WEBHOOK_SECRET is empty"))
	}

	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("GATEWAY_MAX_RETRIES must be >= 1"))
	}

	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("GATEWAY_RETRY_DELAY must not be negative"))
	}

	return errors.Join(errs...)
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

func (c AuthConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("AUTH_JWT_SECRET is empty")
	}

	return nil
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" default:""`
	Topic   string   `env:"KAFKA_TOPIC" default:"balance_credited"`
}

// Enabled reports whether credit events should be published.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" default:"5"`
	Burst int     `env:"RATE_LIMIT_BURST" default:"10"`
}
