package intents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/clients/gateway"
	"github.com/fastprodman/topupledger/internal/infra/metrics"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrUpstreamUnavailable = errors.New("payment gateway temporarily unavailable")
	ErrUpstreamRejected    = errors.New("payment gateway rejected the request")
	ErrMalformedResponse   = errors.New("payment gateway response has no checkout url")
)

const (
	DefaultMaxAttempts     = 3
	DefaultRetryDelay      = 2 * time.Second
	DefaultRetryableStatus = 526

	chargeName        = "Add Funds"
	chargeDescription = "Add funds to your account balance"
	returnPath        = "/shop"
)

// ChargeCreator is satisfied by *gateway.Client.
type ChargeCreator interface {
	CreateCharge(ctx context.Context, req gateway.ChargeRequest) (gateway.Charge, error)
}

type Config struct {
	MaxAttempts     int
	RetryDelay      time.Duration
	RetryableStatus int
	Currency        string
	// AppBaseURL is where the gateway sends the buyer back to.
	AppBaseURL string
}

// PaymentIntent is not stored: its outcome arrives later as a webhook.
type PaymentIntent struct {
	ID              string
	CheckoutURL     string
	RequestedAmount decimal.Decimal
	AccountID       string
}

type Initiator struct {
	gw     ChargeCreator
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(gw ChargeCreator, cfg Config, logger *zap.Logger) *Initiator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	if cfg.RetryableStatus == 0 {
		cfg.RetryableStatus = DefaultRetryableStatus
	}

	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Initiator{
		gw:     gw,
		cfg:    cfg,
		logger: logger.Named("intents"),
		sleep:  sleepCtx,
	}
}

// CreateIntent asks the gateway for a hosted checkout. Only the retryable
// status is retried, up to MaxAttempts calls with RetryDelay between them;
// anything else aborts at once. Cancelling ctx stops the wait.
func (i *Initiator) CreateIntent(ctx context.Context, accountID string, amount decimal.Decimal) (PaymentIntent, error) {
	// The gateway charges whole cents; a finer amount would be rounded away.
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return PaymentIntent{}, ErrInvalidAmount
	}

	if strings.TrimSpace(accountID) == "" {
		return PaymentIntent{}, errors.New("account id is required")
	}

	returnURL := strings.TrimRight(i.cfg.AppBaseURL, "/") + returnPath
	req := gateway.ChargeRequest{
		Name:        chargeName,
		Description: chargeDescription,
		LocalPrice: gateway.Money{
			Amount:   amount.StringFixed(2),
			Currency: i.cfg.Currency,
		},
		PricingType: gateway.PricingFixed,
		RedirectURL: returnURL,
		CancelURL:   returnURL,
		Metadata:    map[string]string{"user_id": accountID},
	}

	log := i.logger.With(zap.String("account_id", accountID), zap.String("amount", req.LocalPrice.Amount))

	var lastErr error

	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			err := i.sleep(ctx, i.cfg.RetryDelay)
			if err != nil {
				return PaymentIntent{}, fmt.Errorf("wait before attempt %d: %w", attempt, err)
			}
		}

		charge, err := i.gw.CreateCharge(ctx, req)
		if err == nil {
			metrics.RecordIntentAttempt("success")
			log.Info("payment intent created", zap.String("charge_id", charge.ID), zap.Int("attempt", attempt))

			return PaymentIntent{
				ID:              charge.ID,
				CheckoutURL:     charge.HostedURL,
				RequestedAmount: amount,
				AccountID:       accountID,
			}, nil
		}

		lastErr = err

		var se *gateway.StatusError

		switch {
		case errors.As(err, &se) && se.Code == i.cfg.RetryableStatus:
			metrics.RecordIntentAttempt("retryable")
			log.Warn("gateway temporarily unavailable", zap.Int("attempt", attempt), zap.Int("status", se.Code))

			continue
		case errors.Is(err, gateway.ErrMalformedCharge):
			metrics.RecordIntentAttempt("malformed")
			log.Error("gateway response without checkout url", zap.Error(err))

			return PaymentIntent{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		case ctx.Err() != nil:
			metrics.RecordIntentAttempt("cancelled")

			return PaymentIntent{}, fmt.Errorf("create charge: %w", ctx.Err())
		default:
			metrics.RecordIntentAttempt("rejected")
			log.Error("gateway rejected charge", zap.Int("attempt", attempt), zap.Error(err))

			return PaymentIntent{}, fmt.Errorf("%w: %w", ErrUpstreamRejected, err)
		}
	}

	log.Error("gateway retries exhausted", zap.Int("attempts", i.cfg.MaxAttempts), zap.Error(lastErr))

	return PaymentIntent{}, fmt.Errorf("%w after %d attempts: %w", ErrUpstreamUnavailable, i.cfg.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
