package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/repos/ledgerentries"
	"github.com/fastprodman/topupledger/internal/services/webhook"
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrStoreFailure   = errors.New("ledger store failure")

	// ErrDuplicateEvent never leaves Apply; redeliveries are reported as
	// OutcomeDuplicate.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// Outcome tells the caller what Apply did with an event.
type Outcome string

const (
	OutcomeCredited  Outcome = "credited"
	OutcomeLogged    Outcome = "logged"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
)

// DiscardSink receives events that can never be applied. A dead-letter
// store can be plugged in here.
type DiscardSink interface {
	Discard(ctx context.Context, event webhook.PaymentEvent, reason error)
}

// Publisher is satisfied by kafkapub.Publisher.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// CreditedEvent is published after a confirmed payment has been committed.
type CreditedEvent struct {
	AccountID  string    `json:"account_id"`
	PaymentID  string    `json:"payment_id"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency,omitempty"`
	CreditedAt time.Time `json:"credited_at"`
}

// Activity is an account's balance with its recent log and the number of
// entries per gateway status over the last 24 hours.
type Activity struct {
	AccountID     string
	Balance       decimal.Decimal
	Entries       []ledgerentries.Entry
	StatusSummary map[string]int
}

type logDiscardSink struct {
	logger *zap.Logger
}

func (s logDiscardSink) Discard(_ context.Context, event webhook.PaymentEvent, reason error) {
	s.logger.Warn("payment event discarded",
		zap.String("account_id", event.AccountID),
		zap.String("payment_id", event.ExternalPaymentID),
		zap.String("event_type", string(event.Type)),
		zap.String("raw_type", event.RawType),
		zap.String("amount", event.Amount.String()),
		zap.Error(reason),
	)
}
