package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/topupledger/internal/repos/accounts/postgres"
	"github.com/fastprodman/topupledger/internal/repos/ledgerentries"
	pgentries "github.com/fastprodman/topupledger/internal/repos/ledgerentries/postgres"
	"github.com/fastprodman/topupledger/internal/services/webhook"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200

	summaryWindow = 24 * time.Hour
)

type Updater struct {
	db        *sql.DB
	accounts  accounts.Accounts
	entries   ledgerentries.LedgerEntries
	logger    *zap.Logger
	discard   DiscardSink
	publisher Publisher
	now       func() time.Time
}

type Option func(*Updater)

func WithDiscardSink(sink DiscardSink) Option {
	return func(u *Updater) { u.discard = sink }
}

// WithPublisher enables BalanceCredited notifications.
func WithPublisher(p Publisher) Option {
	return func(u *Updater) { u.publisher = p }
}

func New(db *sql.DB, logger *zap.Logger, opts ...Option) *Updater {
	return newUpdater(db, pgaccounts.New(db), pgentries.New(db), logger, opts...)
}

func newUpdater(db *sql.DB, accts accounts.Accounts, entries ledgerentries.LedgerEntries, logger *zap.Logger, opts ...Option) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}

	u := &Updater{
		db:       db,
		accounts: accts,
		entries:  entries,
		logger:   logger.Named("ledger"),
		now:      time.Now,
	}
	u.discard = logDiscardSink{logger: u.logger}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Apply records ev on its account exactly once, in a single DB transaction:
//
// 1) Lock the account row (FOR UPDATE); a missing row discards the event.
// 2) For confirmed events, skip if the payment was already credited.
// 3) Append the ledger entry (unique-violation -> duplicate).
// 4) For confirmed events, increase the balance.
//
// Redeliveries return OutcomeDuplicate with a nil error.
func (u *Updater) Apply(ctx context.Context, ev webhook.PaymentEvent) (Outcome, error) {
	log := u.logger.With(
		zap.String("account_id", ev.AccountID),
		zap.String("payment_id", ev.ExternalPaymentID),
		zap.String("event_type", string(ev.Type)),
	)

	var outcome Outcome

	err := pgutils.WithTx(ctx, u.db, func(tx *sql.Tx) error {
		_, err := u.accounts.LockAndGetBalance(tx, ev.AccountID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		credit := ev.Type.CreditsBalance()

		if credit {
			seen, err := u.entries.HasConfirmed(tx, ev.AccountID, ev.ExternalPaymentID)
			if err != nil {
				return fmt.Errorf("idempotency check: %w", err)
			}

			if seen {
				return ErrDuplicateEvent
			}
		}

		_, err = u.entries.Insert(tx, ledgerentries.Entry{
			AccountID:         ev.AccountID,
			EventType:         string(ev.Type),
			RawType:           ev.RawType,
			Amount:            ev.Amount,
			ExternalPaymentID: ev.ExternalPaymentID,
		})
		if err != nil {
			if errors.Is(err, ledgerentries.ErrDuplicateEntry) {
				return ErrDuplicateEvent
			}

			return fmt.Errorf("append entry: %w", err)
		}

		if !credit {
			outcome = OutcomeLogged
			return nil
		}

		if ev.Amount.IsPositive() {
			err = u.accounts.IncreaseBalance(tx, ev.AccountID, ev.Amount)
			if err != nil {
				return fmt.Errorf("increase balance: %w", err)
			}
		}

		outcome = OutcomeCredited

		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateEvent):
		outcome = OutcomeDuplicate
	case errors.Is(err, accounts.ErrAccountNotFound):
		outcome = OutcomeDiscarded
		err = fmt.Errorf("%w: %s", ErrUnknownAccount, ev.AccountID)
		u.discard.Discard(ctx, ev, err)
	default:
		outcome = OutcomeFailed
		err = fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	metrics.RecordWebhookEvent(string(ev.Type), string(outcome))

	switch outcome {
	case OutcomeFailed:
		log.Error("apply payment event", zap.Error(err))
		return outcome, err
	case OutcomeDiscarded:
		return outcome, err
	case OutcomeDuplicate:
		log.Info("payment event already applied")
		return outcome, nil
	case OutcomeCredited:
		metrics.RecordBalanceCredit()
		log.Info("balance credited", zap.String("amount", ev.Amount.String()))
		u.publishCredit(ctx, ev)
	default:
		if ev.Type == webhook.EventUnknown {
			log.Warn("unknown gateway event type logged", zap.String("raw_type", ev.RawType))
		} else {
			log.Info("payment status logged")
		}
	}

	return outcome, nil
}

// publishCredit is best effort: the balance is already committed and the
// gateway must still get its acknowledgement.
func (u *Updater) publishCredit(ctx context.Context, ev webhook.PaymentEvent) {
	if u.publisher == nil {
		return
	}

	err := u.publisher.Publish(ctx, ev.AccountID, CreditedEvent{
		AccountID:  ev.AccountID,
		PaymentID:  ev.ExternalPaymentID,
		Amount:     ev.Amount.StringFixed(2),
		Currency:   ev.Currency,
		CreditedAt: u.now().UTC(),
	})
	if err != nil {
		u.logger.Warn("publish balance credited",
			zap.String("account_id", ev.AccountID),
			zap.String("payment_id", ev.ExternalPaymentID),
			zap.Error(err),
		)
	}
}

// Activity returns the balance, up to limit most recent entries in
// chronological order, and a 24h count per gateway status.
func (u *Updater) Activity(ctx context.Context, accountID string, limit int) (Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	limit = min(limit, MaxActivityLimit)

	balance, err := u.accounts.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return Activity{}, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
		}

		return Activity{}, fmt.Errorf("%w: get balance: %w", ErrStoreFailure, err)
	}

	entries, err := u.entries.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return Activity{}, fmt.Errorf("%w: list entries: %w", ErrStoreFailure, err)
	}

	summary, err := u.entries.CountByTypeSince(ctx, accountID, u.now().Add(-summaryWindow))
	if err != nil {
		return Activity{}, fmt.Errorf("%w: status summary: %w", ErrStoreFailure, err)
	}

	return Activity{
		AccountID:     accountID,
		Balance:       balance,
		Entries:       entries,
		StatusSummary: summary,
	}, nil
}
