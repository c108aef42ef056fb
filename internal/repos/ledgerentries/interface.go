package ledgerentries

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDuplicateEntry is returned by Insert when one of the idempotency
// indexes rejects the row.
var ErrDuplicateEntry = errors.New("duplicate ledger entry")

// Entry is one immutable line of an account's activity log.
type Entry struct {
	ID                uuid.UUID
	AccountID         string
	EventType         string
	RawType           string
	Amount            decimal.Decimal
	ExternalPaymentID string
	CreatedAt         time.Time
}

type LedgerEntries interface {
	HasConfirmed(tx *sql.Tx, accountID, paymentID string) (bool, error)
	Insert(tx *sql.Tx, entry Entry) (Entry, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Entry, error)
	CountByTypeSince(ctx context.Context, accountID string, since time.Time) (map[string]int, error)
}
