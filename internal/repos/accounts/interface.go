package accounts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrAccountNotFound = errors.New("account not found")

// Accounts owns the balance column. Balances only ever grow here; there is
// no decrement path.
type Accounts interface {
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	LockAndGetBalance(tx *sql.Tx, accountID string) (decimal.Decimal, error)
	IncreaseBalance(tx *sql.Tx, accountID string, amount decimal.Decimal) error
}
