package accounts

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/topupledger/internal/repos/accounts"
)

// LockAndGetBalance takes the row lock that serialises every ledger apply for
// one account until tx ends.
func (r *accountsRepo) LockAndGetBalance(tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := tx.QueryRow(`
		SELECT balance
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, accounts.ErrAccountNotFound
		}

		return decimal.Decimal{}, fmt.Errorf("lock/get balance: %w", err)
	}

	return balance, nil
}
