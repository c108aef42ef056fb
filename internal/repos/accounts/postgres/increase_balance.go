package accounts

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/topupledger/internal/repos/accounts"
)

func (r *accountsRepo) IncreaseBalance(tx *sql.Tx, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("amount must be > 0")
	}

	res, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, accountID, amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return accounts.ErrAccountNotFound
	}

	return nil
}
