package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/topupledger/internal/repos/accounts"
)

func (r *accountsRepo) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := r.db.QueryRowContext(ctx, `
		SELECT balance
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, accounts.ErrAccountNotFound
		}

		return decimal.Decimal{}, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}
