package ledgerentries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/internal/repos/ledgerentries"
)

const confirmedType = "confirmed"

var _ ledgerentries.LedgerEntries = (*entriesRepo)(nil)

type entriesRepo struct{ db *sql.DB }

func New(db *sql.DB) *entriesRepo {
	return &entriesRepo{db: db}
}

func (r *entriesRepo) HasConfirmed(tx *sql.Tx, accountID, paymentID string) (bool, error) {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS (
			SELECT 1
			FROM ledger_entries
			WHERE account_id = $1
			  AND external_payment_id = $2
			  AND event_type = $3
		)
	`, accountID, paymentID, confirmedType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check confirmed entry: %w", err)
	}

	return exists, nil
}

// Insert appends an entry. A zero ID is replaced with a fresh UUID; the
// stored creation time is returned on the entry.
func (r *entriesRepo) Insert(tx *sql.Tx, entry ledgerentries.Entry) (ledgerentries.Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	err := tx.QueryRow(`
		INSERT INTO ledger_entries (id, account_id, event_type, raw_type, amount, external_payment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, entry.ID, entry.AccountID, entry.EventType, entry.RawType, entry.Amount, entry.ExternalPaymentID).
		Scan(&entry.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return ledgerentries.Entry{}, ledgerentries.ErrDuplicateEntry
		}

		return ledgerentries.Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	return entry, nil
}

// ListByAccount returns the latest limit entries in chronological order.
func (r *entriesRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]ledgerentries.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, event_type, raw_type, amount, external_payment_id, created_at
		FROM (
			SELECT id, account_id, event_type, raw_type, amount, external_payment_id, created_at, seq
			FROM ledger_entries
			WHERE account_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) latest
		ORDER BY seq ASC
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []ledgerentries.Entry

	for rows.Next() {
		var e ledgerentries.Entry

		err = rows.Scan(&e.ID, &e.AccountID, &e.EventType, &e.RawType, &e.Amount, &e.ExternalPaymentID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}

		out = append(out, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return out, nil
}

// CountByTypeSince counts entries per raw gateway type created at or after since.
func (r *entriesRepo) CountByTypeSince(ctx context.Context, accountID string, since time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT raw_type, COUNT(*)
		FROM ledger_entries
		WHERE account_id = $1
		  AND created_at >= $2
		GROUP BY raw_type
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("query status summary: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	out := make(map[string]int)

	for rows.Next() {
		var (
			rawType string
			count   int
		)

		err = rows.Scan(&rawType, &count)
		if err != nil {
			return nil, fmt.Errorf("scan status summary: %w", err)
		}

		out[rawType] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate status summary: %w", err)
	}

	return out, nil
}
