package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/internal/repos/inventory"
)

var _ inventory.Inventory = (*inventoryRepo)(nil)

type inventoryRepo struct{ db *sqlx.DB }

func New(db *sql.DB) *inventoryRepo {
	return newRepo(sqlx.NewDb(db, pgutils.DriverName))
}

func newRepo(db *sqlx.DB) *inventoryRepo {
	return &inventoryRepo{db: db}
}

func markerTable(kind inventory.MarkerKind) (string, error) {
	switch kind {
	case inventory.KindVerified:
		return "verified_markers", nil
	case inventory.KindDisposed:
		return "disposed_markers", nil
	default:
		return "", fmt.Errorf("%w: %q", inventory.ErrUnknownKind, kind)
	}
}

// ListRecords returns every record, newest first.
func (r *inventoryRepo) ListRecords(ctx context.Context) ([]inventory.Record, error) {
	var records []inventory.Record

	err := r.db.SelectContext(ctx, &records, `
		SELECT id, region, attributes, created_at
		FROM inventory_records
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("select inventory records: %w", err)
	}

	return records, nil
}

func (r *inventoryRepo) ListMarkers(ctx context.Context, kind inventory.MarkerKind) ([]inventory.Marker, error) {
	table, err := markerTable(kind)
	if err != nil {
		return nil, err
	}

	var markers []inventory.Marker

	err = r.db.SelectContext(ctx, &markers, `
		SELECT id, record_id, actor_id, occurred_at, notes
		FROM `+table+`
		ORDER BY occurred_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	return markers, nil
}

func (r *inventoryRepo) InsertMarker(ctx context.Context, kind inventory.MarkerKind, marker inventory.Marker) (bool, error) {
	table, err := markerTable(kind)
	if err != nil {
		return false, err
	}

	if marker.ID == uuid.Nil {
		marker.ID = uuid.New()
	}

	if marker.OccurredAt.IsZero() {
		marker.OccurredAt = time.Now().UTC()
	}

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO `+table+` (id, record_id, actor_id, occurred_at, notes)
		VALUES (:id, :record_id, :actor_id, :occurred_at, :notes)
		ON CONFLICT (record_id) DO NOTHING
	`, marker)
	if err != nil {
		if pgutils.IsForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: %s", inventory.ErrUnknownRecord, marker.RecordID)
		}

		return false, fmt.Errorf("insert into %s: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n == 1, nil
}
