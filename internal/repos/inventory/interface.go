package inventory

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownRecord = errors.New("unknown inventory record")
	ErrUnknownKind   = errors.New("unknown marker kind")
)

// MarkerKind names a marker side-table.
type MarkerKind string

const (
	KindVerified MarkerKind = "verified"
	KindDisposed MarkerKind = "disposed"
)

// Attributes is the opaque JSON document attached to a record.
type Attributes map[string]any

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(a)
}

func (a *Attributes) Scan(src any) error {
	var data []byte

	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan attributes: unsupported type %T", src)
	}

	return json.Unmarshal(data, a)
}

type Record struct {
	ID         string     `db:"id" json:"id"`
	Region     string     `db:"region" json:"region"`
	Attributes Attributes `db:"attributes" json:"attributes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

type Marker struct {
	ID         uuid.UUID `db:"id" json:"-"`
	RecordID   string    `db:"record_id" json:"record_id"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
}

type Inventory interface {
	ListRecords(ctx context.Context) ([]Record, error)
	ListMarkers(ctx context.Context, kind MarkerKind) ([]Marker, error)
	// InsertMarker reports false without error when the record already
	// carries a marker of that kind.
	InsertMarker(ctx context.Context, kind MarkerKind, marker Marker) (bool, error)
}
