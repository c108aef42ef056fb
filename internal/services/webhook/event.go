package webhook

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the closed set of gateway charge states the ledger knows about.
type EventType string

const (
	EventCreated   EventType = "created"
	EventPending   EventType = "pending"
	EventConfirmed EventType = "confirmed"
	EventDelayed   EventType = "delayed"
	EventFailed    EventType = "failed"

	// EventUnknown covers any type the gateway may add later. Such events are
	// logged, never rejected.
	EventUnknown EventType = "unknown"
)

// ParseEventType maps a gateway type string ("charge:confirmed", "CONFIRMED",
// ...) into the enumeration.
func ParseEventType(raw string) EventType {
	t := normalizeRawType(raw)

	switch EventType(t) {
	case EventCreated, EventPending, EventConfirmed, EventDelayed, EventFailed:
		return EventType(t)
	default:
		return EventUnknown
	}
}

// CreditsBalance reports whether applying the event moves the balance.
func (t EventType) CreditsBalance() bool {
	return t == EventConfirmed
}

// PaymentEvent is a normalized gateway notification. It only lives for the
// duration of one webhook delivery.
type PaymentEvent struct {
	ExternalPaymentID string
	Type              EventType
	// RawType is the lower-cased gateway type with any "charge:" prefix
	// removed. It keeps unknown types distinguishable in the log.
	RawType      string
	Amount       decimal.Decimal
	Currency     string
	AccountID    string
	RawTimestamp time.Time
}
