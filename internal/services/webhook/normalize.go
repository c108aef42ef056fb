package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidField     = errors.New("invalid field value")
)

type payload struct {
	Type      string          `json:"type"`
	CreatedAt json.RawMessage `json:"created_at"`
	Data      struct {
		ID       string `json:"id"`
		Metadata struct {
			UserID string `json:"user_id"`
		} `json:"metadata"`
		Pricing struct {
			Local struct {
				Amount   json.RawMessage `json:"amount"`
				Currency string          `json:"currency"`
			} `json:"local"`
		} `json:"pricing"`
	} `json:"data"`
}

// Normalize decodes a gateway notification into a PaymentEvent. The amount
// may be a JSON number or a numeric string, as the gateway sends both.
func Normalize(rawBody []byte) (PaymentEvent, error) {
	var p payload

	err := json.Unmarshal(rawBody, &p)
	if err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	accountID := strings.TrimSpace(p.Data.Metadata.UserID)
	if accountID == "" {
		return PaymentEvent{}, fmt.Errorf("%w: data.metadata.user_id", ErrMissingField)
	}

	paymentID := strings.TrimSpace(p.Data.ID)
	if paymentID == "" {
		return PaymentEvent{}, fmt.Errorf("%w: data.id", ErrMissingField)
	}

	amount, err := parseAmount(p.Data.Pricing.Local.Amount)
	if err != nil {
		return PaymentEvent{}, err
	}

	rawType := normalizeRawType(p.Type)
	if rawType == "" {
		return PaymentEvent{}, fmt.Errorf("%w: type", ErrMissingField)
	}

	return PaymentEvent{
		ExternalPaymentID: paymentID,
		Type:              ParseEventType(rawType),
		RawType:           rawType,
		Amount:            amount,
		Currency:          strings.ToUpper(p.Data.Pricing.Local.Currency),
		AccountID:         accountID,
		RawTimestamp:      parseTimestamp(p.CreatedAt),
	}, nil
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return decimal.Decimal{}, fmt.Errorf("%w: data.pricing.local.amount", ErrMissingField)
	}

	var amount decimal.Decimal

	err := amount.UnmarshalJSON(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %s", ErrInvalidField, raw)
	}

	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative amount %s", ErrInvalidField, amount)
	}

	// Balances are stored with cents precision; round here so the credited
	// amount, the ledger entry and the published event agree.
	return amount.Round(moneyScale), nil
}

const moneyScale = 2

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads created_at on a best-effort basis: an RFC 3339 or
// plain datetime string, or unix seconds. Anything else yields the zero time.
func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var s string

	err := json.Unmarshal(raw, &s)
	if err != nil {
		var secs json.Number

		err = json.Unmarshal(raw, &secs)
		if err != nil {
			return time.Time{}
		}

		n, err := secs.Int64()
		if err != nil {
			return time.Time{}
		}

		return time.Unix(n, 0).UTC()
	}

	s = strings.TrimSpace(s)

	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.UTC()
		}
	}

	return time.Time{}
}

func normalizeRawType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(t, "charge:")
}
