package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/services/intents"
	"github.com/fastprodman/topupledger/internal/services/inventory"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/fastprodman/topupledger/internal/services/webhook"
)

const maxBodyBytes = 1 << 20

type LedgerService interface {
	Apply(ctx context.Context, ev webhook.PaymentEvent) (ledger.Outcome, error)
	Activity(ctx context.Context, accountID string, limit int) (ledger.Activity, error)
}

type IntentService interface {
	CreateIntent(ctx context.Context, accountID string, amount decimal.Decimal) (intents.PaymentIntent, error)
}

type InventoryService interface {
	List(ctx context.Context, q inventory.Query) ([]inventory.Item, error)
	MarkRecords(ctx context.Context, action inventory.Action, ids []string, actorID, notes string) (inventory.MarkResult, error)
}

type WebhookConfig struct {
	Secret          []byte
	SignatureHeader string
}

// HandlerProvider exposes the HTTP handlers over the services.
type HandlerProvider struct {
	ledger    LedgerService
	intents   IntentService
	inventory InventoryService
	webhook   WebhookConfig
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewHandler(l LedgerService, i IntentService, inv InventoryService, wh WebhookConfig, logger *zap.Logger) *HandlerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HandlerProvider{
		ledger:    l,
		intents:   i,
		inventory: inv,
		webhook:   wh,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.Named("api"),
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		zap.L().Error("failed to encode JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var errEmptyBody = errors.New("empty body")

// decodeJSON reads a size-capped body, rejects unknown fields and runs the
// struct's validate tags.
func (h *HandlerProvider) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}

		return fmt.Errorf("invalid JSON: %w", err)
	}

	err = h.validate.Struct(dst)
	if err != nil {
		return fmt.Errorf("validation: %w", err)
	}

	return nil
}
