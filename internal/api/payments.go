package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/auth"
	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/services/intents"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/fastprodman/topupledger/internal/services/webhook"
)

const (
	msgUpstreamUnavailable = "Payment service temporarily unavailable. Please try again in a few moments."
	msgPaymentFailed       = "Failed to create payment"
)

// WebhookHandler handles POST /payments/webhook.
//
// The gateway redelivers on any non-2xx answer, so 200 is only sent once the
// event is durably applied (or known to be a redelivery).
func (h *HandlerProvider) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !webhook.Verify(body, r.Header.Get(h.webhook.SignatureHeader), h.webhook.Secret) {
		metrics.RecordWebhookEvent("unverified", "rejected")
		h.logger.Warn("webhook signature rejected", zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusBadRequest, "invalid signature")

		return
	}

	ev, err := webhook.Normalize(body)
	if err != nil {
		metrics.RecordWebhookEvent("malformed", "rejected")
		h.logger.Warn("webhook payload rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid payload")

		return
	}

	_, err = h.ledger.Apply(r.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrUnknownAccount):
			// Retrying cannot help; acknowledge so the gateway stops.
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		default:
			writeError(w, http.StatusInternalServerError, "failed to apply event")
		}

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type createIntentRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type createIntentResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// CreateIntentHandler handles POST /payments/create.
func (h *HandlerProvider) CreateIntentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createIntentRequest

	err := h.decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	intent, err := h.intents.CreateIntent(r.Context(), id.Subject, *req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, intents.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "Invalid amount")
		case errors.Is(err, intents.ErrUpstreamUnavailable):
			writeError(w, http.StatusInternalServerError, msgUpstreamUnavailable)
		default:
			writeError(w, http.StatusInternalServerError, msgPaymentFailed)
		}

		return
	}

	writeJSON(w, http.StatusOK, createIntentResponse{URL: intent.CheckoutURL, ID: intent.ID})
}

type entryResponse struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	RawType   string    `json:"raw_type"`
	Amount    string    `json:"amount"`
	PaymentID string    `json:"payment_id"`
	CreatedAt time.Time `json:"created_at"`
}

type activityResponse struct {
	AccountID     string          `json:"account_id"`
	Balance       string          `json:"balance"`
	Entries       []entryResponse `json:"entries"`
	StatusSummary map[string]int  `json:"status_summary"`
}

// ActivityHandler handles GET /payments/activity?limit=N for the caller's
// own account.
func (h *HandlerProvider) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		limit = n
	}

	act, err := h.ledger.Activity(r.Context(), id.Subject, limit)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAccount) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}

		h.logger.Error("load activity", zap.String("account_id", id.Subject), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	resp := activityResponse{
		AccountID:     act.AccountID,
		Balance:       act.Balance.StringFixed(2),
		Entries:       make([]entryResponse, 0, len(act.Entries)),
		StatusSummary: act.StatusSummary,
	}

	for _, e := range act.Entries {
		resp.Entries = append(resp.Entries, entryResponse{
			ID:        e.ID.String(),
			EventType: e.EventType,
			RawType:   e.RawType,
			Amount:    e.Amount.StringFixed(2),
			PaymentID: e.ExternalPaymentID,
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
