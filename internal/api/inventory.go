package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/auth"
	"github.com/fastprodman/topupledger/internal/repos/inventory"
	invsvc "github.com/fastprodman/topupledger/internal/services/inventory"
)

type markerResponse struct {
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Notes      *string   `json:"notes,omitempty"`
}

type recordResponse struct {
	ID         string               `json:"id"`
	Region     string               `json:"region"`
	Attributes inventory.Attributes `json:"attributes,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	State      invsvc.State         `json:"state"`
	Marker     *markerResponse      `json:"marker,omitempty"`
}

// ListRecordsHandler handles GET /inventory/records?view=&region=&sort=&dir=.
func (h *HandlerProvider) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	q, err := invsvc.ParseQuery(qs.Get("view"), qs.Get("region"), qs.Get("sort"), qs.Get("dir"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.inventory.List(r.Context(), q)
	if err != nil {
		h.logger.Error("list inventory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	out := make([]recordResponse, 0, len(items))

	for _, it := range items {
		rr := recordResponse{
			ID:         it.Record.ID,
			Region:     it.Record.Region,
			Attributes: it.Record.Attributes,
			CreatedAt:  it.Record.CreatedAt,
			State:      it.State,
		}

		if it.Marker != nil {
			rr.Marker = &markerResponse{
				ActorID:    it.Marker.ActorID,
				OccurredAt: it.Marker.OccurredAt,
				Notes:      it.Marker.Notes,
			}
		}

		out = append(out, rr)
	}

	writeJSON(w, http.StatusOK, map[string]any{"view": q.View, "records": out})
}

type markRequest struct {
	Action    string   `json:"action" validate:"required,oneof=verify dispose"`
	RecordIDs []string `json:"record_ids" validate:"required,min=1,max=500,dive,required"`
	Notes     string   `json:"notes" validate:"max=1000"`
}

type markResultResponse struct {
	RecordID string              `json:"record_id"`
	Result   invsvc.RecordResult `json:"result"`
}

type markResponse struct {
	Action  invsvc.Action        `json:"action"`
	Marked  int                  `json:"marked"`
	Results []markResultResponse `json:"results"`
}

// MarkRecordsHandler handles POST /inventory/markers. A partial write answers
// 207 with the per-record results so the operator can retry the failures.
func (h *HandlerProvider) MarkRecordsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req markRequest

	err := h.decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid marker request")
		return
	}

	res, err := h.inventory.MarkRecords(r.Context(), invsvc.Action(req.Action), req.RecordIDs, id.Subject, req.Notes)

	status := http.StatusOK

	switch {
	case err == nil:
	case errors.Is(err, invsvc.ErrPartialMarkerWrite):
		status = http.StatusMultiStatus
	case errors.Is(err, invsvc.ErrMarkFailed):
		status = http.StatusInternalServerError
	case errors.Is(err, invsvc.ErrNoRecords), errors.Is(err, invsvc.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.Error("mark records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	resp := markResponse{
		Action:  res.Action,
		Marked:  res.Count(),
		Results: make([]markResultResponse, 0, len(res.Outcomes)),
	}

	for _, o := range res.Outcomes {
		resp.Results = append(resp.Results, markResultResponse{RecordID: o.RecordID, Result: o.Result})
	}

	writeJSON(w, status, resp)
}
