package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/pocketkid/internal/approval"
	"github.com/dukerupert/pocketkid/internal/auth"
	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/store"
)

type RequestHandler struct {
	service  *approval.Service
	requests *store.RequestStore
	logger   *slog.Logger
}

func NewRequestHandler(svc *approval.Service, rs *store.RequestStore, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{service: svc, requests: rs, logger: logger}
}

type submitRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	ChallengeID *int64 `json:"challenge_id"`
	Description string `json:"description"`
}

// Submit handles POST /api/requests. Children only.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if !auth.IsChild(r.Context()) {
		writeError(w, http.StatusForbidden, "only children submit requests")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	amount := decimal.Zero
	if req.Amount != "" {
		var err error
		amount, err = money.Parse(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	request, err := h.service.Submit(auth.UserID(r.Context()), req.Kind, amount, req.ChallengeID, req.Description)
	if err != nil {
		var ve *approval.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Reason)
			return
		}
		h.logger.Error("submit request", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to submit request")
		return
	}

	writeJSON(w, http.StatusCreated, request)
}

// List handles GET /api/requests. Parents see the pending queue; children see
// their own history.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)

	var (
		requests []model.Request
		err      error
	)
	if auth.IsParent(r.Context()) {
		requests, err = h.requests.ListPending(limit, offset)
	} else {
		requests, err = h.requests.ListByChild(auth.UserID(r.Context()), limit, offset)
	}
	if err != nil {
		h.logger.Error("list requests", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	if requests == nil {
		requests = []model.Request{}
	}
	writeJSON(w, http.StatusOK, requests)
}

type decisionRequest struct {
	Outcome string `json:"outcome"`
}

// Decide handles POST /api/requests/{id}/decision. Parents only.
func (h *RequestHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if !auth.IsParent(r.Context()) {
		writeError(w, http.StatusForbidden, "only parents decide requests")
		return
	}

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	decided, err := h.service.Decide(id, auth.UserID(r.Context()), req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrNotFound):
			writeError(w, http.StatusNotFound, "request not found")
		case errors.Is(err, store.ErrNotPending):
			writeError(w, http.StatusConflict, "request already decided")
		case errors.Is(err, store.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			var ve *approval.ValidationError
			if errors.As(err, &ve) {
				writeError(w, http.StatusBadRequest, ve.Reason)
				return
			}
			h.logger.Error("decide request", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to decide request")
		}
		return
	}

	writeJSON(w, http.StatusOK, decided)
}
