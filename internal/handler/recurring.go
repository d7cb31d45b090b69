package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/pocketkid/internal/auth"
	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/store"
)

type RecurringHandler struct {
	configs *store.RecurringStore
	users   *store.UserStore
	logger  *slog.Logger
}

func NewRecurringHandler(rs *store.RecurringStore, us *store.UserStore, logger *slog.Logger) *RecurringHandler {
	return &RecurringHandler{configs: rs, users: us, logger: logger}
}

// List handles GET /api/recurring.
func (h *RecurringHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	configs, err := h.configs.List(limit, offset)
	if err != nil {
		h.logger.Error("list recurring configs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list recurring movements")
		return
	}
	if configs == nil {
		configs = []model.RecurringConfig{}
	}
	writeJSON(w, http.StatusOK, configs)
}

type createRecurringRequest struct {
	ChildID     int64  `json:"child_id"`
	Direction   string `json:"direction"`
	Amount      string `json:"amount"`
	Frequency   string `json:"frequency"`
	Description string `json:"description"`
	ChallengeID *int64 `json:"challenge_id"`
	StartAt     string `json:"start_at"`
}

// Create handles POST /api/recurring. StartAt is RFC 3339; it anchors the
// cadence and is the first occurrence. Empty means now.
func (h *RecurringHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch req.Direction {
	case model.DirectionDeposit, model.DirectionWithdrawal:
	default:
		writeError(w, http.StatusBadRequest, "direction must be deposit or withdrawal")
		return
	}

	switch req.Frequency {
	case model.FreqDaily, model.FreqWeekly, model.FreqBiweekly, model.FreqMonthly:
	default:
		writeError(w, http.StatusBadRequest, "frequency must be daily, weekly, biweekly or monthly")
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	child, err := h.users.GetByID(req.ChildID)
	if err != nil {
		h.logger.Error("child lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if child == nil || child.Role != model.RoleChild {
		writeError(w, http.StatusBadRequest, "child not found")
		return
	}

	startAt := time.Now().UTC()
	if req.StartAt != "" {
		startAt, err = time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_at must be RFC 3339")
			return
		}
		startAt = startAt.UTC()
	}

	config, err := h.configs.Create(req.ChildID, req.Direction, amount, req.Frequency, req.Description, req.ChallengeID, startAt, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("create recurring config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create recurring movement")
		return
	}
	writeJSON(w, http.StatusCreated, config)
}

// SetActive handles PUT /api/recurring/{id}/active.
func (h *RecurringHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	config, err := h.configs.GetByID(id)
	if err != nil {
		h.logger.Error("recurring lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if config == nil || config.Hidden {
		writeError(w, http.StatusNotFound, "recurring movement not found")
		return
	}

	if err := h.configs.SetActive(id, req.Active); err != nil {
		h.logger.Error("toggle recurring config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update recurring movement")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/recurring/{id}.
func (h *RecurringHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	config, err := h.configs.GetByID(id)
	if err != nil {
		h.logger.Error("recurring lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if config == nil {
		writeError(w, http.StatusNotFound, "recurring movement not found")
		return
	}

	if err := h.configs.Delete(id); err != nil {
		h.logger.Error("delete recurring config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete recurring movement")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
