package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/pocketkid/internal/auth"
	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/store"
)

type ChallengeHandler struct {
	challenges *store.ChallengeStore
	logger     *slog.Logger
}

func NewChallengeHandler(cs *store.ChallengeStore, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{challenges: cs, logger: logger}
}

// List handles GET /api/challenges. Children only see active challenges;
// parents see everything that is not hidden.
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		challenges []model.Challenge
		err        error
	)
	if auth.IsParent(r.Context()) {
		limit, offset := parsePage(r)
		challenges, err = h.challenges.List(limit, offset)
	} else {
		challenges, err = h.challenges.ListActive()
	}
	if err != nil {
		h.logger.Error("list challenges", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list challenges")
		return
	}
	if challenges == nil {
		challenges = []model.Challenge{}
	}
	writeJSON(w, http.StatusOK, challenges)
}

type challengeRequest struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// Create handles POST /api/challenges. Parents only.
func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	challenge, err := h.challenges.Create(name, amount)
	if err != nil {
		h.logger.Error("create challenge", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create challenge")
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

type toggleRequest struct {
	Active bool `json:"active"`
}

// SetActive handles PUT /api/challenges/{id}/active.
func (h *ChallengeHandler) SetActive(w http.ResponseWriter, r *http.Request) {
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

	challenge, err := h.challenges.GetByID(id)
	if err != nil {
		h.logger.Error("challenge lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if challenge == nil || challenge.Hidden {
		writeError(w, http.StatusNotFound, "challenge not found")
		return
	}

	if err := h.challenges.SetActive(id, req.Active); err != nil {
		h.logger.Error("toggle challenge", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update challenge")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/challenges/{id}. A challenge still referenced by
// movements or requests cannot be removed; it is hidden instead so history
// keeps its link.
func (h *ChallengeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	challenge, err := h.challenges.GetByID(id)
	if err != nil {
		h.logger.Error("challenge lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if challenge == nil || challenge.Hidden {
		writeError(w, http.StatusNotFound, "challenge not found")
		return
	}

	deleted, err := h.challenges.Delete(id)
	if err != nil {
		h.logger.Error("delete challenge", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete challenge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted, "hidden": !deleted})
}
