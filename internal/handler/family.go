package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/pocketkid/internal/auth"
	"github.com/dukerupert/pocketkid/internal/ledger"
	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/store"
)

// FamilyHandler manages the parent-facing account surface: children, other
// parents, and the per-child ledger views.
type FamilyHandler struct {
	users   *store.UserStore
	wallets *store.WalletStore
	ledger  *ledger.Service
	logger  *slog.Logger
}

func NewFamilyHandler(us *store.UserStore, ws *store.WalletStore, ls *ledger.Service, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{users: us, wallets: ws, ledger: ls, logger: logger}
}

type childSummary struct {
	model.User
	Balance string `json:"balance"`
}

// ListChildren handles GET /api/children.
func (h *FamilyHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.users.ListByRole(model.RoleChild)
	if err != nil {
		h.logger.Error("list children", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list children")
		return
	}

	summaries := make([]childSummary, 0, len(children))
	for _, child := range children {
		balance := "0.00"
		if wallet, err := h.wallets.GetByChild(child.ID); err == nil && wallet != nil {
			balance = money.Format(wallet.Balance)
		}
		summaries = append(summaries, childSummary{User: child, Balance: balance})
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createChildRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Language       string `json:"language"`
	InitialBalance string `json:"initial_balance"`
}

// CreateChild handles POST /api/children. The wallet is created alongside the
// account; a non-zero initial balance is recorded as a movement so the ledger
// stays complete.
func (h *FamilyHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req createChildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if existing, err := h.users.GetByUsername(username); err != nil {
		h.logger.Error("child lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	} else if existing != nil {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	language := req.Language
	if language == "" {
		language = "en"
	}

	child, err := h.users.Create(username, string(hash), model.RoleChild, language)
	if err != nil {
		h.logger.Error("create child", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create child")
		return
	}

	if _, err := h.wallets.CreateForChild(child.ID); err != nil {
		h.logger.Error("create wallet", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create wallet")
		return
	}

	if req.InitialBalance != "" {
		amount, err := money.Parse(req.InitialBalance)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := h.ledger.InitialDeposit(auth.UserID(r.Context()), child.ID, amount); err != nil {
			h.logger.Error("initial deposit", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record initial balance")
			return
		}
	}

	writeJSON(w, http.StatusCreated, child)
}

// DeleteChild handles DELETE /api/children/{id}.
func (h *FamilyHandler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	child, err := h.users.GetByID(id)
	if err != nil {
		h.logger.Error("child lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if child == nil || child.Role != model.RoleChild {
		writeError(w, http.StatusNotFound, "child not found")
		return
	}

	if err := h.users.DeleteChild(id); err != nil {
		h.logger.Error("delete child", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete child")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetChildPassword handles POST /api/children/{id}/password.
func (h *FamilyHandler) ResetChildPassword(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	child, err := h.users.GetByID(id)
	if err != nil {
		h.logger.Error("child lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if child == nil || child.Role != model.RoleChild {
		writeError(w, http.StatusNotFound, "child not found")
		return
	}

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.users.UpdatePassword(id, string(hash)); err != nil {
		h.logger.Error("reset child password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChildMovements handles GET /api/children/{id}/movements.
func (h *FamilyHandler) ChildMovements(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	limit, offset := parsePage(r)
	movements, err := h.ledger.History(id, limit, offset)
	if err != nil {
		h.logger.Error("child movements", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load movements")
		return
	}
	if movements == nil {
		movements = []model.Movement{}
	}
	writeJSON(w, http.StatusOK, movements)
}

type manualMovementRequest struct {
	Direction   string `json:"direction"`
	Amount      string `json:"amount"`
	ChallengeID *int64 `json:"challenge_id"`
	Description string `json:"description"`
}

// ManualMovement handles POST /api/children/{id}/movements: a parent credits
// or debits a child's wallet directly, no request involved.
func (h *FamilyHandler) ManualMovement(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req manualMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	movement, err := h.ledger.ManualMovement(auth.UserID(r.Context()), id, req.Direction, amount, req.ChallengeID, req.Description)
	if err != nil {
		var ve *ledger.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Reason)
		case errors.Is(err, store.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			h.logger.Error("manual movement", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to apply movement")
		}
		return
	}

	writeJSON(w, http.StatusCreated, movement)
}

// ChildReconcile handles GET /api/children/{id}/reconcile.
func (h *FamilyHandler) ChildReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	result, err := h.ledger.Reconcile(id)
	if err != nil {
		h.logger.Error("reconcile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reconcile wallet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListParents handles GET /api/parents.
func (h *FamilyHandler) ListParents(w http.ResponseWriter, r *http.Request) {
	parents, err := h.users.ListByRole(model.RoleParent)
	if err != nil {
		h.logger.Error("list parents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list parents")
		return
	}
	if parents == nil {
		parents = []model.User{}
	}
	writeJSON(w, http.StatusOK, parents)
}

// CreateParent handles POST /api/parents.
func (h *FamilyHandler) CreateParent(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if existing, err := h.users.GetByUsername(username); err != nil {
		h.logger.Error("parent lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	} else if existing != nil {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	language := req.Language
	if language == "" {
		language = "en"
	}

	parent, err := h.users.Create(username, string(hash), model.RoleParent, language)
	if err != nil {
		h.logger.Error("create parent", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create parent")
		return
	}
	writeJSON(w, http.StatusCreated, parent)
}

// DeleteParent handles DELETE /api/parents/{id}. A parent cannot delete
// themselves and the last parent account cannot be removed.
func (h *FamilyHandler) DeleteParent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if id == auth.UserID(r.Context()) {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	parent, err := h.users.GetByID(id)
	if err != nil {
		h.logger.Error("parent lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if parent == nil || parent.Role != model.RoleParent {
		writeError(w, http.StatusNotFound, "parent not found")
		return
	}

	count, err := h.users.CountByRole(model.RoleParent)
	if err != nil {
		h.logger.Error("count parents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if count <= 1 {
		writeError(w, http.StatusBadRequest, "at least one parent must remain")
		return
	}

	if err := h.users.DeleteParent(id); err != nil {
		h.logger.Error("delete parent", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete parent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
