package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/pocketkid/internal/auth"
	"github.com/dukerupert/pocketkid/internal/ledger"
	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/store"
)

type WalletHandler struct {
	wallets *store.WalletStore
	service *ledger.Service
	logger  *slog.Logger
}

func NewWalletHandler(ws *store.WalletStore, svc *ledger.Service, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: ws, service: svc, logger: logger}
}

type walletResponse struct {
	ID        int64            `json:"id"`
	ChildID   int64            `json:"child_id"`
	Balance   string           `json:"balance"`
	Movements []model.Movement `json:"movements"`
}

// Get handles GET /api/wallet: the child's own wallet with a page of
// movements, newest first.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !auth.IsChild(r.Context()) {
		writeError(w, http.StatusForbidden, "parents read wallets through /api/children")
		return
	}

	wallet, err := h.wallets.GetOrCreateByChild(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get wallet", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load wallet")
		return
	}

	limit, offset := parsePage(r)
	movements, err := h.wallets.History(wallet.ID, limit, offset)
	if err != nil {
		h.logger.Error("wallet history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load movements")
		return
	}
	if movements == nil {
		movements = []model.Movement{}
	}

	writeJSON(w, http.StatusOK, walletResponse{
		ID:        wallet.ID,
		ChildID:   wallet.ChildID,
		Balance:   money.Format(wallet.Balance),
		Movements: movements,
	})
}
