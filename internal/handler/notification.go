package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/pocketkid/internal/auth"
	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/store"
)

const notificationBatchSize = 10

type NotificationHandler struct {
	notifications *store.NotificationStore
	logger        *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: ns, logger: logger}
}

type notificationFeed struct {
	Notifications []model.Notification `json:"notifications"`
	Unread        int                  `json:"unread"`
}

// Feed handles GET /api/notifications: the oldest unread batch for the
// authenticated user. With ?mark_read=1 the returned batch is marked read in
// the same call.
func (h *NotificationHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	batch, err := h.notifications.ListUnread(userID, notificationBatchSize)
	if err != nil {
		h.logger.Error("list unread notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}

	if r.URL.Query().Get("mark_read") == "1" && len(batch) > 0 {
		ids := make([]int64, len(batch))
		for i, n := range batch {
			ids[i] = n.ID
		}
		if err := h.notifications.MarkRead(userID, ids); err != nil {
			h.logger.Error("mark notifications read", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
			return
		}
	}

	unread, err := h.notifications.CountUnread(userID)
	if err != nil {
		h.logger.Error("count unread notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}

	if batch == nil {
		batch = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationFeed{Notifications: batch, Unread: unread})
}
