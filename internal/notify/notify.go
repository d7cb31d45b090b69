package notify

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/push"
	"github.com/dukerupert/pocketkid/internal/store"
	"github.com/dukerupert/pocketkid/internal/websocket"
)

// Pusher delivers a payload to one subscription. push.ErrExpired marks a
// permanent failure; any other error is transient.
type Pusher interface {
	Send(sub *model.PushSubscription, payload push.Payload) error
}

// Notifier fans one state-change event out to every channel a recipient has:
// an in-app notification row, the recipient's open websocket connections, and
// a best-effort web push to each registered device. Failures here are logged
// and swallowed — the ledger mutation that triggered the event already
// committed and must stand.
type Notifier struct {
	notifications *store.NotificationStore
	subscriptions *store.PushStore
	users         *store.UserStore
	pusher        Pusher
	hub           *websocket.Hub
	logger        *slog.Logger

	wg sync.WaitGroup
}

// New creates a Notifier. pusher and hub may be nil, which disables that
// channel; the in-app row is always written.
func New(notifications *store.NotificationStore, subscriptions *store.PushStore, users *store.UserStore, pusher Pusher, hub *websocket.Hub, logger *slog.Logger) *Notifier {
	return &Notifier{
		notifications: notifications,
		subscriptions: subscriptions,
		users:         users,
		pusher:        pusher,
		hub:           hub,
		logger:        logger,
	}
}

// Notify delivers one event to each recipient. The in-app insert happens on
// the caller's goroutine; push delivery is handed off and never blocks the
// request/response cycle that caused it.
func (n *Notifier) Notify(userIDs []int64, kind, message string, requestID *int64) {
	for _, userID := range userIDs {
		record, err := n.notifications.Create(userID, kind, message, requestID)
		if err != nil {
			n.logger.Error("create notification", "user_id", userID, "kind", kind, "error", err)
			continue
		}

		if n.hub != nil {
			n.hub.SendToUser(userID, websocket.Message{
				Type:      "notification",
				ID:        record.ID,
				Kind:      kind,
				Message:   message,
				CreatedAt: record.CreatedAt,
			})
		}

		if n.pusher != nil {
			n.wg.Add(1)
			go func(userID int64) {
				defer n.wg.Done()
				n.pushToUser(userID, message)
			}(userID)
		}
	}
}

// NotifyParents fans the event out to every parent account.
func (n *Notifier) NotifyParents(kind, message string, requestID *int64) {
	parents, err := n.users.ListByRole(model.RoleParent)
	if err != nil {
		n.logger.Error("list parents for fan-out", "error", err)
		return
	}
	ids := make([]int64, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.ID)
	}
	n.Notify(ids, kind, message, requestID)
}

// Flush waits for in-flight push deliveries. Shutdown and tests only.
func (n *Notifier) Flush() {
	n.wg.Wait()
}

func (n *Notifier) pushToUser(userID int64, message string) {
	subs, err := n.subscriptions.ListByUser(userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return
	}

	payload := push.Payload{
		Title: "PocketKid",
		Body:  message,
		URL:   "/dashboard",
	}

	for i := range subs {
		sub := &subs[i]
		err := n.pusher.Send(sub, payload)
		if err == nil {
			continue
		}
		if errors.Is(err, push.ErrExpired) {
			if err := n.subscriptions.DeleteByEndpoint(sub.Endpoint); err != nil {
				n.logger.Error("prune expired subscription", "endpoint", sub.Endpoint, "error", err)
			}
			continue
		}
		// Transient: keep the subscription, the next event retries naturally.
		n.logger.Warn("push delivery failed", "user_id", userID, "error", err)
	}
}
