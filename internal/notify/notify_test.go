package notify

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/pocketkid/internal/database"
	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/push"
	"github.com/dukerupert/pocketkid/internal/store"
)

// fakePusher records sends and returns a scripted error per endpoint.
type fakePusher struct {
	mu   sync.Mutex
	sent []string
	fail map[string]error
}

func (p *fakePusher) Send(sub *model.PushSubscription, payload push.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sub.Endpoint)
	return p.fail[sub.Endpoint]
}

func (p *fakePusher) endpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

type notifyFixture struct {
	db            *sql.DB
	notifier      *Notifier
	pusher        *fakePusher
	users         *store.UserStore
	subscriptions *store.PushStore
	notifications *store.NotificationStore
}

func setupNotify(t *testing.T) *notifyFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &notifyFixture{
		db:            db,
		pusher:        &fakePusher{fail: map[string]error{}},
		users:         store.NewUserStore(db),
		subscriptions: store.NewPushStore(db),
		notifications: store.NewNotificationStore(db),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.notifier = New(f.notifications, f.subscriptions, f.users, f.pusher, nil, logger)
	return f
}

func TestNotifyWritesRowAndPushes(t *testing.T) {
	f := setupNotify(t)
	child, _ := f.users.Create("kid", "h", model.RoleChild, "en")
	f.subscriptions.Upsert(child.ID, "ep-1", "k", "a")

	f.notifier.Notify([]int64{child.ID}, model.NotifWalletCredit, "credited", nil)
	f.notifier.Flush()

	unread, _ := f.notifications.ListUnread(child.ID, 10)
	if len(unread) != 1 || unread[0].Message != "credited" {
		t.Fatalf("notifications = %+v, want one row", unread)
	}
	if got := f.pusher.endpoints(); len(got) != 1 || got[0] != "ep-1" {
		t.Errorf("pushed endpoints = %v, want [ep-1]", got)
	}
}

func TestNotifyPrunesExpiredSubscription(t *testing.T) {
	f := setupNotify(t)
	child, _ := f.users.Create("kid", "h", model.RoleChild, "en")
	f.subscriptions.Upsert(child.ID, "ep-dead", "k", "a")
	f.subscriptions.Upsert(child.ID, "ep-live", "k", "a")
	f.pusher.fail["ep-dead"] = push.ErrExpired

	f.notifier.Notify([]int64{child.ID}, model.NotifWalletCredit, "hello", nil)
	f.notifier.Flush()

	subs, _ := f.subscriptions.ListByUser(child.ID)
	if len(subs) != 1 || subs[0].Endpoint != "ep-live" {
		t.Fatalf("subscriptions after prune = %+v, want only ep-live", subs)
	}
}

func TestNotifyKeepsSubscriptionOnTransientError(t *testing.T) {
	f := setupNotify(t)
	child, _ := f.users.Create("kid", "h", model.RoleChild, "en")
	f.subscriptions.Upsert(child.ID, "ep-flaky", "k", "a")
	f.pusher.fail["ep-flaky"] = errors.New("gateway timeout")

	f.notifier.Notify([]int64{child.ID}, model.NotifWalletCredit, "hello", nil)
	f.notifier.Flush()

	subs, _ := f.subscriptions.ListByUser(child.ID)
	if len(subs) != 1 {
		t.Fatal("transient failure dropped the subscription")
	}

	// The row landed regardless of push trouble.
	unread, _ := f.notifications.CountUnread(child.ID)
	if unread != 1 {
		t.Errorf("unread = %d, want 1", unread)
	}
}

func TestNotifyParentsFansOut(t *testing.T) {
	f := setupNotify(t)
	mom, _ := f.users.Create("mom", "h", model.RoleParent, "en")
	dad, _ := f.users.Create("dad", "h", model.RoleParent, "en")
	child, _ := f.users.Create("kid", "h", model.RoleChild, "en")

	f.notifier.NotifyParents(model.NotifApprovalRequired, "kid wants money", nil)
	f.notifier.Flush()

	for _, parent := range []*model.User{mom, dad} {
		n, _ := f.notifications.CountUnread(parent.ID)
		if n != 1 {
			t.Errorf("%s unread = %d, want 1", parent.Username, n)
		}
	}
	n, _ := f.notifications.CountUnread(child.ID)
	if n != 0 {
		t.Errorf("child unread = %d, want 0", n)
	}
}

func TestNotifyWithoutPushChannel(t *testing.T) {
	f := setupNotify(t)
	child, _ := f.users.Create("kid", "h", model.RoleChild, "en")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bare := New(f.notifications, f.subscriptions, f.users, nil, nil, logger)
	bare.Notify([]int64{child.ID}, model.NotifWalletCredit, "no push configured", nil)
	bare.Flush()

	n, _ := f.notifications.CountUnread(child.ID)
	if n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}
}
