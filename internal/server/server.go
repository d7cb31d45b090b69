package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/pocketkid/internal/approval"
	"github.com/dukerupert/pocketkid/internal/handler"
	"github.com/dukerupert/pocketkid/internal/ledger"
	"github.com/dukerupert/pocketkid/internal/middleware"
	"github.com/dukerupert/pocketkid/internal/notify"
	"github.com/dukerupert/pocketkid/internal/push"
	"github.com/dukerupert/pocketkid/internal/recurring"
	"github.com/dukerupert/pocketkid/internal/store"
	ws "github.com/dukerupert/pocketkid/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	authH         *handler.AuthHandler
	requestH      *handler.RequestHandler
	walletH       *handler.WalletHandler
	familyH       *handler.FamilyHandler
	challengeH    *handler.ChallengeHandler
	recurringH    *handler.RecurringHandler
	notificationH *handler.NotificationHandler
	pushH         *handler.PushHandler
	sessionStore  *store.SessionStore
	userStore     *store.UserStore
	notifier      *notify.Notifier
	scheduler     *recurring.Scheduler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, pushCfg push.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	walletStore := store.NewWalletStore(db)
	requestStore := store.NewRequestStore(db)
	challengeStore := store.NewChallengeStore(db)
	recurringStore := store.NewRecurringStore(db)
	notificationStore := store.NewNotificationStore(db)
	pushStore := store.NewPushStore(db)

	var pushSvc *push.Service
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg)
	}

	// The notifier tolerates a nil pusher: fan-out still writes in-app rows
	// and broadcasts over websockets when push is unconfigured.
	var pusher notify.Pusher
	if pushSvc != nil {
		pusher = pushSvc
	}
	notifier := notify.New(notificationStore, pushStore, userStore, pusher, hub, logger.With("component", "notify"))

	approvalSvc := approval.NewService(requestStore, walletStore, challengeStore, userStore, notifier, logger.With("component", "approval"))
	ledgerSvc := ledger.NewService(walletStore, challengeStore, notifier, logger.With("component", "ledger"))
	scheduler := recurring.NewScheduler(recurringStore, userStore, notifier, logger.With("component", "recurring"))

	return &Server{
		db:            db,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, sessionStore, logger.With("component", "auth")),
		requestH:      handler.NewRequestHandler(approvalSvc, requestStore, logger.With("component", "requests")),
		walletH:       handler.NewWalletHandler(walletStore, ledgerSvc, logger.With("component", "wallet")),
		familyH:       handler.NewFamilyHandler(userStore, walletStore, ledgerSvc, logger.With("component", "family")),
		challengeH:    handler.NewChallengeHandler(challengeStore, logger.With("component", "challenges")),
		recurringH:    handler.NewRecurringHandler(recurringStore, userStore, logger.With("component", "recurring_api")),
		notificationH: handler.NewNotificationHandler(notificationStore, logger.With("component", "notifications")),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push")),
		sessionStore:  sessionStore,
		userStore:     userStore,
		notifier:      notifier,
		scheduler:     scheduler,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Scheduler returns the recurring movement scheduler.
func (s *Server) Scheduler() *recurring.Scheduler {
	return s.scheduler
}

// Notifier returns the notification fan-out for shutdown draining.
func (s *Server) Notifier() *notify.Notifier {
	return s.notifier
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /setup", s.authH.SetupStatus)
	outerMux.HandleFunc("POST /setup", s.rateLimitedHandler(s.authH.Setup))
	outerMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /logout", s.authH.Logout)

	// Settings
	mux.HandleFunc("GET /api/settings", s.authH.Me)
	mux.HandleFunc("PUT /api/settings/password", s.authH.UpdatePassword)
	mux.HandleFunc("PUT /api/settings/language", s.authH.UpdateLanguage)

	// Requests
	mux.HandleFunc("POST /api/requests", s.requestH.Submit)
	mux.HandleFunc("GET /api/requests", s.requestH.List)
	mux.HandleFunc("POST /api/requests/{id}/decision", s.requestH.Decide)

	// Child's own wallet
	mux.HandleFunc("GET /api/wallet", s.walletH.Get)

	// Children management (parents)
	mux.Handle("GET /api/children", parentOnly(s.familyH.ListChildren))
	mux.Handle("POST /api/children", parentOnly(s.familyH.CreateChild))
	mux.Handle("DELETE /api/children/{id}", parentOnly(s.familyH.DeleteChild))
	mux.Handle("POST /api/children/{id}/password", parentOnly(s.familyH.ResetChildPassword))
	mux.Handle("GET /api/children/{id}/movements", parentOnly(s.familyH.ChildMovements))
	mux.Handle("POST /api/children/{id}/movements", parentOnly(s.familyH.ManualMovement))
	mux.Handle("GET /api/children/{id}/reconcile", parentOnly(s.familyH.ChildReconcile))

	// Parent management (parents)
	mux.Handle("GET /api/parents", parentOnly(s.familyH.ListParents))
	mux.Handle("POST /api/parents", parentOnly(s.familyH.CreateParent))
	mux.Handle("DELETE /api/parents/{id}", parentOnly(s.familyH.DeleteParent))

	// Challenges
	mux.HandleFunc("GET /api/challenges", s.challengeH.List)
	mux.Handle("POST /api/challenges", parentOnly(s.challengeH.Create))
	mux.Handle("PUT /api/challenges/{id}/active", parentOnly(s.challengeH.SetActive))
	mux.Handle("DELETE /api/challenges/{id}", parentOnly(s.challengeH.Delete))

	// Recurring movements (parents)
	mux.Handle("GET /api/recurring", parentOnly(s.recurringH.List))
	mux.Handle("POST /api/recurring", parentOnly(s.recurringH.Create))
	mux.Handle("PUT /api/recurring/{id}/active", parentOnly(s.recurringH.SetActive))
	mux.Handle("DELETE /api/recurring/{id}", parentOnly(s.recurringH.Delete))

	// Notifications
	mux.HandleFunc("GET /api/notifications", s.notificationH.Feed)

	// Push subscriptions
	mux.HandleFunc("GET /api/push/public-key", s.pushH.PublicKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}

func parentOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireParent(h)
}
