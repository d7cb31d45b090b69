package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/notify"
	"github.com/dukerupert/pocketkid/internal/store"
)

const (
	defaultInterval = time.Minute
	dueBatchSize    = 100
	// catchUpLimit caps occurrences materialized per config per tick, so a
	// config that was paused for years cannot wedge a tick.
	catchUpLimit = 400
)

// Scheduler periodically materializes due recurring movements into the
// ledger. Each occurrence is its own atomic unit (movement plus watermark
// advance), so downtime is caught up one missed occurrence at a time.
type Scheduler struct {
	mu       sync.RWMutex
	configs  *store.RecurringStore
	users    *store.UserStore
	notifier *notify.Notifier
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(configs *store.RecurringStore, users *store.UserStore, notifier *notify.Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		configs:  configs,
		users:    users,
		notifier: notifier,
		interval: defaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick materializes every due occurrence of every active config.
func (s *Scheduler) Tick() {
	now := s.now()

	due, err := s.configs.ListDue(now, dueBatchSize)
	if err != nil {
		s.logger.Error("list due configs", "error", err)
		return
	}

	for i := range due {
		s.catchUp(&due[i], now)
	}
}

// catchUp walks cfg's occurrences from its watermark to now, one atomic
// materialization per occurrence.
func (s *Scheduler) catchUp(cfg *model.RecurringConfig, now time.Time) {
	for n := 0; n < catchUpLimit; n++ {
		if cfg.NextRunAt.After(now) {
			return
		}

		occurrence := cfg.NextRunAt
		nextRun := NextRun(occurrence, cfg.AnchorAt, cfg.Frequency)

		movement, outcome, err := s.configs.Materialize(cfg, nextRun)
		if err != nil {
			s.logger.Error("materialize occurrence", "config_id", cfg.ID, "due", occurrence, "error", err)
			return
		}

		switch outcome {
		case store.OutcomeApplied:
			s.notifyApplied(cfg, movement)
		case store.OutcomeSkipped:
			// Policy: an unfunded recurring debit is dropped, not retried;
			// the watermark has already moved past it.
			s.logger.Warn("recurring debit skipped, insufficient funds", "config_id", cfg.ID, "due", occurrence)
			s.notifySkipped(cfg)
		case store.OutcomeStale:
			// Another pass already advanced this config.
			return
		}

		cfg.NextRunAt = nextRun
	}

	s.logger.Warn("catch-up limit reached", "config_id", cfg.ID)
}

func (s *Scheduler) notifyApplied(cfg *model.RecurringConfig, movement *model.Movement) {
	kind := model.NotifWalletCredit
	message := fmt.Sprintf("Recurring deposit of %s: %s", money.Format(movement.Amount), cfg.Description)
	if movement.Amount.IsNegative() {
		kind = model.NotifWalletDebit
		message = fmt.Sprintf("Recurring withdrawal of %s: %s", money.Format(movement.Amount.Abs()), cfg.Description)
	}
	s.notifier.Notify([]int64{cfg.ChildID}, kind, message, nil)
}

func (s *Scheduler) notifySkipped(cfg *model.RecurringConfig) {
	child, err := s.users.GetByID(cfg.ChildID)
	if err != nil || child == nil {
		s.logger.Error("load child for skip notice", "config_id", cfg.ID, "error", err)
		return
	}
	s.notifier.NotifyParents(model.NotifRecurringFailed,
		fmt.Sprintf("Recurring withdrawal of %s for %s skipped: insufficient funds", money.Format(cfg.Amount), child.Username), nil)
}
