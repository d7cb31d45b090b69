package ledger

import (
	"fmt"
	"log/slog"

	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/notify"
	"github.com/dukerupert/pocketkid/internal/store"

	"github.com/shopspring/decimal"
)

// ValidationError marks bad manual-movement input; nothing changed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Service wraps the wallet ledger for the operations parents drive directly:
// manual deposits and withdrawals, movement history, and the replay-based
// consistency check.
type Service struct {
	wallets    *store.WalletStore
	challenges *store.ChallengeStore
	notifier   *notify.Notifier
	logger     *slog.Logger
}

func NewService(wallets *store.WalletStore, challenges *store.ChallengeStore, notifier *notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		wallets:    wallets,
		challenges: challenges,
		notifier:   notifier,
		logger:     logger,
	}
}

// ManualMovement applies a parent-initiated deposit or withdrawal to the
// child's wallet. A deposit may be linked to a challenge (rewarding it
// without a request); withdrawals never are. The child is notified of the
// result.
func (s *Service) ManualMovement(parentID, childID int64, direction string, amount decimal.Decimal, challengeID *int64, description string) (*model.Movement, error) {
	if !amount.IsPositive() {
		return nil, validationf("amount must be positive")
	}

	var kind string
	switch direction {
	case model.DirectionDeposit:
		kind = model.MovementParentDeposit
		if challengeID != nil {
			challenge, err := s.challenges.GetByID(*challengeID)
			if err != nil {
				return nil, err
			}
			if challenge == nil || challenge.Hidden {
				return nil, validationf("challenge is not available")
			}
			if description == "" {
				description = "Deposit for challenge: " + challenge.Name
			}
		}
	case model.DirectionWithdrawal:
		if challengeID != nil {
			return nil, validationf("withdrawals cannot reference a challenge")
		}
		kind = model.MovementParentWithdrawal
		amount = amount.Neg()
	default:
		return nil, validationf("unknown direction %q", direction)
	}

	if description == "" {
		description = "Manual movement"
	}

	wallet, err := s.wallets.GetOrCreateByChild(childID)
	if err != nil {
		return nil, err
	}

	movement, err := s.wallets.ApplyMovement(store.MovementParams{
		WalletID:    wallet.ID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		ChallengeID: challengeID,
		ActorID:     &parentID,
	})
	if err != nil {
		return nil, err
	}

	notifKind := model.NotifWalletCredit
	message := fmt.Sprintf("Your wallet was credited %s: %s", money.Format(movement.Amount), description)
	if movement.Amount.IsNegative() {
		notifKind = model.NotifWalletDebit
		message = fmt.Sprintf("Your wallet was debited %s: %s", money.Format(movement.Amount.Abs()), description)
	}
	s.notifier.Notify([]int64{childID}, notifKind, message, nil)

	return movement, nil
}

// InitialDeposit records a starting balance for a freshly created child.
func (s *Service) InitialDeposit(parentID, childID int64, amount decimal.Decimal) (*model.Movement, error) {
	if !amount.IsPositive() {
		return nil, validationf("amount must be positive")
	}

	wallet, err := s.wallets.GetOrCreateByChild(childID)
	if err != nil {
		return nil, err
	}

	return s.wallets.ApplyMovement(store.MovementParams{
		WalletID:    wallet.ID,
		Amount:      amount,
		Kind:        model.MovementParentDeposit,
		Description: "Initial balance",
		ActorID:     &parentID,
	})
}

// History returns the child's movements, newest first.
func (s *Service) History(childID int64, limit, offset int) ([]model.Movement, error) {
	wallet, err := s.wallets.GetOrCreateByChild(childID)
	if err != nil {
		return nil, err
	}
	return s.wallets.History(wallet.ID, limit, offset)
}

// Reconcile replays the child's movement log against the cached balance.
func (s *Service) Reconcile(childID int64) (*store.ReconcileResult, error) {
	wallet, err := s.wallets.GetOrCreateByChild(childID)
	if err != nil {
		return nil, err
	}
	return s.wallets.Reconcile(wallet.ID)
}
