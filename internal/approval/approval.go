package approval

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/pocketkid/internal/model"
	"github.com/dukerupert/pocketkid/internal/money"
	"github.com/dukerupert/pocketkid/internal/notify"
	"github.com/dukerupert/pocketkid/internal/store"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a decision targets a request that does not
// exist.
var ErrNotFound = errors.New("request not found")

// ValidationError marks bad input: wrong kind, missing challenge, bad
// amount. No state changes when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Outcomes a parent can choose.
const (
	OutcomeApprove = "approve"
	OutcomeReject  = "reject"
)

// Service governs the request lifecycle: a child submits, a parent decides,
// and an approval becomes exactly one ledger movement.
type Service struct {
	requests   *store.RequestStore
	wallets    *store.WalletStore
	challenges *store.ChallengeStore
	users      *store.UserStore
	notifier   *notify.Notifier
	logger     *slog.Logger
}

func NewService(requests *store.RequestStore, wallets *store.WalletStore, challenges *store.ChallengeStore, users *store.UserStore, notifier *notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		requests:   requests,
		wallets:    wallets,
		challenges: challenges,
		users:      users,
		notifier:   notifier,
		logger:     logger,
	}
}

// Submit creates a pending request for the child and notifies all parents.
// Reward requests are priced by their challenge; withdrawal and deposit
// requests carry the child's amount.
func (s *Service) Submit(childID int64, kind string, amount decimal.Decimal, challengeID *int64, description string) (*model.Request, error) {
	child, err := s.users.GetByID(childID)
	if err != nil {
		return nil, err
	}
	if child == nil || child.Role != model.RoleChild {
		return nil, validationf("child %d not found", childID)
	}

	var message string
	switch kind {
	case model.RequestReward:
		if challengeID == nil {
			return nil, validationf("reward request needs a challenge")
		}
		challenge, err := s.challenges.GetByID(*challengeID)
		if err != nil {
			return nil, err
		}
		if challenge == nil || !challenge.Active || challenge.Hidden {
			return nil, validationf("challenge is not available")
		}
		amount = challenge.Amount
		if description == "" {
			description = "Completed challenge: " + challenge.Name
		}
		message = fmt.Sprintf("%s claims reward %q (%s)", child.Username, challenge.Name, money.Format(amount))

	case model.RequestWithdrawal, model.RequestDeposit:
		if challengeID != nil {
			return nil, validationf("only reward requests reference a challenge")
		}
		if !amount.IsPositive() {
			return nil, validationf("amount must be positive")
		}
		if description == "" {
			if kind == model.RequestWithdrawal {
				description = "Withdrawal request"
			} else {
				description = "Deposit request"
			}
		}
		message = fmt.Sprintf("%s requested a %s of %s", child.Username, kind, money.Format(amount))

	default:
		return nil, validationf("unknown request kind %q", kind)
	}

	request, err := s.requests.Create(childID, kind, amount, challengeID, description)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyParents(model.NotifApprovalRequired, message, &request.ID)
	return request, nil
}

// Decide resolves a pending request. Approval applies the ledger movement in
// the same atomic unit as the status flip: an unfunded withdrawal fails with
// store.ErrInsufficientFunds and the request stays pending; a decision racing
// another one loses with store.ErrNotPending. Either terminal outcome
// notifies the child.
func (s *Service) Decide(requestID, parentID int64, outcome string) (*model.Request, error) {
	request, err := s.requests.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrNotFound
	}

	switch outcome {
	case OutcomeReject:
		decided, _, err := s.requests.Decide(requestID, parentID, model.StatusRejected, nil)
		if err != nil {
			return nil, err
		}
		s.notifier.Notify([]int64{request.ChildID}, model.NotifRequestRejected,
			"Your request was rejected: "+request.Description, &request.ID)
		return decided, nil

	case OutcomeApprove:
		amount, kind, err := s.approvalMovement(request)
		if err != nil {
			return nil, err
		}

		wallet, err := s.wallets.GetOrCreateByChild(request.ChildID)
		if err != nil {
			return nil, err
		}

		decided, movement, err := s.requests.Decide(requestID, parentID, model.StatusApproved, &store.MovementParams{
			WalletID:    wallet.ID,
			Amount:      amount,
			Kind:        kind,
			Description: request.Description,
			RequestID:   &request.ID,
			ChallengeID: request.ChallengeID,
			ActorID:     &parentID,
		})
		if err != nil {
			return nil, err
		}

		notifKind := model.NotifWalletCredit
		message := "Your wallet was credited " + money.Format(movement.Amount)
		if movement.Amount.IsNegative() {
			notifKind = model.NotifWalletDebit
			message = "Your wallet was debited " + money.Format(movement.Amount.Abs())
		}
		s.notifier.Notify([]int64{request.ChildID}, notifKind, message, &request.ID)
		return decided, nil

	default:
		return nil, validationf("unknown outcome %q", outcome)
	}
}

// approvalMovement maps an approved request to the signed amount and movement
// kind the ledger records. Reward amounts are re-read from the challenge so
// the value paid is the challenge's value at decision time.
func (s *Service) approvalMovement(request *model.Request) (decimal.Decimal, string, error) {
	switch request.Kind {
	case model.RequestReward:
		amount := request.Amount
		if request.ChallengeID != nil {
			challenge, err := s.challenges.GetByID(*request.ChallengeID)
			if err != nil {
				return decimal.Zero, "", err
			}
			if challenge != nil {
				amount = challenge.Amount
			}
		}
		return amount, model.MovementReward, nil
	case model.RequestDeposit:
		return request.Amount, model.MovementDeposit, nil
	case model.RequestWithdrawal:
		return request.Amount.Neg(), model.MovementWithdrawal, nil
	default:
		return decimal.Zero, "", validationf("unknown request kind %q", request.Kind)
	}
}
