package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movement kind constants
const (
	MovementReward              = "reward"
	MovementDeposit             = "deposit"
	MovementWithdrawal          = "withdrawal"
	MovementRecurringDeposit    = "recurring_deposit"
	MovementRecurringWithdrawal = "recurring_withdrawal"
	MovementParentDeposit       = "parent_deposit"
	MovementParentWithdrawal    = "parent_withdrawal"
)

type Wallet struct {
	ID      int64           `json:"id"`
	ChildID int64           `json:"child_id"`
	Balance decimal.Decimal `json:"balance"`
}

// Movement is one immutable signed change to a wallet's balance. Rows are
// append-only: never updated, never deleted while the wallet exists.
type Movement struct {
	ID          int64           `json:"id"`
	WalletID    int64           `json:"wallet_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	RequestID   *int64          `json:"request_id"`
	ChallengeID *int64          `json:"challenge_id"`
	CreatedBy   *int64          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}
