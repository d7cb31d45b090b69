package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request kind constants
const (
	RequestReward     = "reward"
	RequestWithdrawal = "withdrawal"
	RequestDeposit    = "deposit"
)

// Request status constants. Transitions are one-way: pending -> approved or
// pending -> rejected, nothing leaves a terminal state.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Request struct {
	ID          int64           `json:"id"`
	ChildID     int64           `json:"child_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	ChallengeID *int64          `json:"challenge_id"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	DecidedAt   *time.Time      `json:"decided_at"`
	DecidedBy   *int64          `json:"decided_by"`
}
