package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recurring movement directions
const (
	DirectionDeposit    = "deposit"
	DirectionWithdrawal = "withdrawal"
)

// Frequency constants
const (
	FreqDaily    = "daily"
	FreqWeekly   = "weekly"
	FreqBiweekly = "biweekly"
	FreqMonthly  = "monthly"
)

// RecurringConfig describes a movement the scheduler materializes on a cadence.
// AnchorAt is the first occurrence and fixes the day-of-month for monthly
// cadences. NextRunAt is the watermark: every occurrence at or before now is
// due, and it only ever moves forward.
type RecurringConfig struct {
	ID          int64           `json:"id"`
	ChildID     int64           `json:"child_id"`
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Frequency   string          `json:"frequency"`
	Description string          `json:"description"`
	ChallengeID *int64          `json:"challenge_id"`
	AnchorAt    time.Time       `json:"anchor_at"`
	NextRunAt   time.Time       `json:"next_run_at"`
	Active      bool            `json:"active"`
	Hidden      bool            `json:"-"`
	CreatedBy   *int64          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}
