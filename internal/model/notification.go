package model

import "time"

// Notification kind constants
const (
	NotifApprovalRequired = "approval_required"
	NotifRequestRejected  = "request_rejected"
	NotifWalletCredit     = "wallet_credit"
	NotifWalletDebit      = "wallet_debit"
	NotifRecurringFailed  = "recurring_failed"
)

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	RequestID *int64    `json:"request_id"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
