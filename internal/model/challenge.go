package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Challenge struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Active    bool            `json:"active"`
	Hidden    bool            `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}
