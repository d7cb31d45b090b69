package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are fixed-point with two decimal places, stored as their canonical
// string form ("12.50") and compared with decimal arithmetic only.

var Zero = decimal.Zero

// Parse parses a user-supplied amount string. The result is quantized to two
// decimal places and must be strictly positive.
func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return d, nil
}

// Format renders an amount with exactly two decimal places.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
