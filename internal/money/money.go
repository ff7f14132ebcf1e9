package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an amount may carry.
const Scale = 2

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := Validate(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// Validate accepts strictly positive amounts with at most Scale decimals.
func Validate(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return ErrTooManyDecimals
	}
	return nil
}

func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}
