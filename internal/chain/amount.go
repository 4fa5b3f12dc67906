package chain

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// ParseDecimalAmount parses a human amount such as "1.234" into base units
// with the given number of decimal places. Amounts with more precision than
// the token supports are rejected rather than truncated.
func ParseDecimalAmount(amount string, decimalPlaces int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, invalidAmount(amount, "empty")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, invalidAmount(amount, "not a decimal number")
	}
	if d.IsNegative() {
		return nil, invalidAmount(amount, "negative")
	}

	scaled := d.Shift(decimalPlaces)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, invalidAmount(amount, "too many decimal places")
	}

	return scaled.BigInt(), nil
}

// FormatDecimalAmount converts base units to a human-readable string.
// Trailing zeros after the decimal point are removed.
func FormatDecimalAmount(amount *big.Int, decimalPlaces int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimalPlaces).String()
}

func invalidAmount(amount, reason string) error {
	return tethererr.WithDetails(tethererr.ErrInvalidAmount, map[string]string{
		"amount": amount,
		"reason": reason,
	})
}
