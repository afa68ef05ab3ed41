package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a request does not name one.
const DefaultCurrency = "GBP"

// MinorToDecimal converts minor units (pence, cents) to a major-unit decimal.
func MinorToDecimal(v int64) decimal.Decimal { return decimal.New(v, -2) }

// FormatMinor renders minor units with two decimals: 9680 -> "96.80".
func FormatMinor(v int64) string { return MinorToDecimal(v).StringFixed(2) }

// DecimalToMinor converts a major-unit decimal to minor units. Values with
// sub-minor precision are rejected rather than rounded.
func DecimalToMinor(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than 2 decimal places", d.String())
	}
	return scaled.IntPart(), nil
}

// ParseMajor parses a provider amount string such as "96.80" into minor units.
func ParseMajor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return DecimalToMinor(d)
}
