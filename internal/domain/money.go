package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DollarsToCents converts a float64 dollar amount to int64 cents.
// It returns an error when the value carries more than 2 decimal places.
// The float is first turned into its shortest decimal representation, so
// values such as 1.10 do not pick up binary rounding artifacts.
func DollarsToCents(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("monetary values must be finite")
	}
	return DecimalToCents(decimal.NewFromFloat(f))
}

var (
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// DecimalToCents converts a decimal dollar amount to int64 cents. Amounts
// whose cents do not fit in an int64 are rejected.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	if cents.LessThan(minCents) || cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("monetary value %s is out of range", d.String())
	}
	return cents.IntPart(), nil
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	return decimal.New(c, -2).InexactFloat64()
}

// FormatCents renders cents as a fixed two-decimal dollar string.
func FormatCents(c int64) string {
	return decimal.New(c, -2).StringFixed(2)
}
