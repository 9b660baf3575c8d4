// Package money holds the decimal helpers used for prices and totals.
// Amounts are kept as decimal.Decimal in memory and as two-decimal strings
// on the wire.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const scale = 2

var hundred = decimal.NewFromInt(100)

// Parse reads a decimal string such as "19.99". Empty input is an error.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Format renders d with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(scale)
}

// FormatPtr is Format for optional amounts; nil stays nil.
func FormatPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := Format(*d)
	return &s
}

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

// ToCents converts to the smallest currency unit used by the gateway.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}
