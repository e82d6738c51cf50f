// Package money converts between decimal currency amounts and the int64
// minor-unit (cents) representation used for every stored money field.
//
// There is exactly one rounding rule: multiply by 100 and round half away
// from zero. Quantities are not minor-unit encoded; they keep full decimal
// precision up to QuantityScale fractional digits.
package money

import (
	"errors"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	// MinorUnitScale is the number of fractional digits carried by a minor unit.
	MinorUnitScale int32 = 2

	// QuantityScale is the maximum number of fractional digits of a quantity.
	QuantityScale int32 = 8
)

var (
	// ErrUnknownCurrency is returned for ISO codes go-money does not know.
	ErrUnknownCurrency = errors.New("money: unknown currency code")

	// ErrQuantityPrecision is returned when a quantity carries more than
	// QuantityScale fractional digits.
	ErrQuantityPrecision = errors.New("money: quantity exceeds 8 fractional digits")

	// ErrOutOfRange is returned when a minor-unit amount does not fit in int64.
	ErrOutOfRange = errors.New("money: amount out of range")
)

// ToMinorUnits converts an amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	return minorUnits(amount.Shift(MinorUnitScale))
}

// AddMinorUnits returns a+b, or ErrOutOfRange when the sum overflows.
func AddMinorUnits(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("%w: %s + %s", ErrOutOfRange, FromMinorUnits(a), FromMinorUnits(b))
	}
	return sum, nil
}

func minorUnits(d decimal.Decimal) (int64, error) {
	r := d.Round(0)
	n := r.BigInt()
	if !n.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, r.Shift(-MinorUnitScale).String())
	}
	return n.Int64(), nil
}

// FromMinorUnits renders cents as a decimal string with exactly 2 fractional digits.
func FromMinorUnits(cents int64) string {
	return decimal.New(cents, -MinorUnitScale).StringFixed(MinorUnitScale)
}

// FromMinorUnitsNullable is FromMinorUnits with nil passthrough.
func FromMinorUnitsNullable(cents *int64) *string {
	if cents == nil {
		return nil
	}
	s := FromMinorUnits(*cents)
	return &s
}

// Decimal returns cents as a major-unit decimal.
func Decimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -MinorUnitScale)
}

// ValueMinorUnits returns round(quantity × priceCents) computed exactly.
func ValueMinorUnits(quantity decimal.Decimal, priceCents int64) (int64, error) {
	return minorUnits(quantity.Mul(decimal.NewFromInt(priceCents)))
}

// Value is ValueMinorUnits as a major-unit decimal. It never overflows and
// is meant for display of read-side totals.
func Value(quantity decimal.Decimal, priceCents int64) decimal.Decimal {
	return quantity.Mul(decimal.NewFromInt(priceCents)).Round(0).Shift(-MinorUnitScale)
}

// FormatAmount renders a computed (not stored) amount with 2 fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MinorUnitScale)
}

// FormatAmountNullable is FormatAmount with nil passthrough.
func FormatAmountNullable(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := FormatAmount(*d)
	return &s
}

// FormatQuantity renders a quantity at its source precision.
func FormatQuantity(q decimal.Decimal) string {
	return q.String()
}

// CheckQuantityScale reports whether q fits in QuantityScale fractional digits.
func CheckQuantityScale(q decimal.Decimal) error {
	if !q.Equal(q.Truncate(QuantityScale)) {
		return fmt.Errorf("%w: %s", ErrQuantityPrecision, q.String())
	}
	return nil
}

// DisplayCurrency validates an ISO 4217 code and returns it upper-cased.
func DisplayCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	cur := gomoney.GetCurrency(code)
	if cur == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return cur.Code, nil
}
