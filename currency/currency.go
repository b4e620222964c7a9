/*
Package currency converts amounts to and from their display strings.

PURPOSE:
  The persisted ledger stores day aggregates as display strings
  ("R$ 1.234,56") while balances stay numeric. This package is the only
  place that knows the display format.

FORMAT (BRL):
  Format:  "R$ 1.234,56", negatives "-R$ 1.234,56", two decimals,
           half-up rounding, dot thousands separator
  Parse:   tolerates a missing or present "R$", any whitespace (including
           the non-breaking space browsers emit), a leading or embedded
           minus sign, comma decimals with dot thousands, and plain dot
           decimals when no comma is present. Empty input is zero.

ROUND TRIP:
  Parse(Format(x)) == x.Round(2) for every x.
*/
package currency

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for strings that are not an amount.
var ErrInvalidAmount = errors.New("invalid currency amount")

// Codec parses and formats display amounts.
type Codec interface {
	Parse(s string) (decimal.Decimal, error)
	Format(d decimal.Decimal) string
}

// BRL formats Brazilian reais.
type BRL struct{}

var _ Codec = BRL{}

const symbol = "R$"

// Format renders d as "R$ 1.234,56".
func (BRL) Format(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	fixed := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	return fmt.Sprintf("%s%s %s,%s", sign, symbol, groupThousands(intPart), frac)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Parse reads a display amount.
func (BRL) Parse(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ReplaceAll(s, symbol, ""))

	if cleaned == "" {
		return decimal.Zero, nil
	}

	negative := strings.Contains(cleaned, "-")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.TrimPrefix(cleaned, "+")

	if strings.Contains(cleaned, ",") {
		intPart, frac, _ := strings.Cut(cleaned, ",")
		if strings.Contains(frac, ",") || strings.Contains(frac, ".") {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		cleaned = strings.ReplaceAll(intPart, ".", "") + "." + frac
	}
	for _, r := range cleaned {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
