// Package money holds the fixed-point amount type used for every monetary
// field. Amounts are integer minor units (cents); decimal math is only used at
// the edges for parsing, formatting and percentages.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits.
const Scale = 2

type Amount int64

const Zero Amount = 0

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(1 << 53)
)

// Parse reads a major-unit string such as "81.00" or "12.5". Values with more
// than two fractional digits are rejected instead of rounded.
func Parse(raw string) (Amount, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return FromDecimal(d)
}

func MustParse(raw string) Amount {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), Scale)
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, fmt.Errorf("amount %s out of range", d.String())
	}
	return Amount(minor.IntPart()), nil
}

func FromMajor(units int64) Amount {
	return Amount(units * 100)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

func (a Amount) Cents() int64 {
	return int64(a)
}

func (a Amount) Add(b Amount) Amount {
	return a + b
}

func (a Amount) Sub(b Amount) Amount {
	return a - b
}

func (a Amount) Mul(qty int) Amount {
	return a * Amount(qty)
}

func (a Amount) IsNegative() bool {
	return a < 0
}

func (a Amount) IsPositive() bool {
	return a > 0
}

func (a Amount) IsZero() bool {
	return a == 0
}

// Percent returns pct% of a, rounded half away from zero to a whole minor unit.
func (a Amount) Percent(pct decimal.Decimal) Amount {
	v := a.Decimal().Mul(pct).Div(hundred).Round(Scale)
	return Amount(v.Mul(hundred).IntPart())
}

// Prorate returns a*part/whole, rounded half away from zero to a whole minor
// unit. A zero whole yields zero.
func (a Amount) Prorate(part, whole Amount) Amount {
	if whole == 0 {
		return Zero
	}
	v := decimal.NewFromInt(int64(a)).Mul(decimal.NewFromInt(int64(part))).Div(decimal.NewFromInt(int64(whole)))
	return Amount(v.Round(0).IntPart())
}

func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total += a
	}
	return total
}
