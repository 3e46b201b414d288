// Package reconcile derives what a cash drawer should contain. It is the only
// place the expected-cash formula is written down.
package reconcile

import "goodsale/backend/internal/money"

const (
	VerdictBalanced = "balanced"
	VerdictOver     = "over"
	VerdictShort    = "short"
)

// ExpectedCash = startingCash + cashSales + cashSettlements - cashReturns.
func ExpectedCash(startingCash, cashSales, cashSettlements, cashReturns money.Amount) money.Amount {
	return startingCash + cashSales + cashSettlements - cashReturns
}

// Difference is positive when the drawer holds more than expected.
func Difference(actualCash, expectedCash money.Amount) money.Amount {
	return actualCash - expectedCash
}

func Verdict(difference money.Amount) string {
	switch {
	case difference > 0:
		return VerdictOver
	case difference < 0:
		return VerdictShort
	default:
		return VerdictBalanced
	}
}
