package reconcile

import (
	"testing"

	"goodsale/backend/internal/money"
)

func TestExpectedCashScenario(t *testing.T) {
	start := money.MustParse("200.00")
	got := ExpectedCash(start, money.MustParse("150.00"), money.MustParse("50.00"), money.MustParse("30.00"))
	if got != money.MustParse("370.00") {
		t.Fatalf("expected 370.00, got %s", got)
	}
}

func TestExpectedCashSyntheticGrid(t *testing.T) {
	cases := []struct {
		start, sales, settlements, returns, want money.Amount
	}{
		{0, 0, 0, 0, 0},
		{10000, 0, 0, 0, 10000},
		{0, 500, 0, 0, 500},
		{0, 0, 700, 0, 700},
		{0, 0, 0, 300, -300},
		{100, 200, 300, 50, 550},
	}
	for _, tc := range cases {
		if got := ExpectedCash(tc.start, tc.sales, tc.settlements, tc.returns); got != tc.want {
			t.Fatalf("ExpectedCash(%d,%d,%d,%d) = %d, want %d", tc.start, tc.sales, tc.settlements, tc.returns, got, tc.want)
		}
	}
}

func TestDifferenceAndVerdict(t *testing.T) {
	if d := Difference(37000, 37000); d != 0 || Verdict(d) != VerdictBalanced {
		t.Fatalf("expected balanced drawer, got %d/%s", d, Verdict(d))
	}
	if d := Difference(36000, 37000); d != -1000 || Verdict(d) != VerdictShort {
		t.Fatalf("expected short drawer, got %d/%s", d, Verdict(d))
	}
	if Verdict(1) != VerdictOver {
		t.Fatalf("expected over verdict")
	}
}
