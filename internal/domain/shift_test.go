package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"goodsale/backend/internal/money"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openShift(t *testing.T, startingCash string) Shift {
	t.Helper()
	shift, err := NewShift("shf-1", "tenant-a", "cashier", money.MustParse(startingCash), testNow)
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	return shift
}

func TestShiftDrawerArithmetic(t *testing.T) {
	shift := openShift(t, "200.00")

	if err := shift.RecordSale(Sale{TotalAmount: money.MustParse("150.00"), PaymentMethod: PaymentCash}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if got := shift.ExpectedCash(); got != money.MustParse("350.00") {
		t.Fatalf("expected 350.00 after cash sale, got %s", got)
	}
	if err := shift.RecordSettlement(money.MustParse("50.00"), PaymentCash); err != nil {
		t.Fatalf("record settlement failed: %v", err)
	}
	if got := shift.ExpectedCash(); got != money.MustParse("400.00") {
		t.Fatalf("expected 400.00 after cash settlement, got %s", got)
	}
	if err := shift.RecordCashReturn(money.MustParse("30.00")); err != nil {
		t.Fatalf("record cash return failed: %v", err)
	}
	if got := shift.ExpectedCash(); got != money.MustParse("370.00") {
		t.Fatalf("expected 370.00 after cash return, got %s", got)
	}
	if err := shift.Close(money.MustParse("370.00"), "", testNow.Add(8*time.Hour)); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if shift.Status != ShiftStatusClosed || shift.EndTime == nil {
		t.Fatalf("expected closed shift with end time, got %+v", shift)
	}
	if shift.CashDifference == nil || *shift.CashDifference != 0 {
		t.Fatalf("expected zero difference, got %v", shift.CashDifference)
	}
}

func TestShiftNonCashMovementsLeaveDrawerAlone(t *testing.T) {
	shift := openShift(t, "100.00")
	for _, method := range []PaymentMethod{PaymentCard, PaymentMobile, PaymentOnCredit} {
		if err := shift.RecordSale(Sale{TotalAmount: 2500, PaymentMethod: method}); err != nil {
			t.Fatalf("record %s sale failed: %v", method, err)
		}
	}
	if err := shift.RecordSettlement(1000, PaymentCard); err != nil {
		t.Fatalf("card settlement failed: %v", err)
	}
	if err := shift.RecordSettlement(700, PaymentMobile); err != nil {
		t.Fatalf("mobile settlement failed: %v", err)
	}
	if got := shift.ExpectedCash(); got != money.MustParse("100.00") {
		t.Fatalf("expected drawer to stay at 100.00, got %s", got)
	}
	if shift.TotalSales != 7500 || shift.SaleCount != 3 || shift.CreditSales != 2500 {
		t.Fatalf("unexpected accumulators: %+v", shift)
	}
	if shift.CardSettlements != 1000 || shift.MobileSettlements != 700 {
		t.Fatalf("unexpected settlement buckets: %+v", shift)
	}
	if err := shift.RecordSettlement(100, PaymentOnCredit); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for credit settlement, got %v", err)
	}
}

func TestShiftRejectsInvalidInput(t *testing.T) {
	if _, err := NewShift("shf-x", "tenant-a", "cashier", -1, testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for negative float, got %v", err)
	}
	shift := openShift(t, "0")
	if err := shift.RecordSettlement(0, PaymentCash); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero settlement, got %v", err)
	}
	if err := shift.RecordCashReturn(-5); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for negative return, got %v", err)
	}
	if err := shift.Close(-1, "", testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for negative actual cash, got %v", err)
	}
}

func TestClosedShiftIsFrozen(t *testing.T) {
	shift := openShift(t, "50.00")
	if err := shift.Close(money.MustParse("45.00"), "short", testNow); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if *shift.CashDifference != money.MustParse("-5.00") {
		t.Fatalf("expected -5.00 difference, got %s", *shift.CashDifference)
	}
	if err := shift.Close(money.MustParse("50.00"), "", testNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on second close, got %v", err)
	}
	if err := shift.RecordSale(Sale{TotalAmount: 100, PaymentMethod: PaymentCash}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for sale on closed shift, got %v", err)
	}
	if err := shift.RecordCashReturn(100); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for return on closed shift, got %v", err)
	}
}

func TestShiftJSONCarriesDerivedExpectedCash(t *testing.T) {
	shift := openShift(t, "10.00")
	if err := shift.RecordSale(Sale{TotalAmount: 500, PaymentMethod: PaymentCash}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	raw, err := json.Marshal(shift)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"expected_cash_cents":1500`) {
		t.Fatalf("expected derived expected cash in json, got %s", raw)
	}
	var decoded Shift
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.ExpectedCash() != 1500 || decoded.CashSales != 500 {
		t.Fatalf("unexpected decoded shift: %+v", decoded)
	}
}

func TestShiftSummaryVerdict(t *testing.T) {
	shift := openShift(t, "20.00")
	if err := shift.RecordSettlement(300, PaymentCard); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	open := NewShiftSummary(shift, nil, nil)
	if open.Verdict != "" || open.CashDifference != nil || open.SettlementTotal != 300 {
		t.Fatalf("unexpected open summary: %+v", open)
	}
	if err := shift.Close(money.MustParse("21.00"), "", testNow); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	closed := NewShiftSummary(shift, nil, nil)
	if closed.Verdict != "over" || *closed.CashDifference != 100 {
		t.Fatalf("expected over by 1.00, got %+v", closed)
	}
	if len(closed.Settlements) != 0 || len(closed.CashRefunds) != 0 || len(closed.SalesByMethod) != 4 {
		t.Fatalf("unexpected summary collections: %+v", closed)
	}
}
