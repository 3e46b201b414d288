package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"goodsale/backend/internal/money"
)

func creditDraft(total string) SaleDraft {
	return SaleDraft{
		ID:            "sal-credit",
		CustomerID:    "cus-1",
		Items:         []SaleItem{{ProductID: "sku-1", Qty: 1, UnitPrice: money.MustParse(total), UnitCost: money.MustParse("1.00")}},
		PaymentMethod: PaymentOnCredit,
	}
}

func TestBuildSaleComputesTotals(t *testing.T) {
	shift := openShift(t, "0")
	sale, err := BuildSale(SaleDraft{
		ID: "sal-1",
		Items: []SaleItem{
			{ProductID: "sku-1", Qty: 2, UnitPrice: 1500, UnitCost: 900},
			{ProductID: "sku-2", Qty: 1, UnitPrice: 1000, UnitCost: 400},
		},
		DiscountAmount: 500,
		TaxAmount:      350,
		PaymentMethod:  PaymentCash,
	}, shift, testNow)
	if err != nil {
		t.Fatalf("build sale failed: %v", err)
	}
	if sale.TotalAmount != 3350 {
		t.Fatalf("expected total 33.50, got %s", sale.TotalAmount)
	}
	if sale.TotalProfit != 800 {
		t.Fatalf("expected profit 8.00, got %s", sale.TotalProfit)
	}
	if sale.Status != SaleStatusPaid || sale.AmountSettled != sale.TotalAmount {
		t.Fatalf("expected paid cash sale, got %+v", sale)
	}
	if sale.ShiftID != shift.ID || sale.CashierID != "cashier" || sale.TenantID != "tenant-a" {
		t.Fatalf("sale not bound to shift: %+v", sale)
	}
}

func TestBuildSaleValidation(t *testing.T) {
	shift := openShift(t, "0")
	cases := map[string]SaleDraft{
		"missing id":         {Items: []SaleItem{{ProductID: "a", Qty: 1}}, PaymentMethod: PaymentCash},
		"no items":           {ID: "s", PaymentMethod: PaymentCash},
		"zero qty":           {ID: "s", Items: []SaleItem{{ProductID: "a", Qty: 0}}, PaymentMethod: PaymentCash},
		"unknown method":     {ID: "s", Items: []SaleItem{{ProductID: "a", Qty: 1}}, PaymentMethod: "Bitcoin"},
		"discount too large": {ID: "s", Items: []SaleItem{{ProductID: "a", Qty: 1, UnitPrice: 100}}, DiscountAmount: 101, PaymentMethod: PaymentCash},
		"credit no customer": {ID: "s", Items: []SaleItem{{ProductID: "a", Qty: 1, UnitPrice: 100}}, PaymentMethod: PaymentOnCredit},
	}
	for name, draft := range cases {
		if _, err := BuildSale(draft, shift, testNow); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestCreditSaleSettlesToPaid(t *testing.T) {
	shift := openShift(t, "0")
	sale, err := BuildSale(creditDraft("200.00"), shift, testNow)
	if err != nil {
		t.Fatalf("build sale failed: %v", err)
	}
	if sale.Status != SaleStatusPending || sale.AmountSettled != 0 {
		t.Fatalf("expected pending credit sale, got %+v", sale)
	}
	if err := sale.ApplySettlement("cus-1", money.MustParse("200.01")); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
	if err := sale.ApplySettlement("cus-1", money.MustParse("120.00")); err != nil {
		t.Fatalf("partial settlement failed: %v", err)
	}
	if sale.Status != SaleStatusPending || sale.AmountDue() != money.MustParse("80.00") {
		t.Fatalf("expected pending with 80.00 due, got %+v", sale)
	}
	if err := sale.ApplySettlement("cus-1", money.MustParse("80.00")); err != nil {
		t.Fatalf("final settlement failed: %v", err)
	}
	if sale.Status != SaleStatusPaid || sale.AmountSettled != money.MustParse("200.00") {
		t.Fatalf("expected paid sale, got %+v", sale)
	}
	if err := sale.ApplySettlement("cus-1", 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on paid sale, got %v", err)
	}
}

func TestApplySettlementRequiresOwningCustomer(t *testing.T) {
	shift := openShift(t, "0")
	draft := creditDraft("50.00")
	draft.AwaitingCollection = true
	sale, err := BuildSale(draft, shift, testNow)
	if err != nil {
		t.Fatalf("build sale failed: %v", err)
	}
	if sale.Status != SaleStatusAwaitingCollection {
		t.Fatalf("expected awaiting collection, got %s", sale.Status)
	}
	if err := sale.ApplySettlement("cus-other", 100); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for foreign customer, got %v", err)
	}
	cash := Sale{ID: "cash", PaymentMethod: PaymentCash, Status: SaleStatusPaid, TotalAmount: 100, AmountSettled: 100}
	if err := cash.ApplySettlement("", 100); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for cash sale, got %v", err)
	}
}

func TestPaymentMethodAcceptsAlternateSpellings(t *testing.T) {
	var draft SaleDraft
	if err := json.Unmarshal([]byte(`{"payment_method":"on_credit"}`), &draft); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if draft.PaymentMethod != PaymentOnCredit {
		t.Fatalf("expected On Credit, got %q", draft.PaymentMethod)
	}
	if err := json.Unmarshal([]byte(`{"payment_method":"barter"}`), &draft); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if draft.PaymentMethod.Valid() {
		t.Fatalf("expected unknown method to stay invalid")
	}
}

func TestApplyReturnCreditOnlyTouchesCreditSales(t *testing.T) {
	credit := Sale{ID: "s1", CustomerID: "c1", PaymentMethod: PaymentOnCredit, Status: SaleStatusPending, TotalAmount: 200, AmountSettled: 50}
	if got := credit.ApplyReturnCredit(300); got != 150 {
		t.Fatalf("expected 150 written off, got %d", got)
	}
	if credit.Status != SaleStatusPaid || !credit.AmountDue().IsZero() {
		t.Fatalf("expected a paid sale, got %+v", credit)
	}
	if got := credit.ApplyReturnCredit(10); got != 0 {
		t.Fatalf("a paid sale has nothing left to write off, got %d", got)
	}

	cash := Sale{ID: "s2", PaymentMethod: PaymentCash, Status: SaleStatusPaid, TotalAmount: 200, AmountSettled: 200}
	if got := cash.ApplyReturnCredit(100); got != 0 || cash.AmountSettled != 200 {
		t.Fatalf("cash sales must be left alone, got %d %+v", got, cash)
	}
}
