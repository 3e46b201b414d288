package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
	"goodsale/backend/internal/store"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openTestShift(t *testing.T, s *Store, cashier string, startingCash money.Amount) domain.Shift {
	t.Helper()
	shift, err := domain.NewShift("", DefaultTenantID, cashier, startingCash, testNow)
	if err != nil {
		t.Fatalf("new shift: %v", err)
	}
	created, err := s.CreateShift(context.Background(), shift)
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	return *created
}

func recordSale(t *testing.T, s *Store, shift domain.Shift, draft domain.SaleDraft) domain.Sale {
	t.Helper()
	sale, err := domain.BuildSale(draft, shift, testNow)
	if err != nil {
		t.Fatalf("build sale: %v", err)
	}
	saved, _, dup, err := s.CreateSale(context.Background(), sale)
	if err != nil || dup {
		t.Fatalf("create sale: dup=%v err=%v", dup, err)
	}
	return *saved
}

func TestOneOpenShiftPerCashier(t *testing.T) {
	s := New()
	first := openTestShift(t, s, "cashier", money.FromMajor(100))

	again, _ := domain.NewShift("", DefaultTenantID, "cashier", 0, testNow)
	if _, err := s.CreateShift(context.Background(), again); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for second open shift, got %v", err)
	}

	if _, err := s.CloseShift(context.Background(), DefaultTenantID, first.ID, money.FromMajor(100), "", testNow); err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if _, err := s.GetActiveShift(context.Background(), DefaultTenantID, "cashier"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no active shift after close, got %v", err)
	}
	if _, err := s.CreateShift(context.Background(), again); err != nil {
		t.Fatalf("expected new shift after close, got %v", err)
	}
}

func TestCreateSaleIsIdempotentOnID(t *testing.T) {
	s := New()
	shift := openTestShift(t, s, "cashier", 0)
	draft := domain.SaleDraft{
		ID:            "sale-1",
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 1, UnitPrice: money.FromMajor(10)}},
		PaymentMethod: domain.PaymentCash,
	}
	recordSale(t, s, shift, draft)

	replay, err := domain.BuildSale(draft, shift, testNow)
	if err != nil {
		t.Fatalf("build sale: %v", err)
	}
	_, replayShift, dup, err := s.CreateSale(context.Background(), replay)
	if err != nil || !dup {
		t.Fatalf("expected duplicate, dup=%v err=%v", dup, err)
	}
	if replayShift.CashSales != money.FromMajor(10) || replayShift.SaleCount != 1 {
		t.Fatalf("replay must not double count, got cash %s count %d", replayShift.CashSales, replayShift.SaleCount)
	}
}

func TestCreateSaleRejectsClosedShift(t *testing.T) {
	s := New()
	shift := openTestShift(t, s, "cashier", 0)
	if _, err := s.CloseShift(context.Background(), DefaultTenantID, shift.ID, 0, "", testNow); err != nil {
		t.Fatalf("close shift: %v", err)
	}
	sale, err := domain.BuildSale(domain.SaleDraft{
		ID:            "late",
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 1, UnitPrice: 100}},
		PaymentMethod: domain.PaymentCard,
	}, shift, testNow)
	if err != nil {
		t.Fatalf("build sale: %v", err)
	}
	if _, _, _, err := s.CreateSale(context.Background(), sale); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on closed shift, got %v", err)
	}
	if _, err := s.GetSale(context.Background(), DefaultTenantID, "late"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rejected sale must not be stored, got %v", err)
	}
}

func TestConcurrentSettlementsNeverOverdrawBalance(t *testing.T) {
	s := NewSeeded()
	shift := openTestShift(t, s, "cashier", 0)
	recordSale(t, s, shift, domain.SaleDraft{
		ID:            "credit-1",
		CustomerID:    "cus-walkin",
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 1, UnitPrice: money.FromMajor(100)}},
		PaymentMethod: domain.PaymentOnCredit,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, overpaid int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplySettlement(context.Background(), store.SettlementCommand{Settlement: domain.Settlement{
				TenantID:   DefaultTenantID,
				CustomerID: "cus-walkin",
				CashierID:  "cashier",
				Amount:     money.FromMajor(30),
				Method:     domain.PaymentCash,
				CreatedAt:  testNow,
			}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrOverpayment):
				overpaid++
			default:
				t.Errorf("unexpected settlement error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 || overpaid != 17 {
		t.Fatalf("expected 3 settlements and 17 overpayments, got %d and %d", succeeded, overpaid)
	}
	customer, err := s.GetCustomer(context.Background(), DefaultTenantID, "cus-walkin")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.Balance != money.FromMajor(10) {
		t.Fatalf("expected balance 10.00, got %s", customer.Balance)
	}
	active, err := s.GetActiveShift(context.Background(), DefaultTenantID, "cashier")
	if err != nil {
		t.Fatalf("get active shift: %v", err)
	}
	if active.CashSettlements != money.FromMajor(90) {
		t.Fatalf("expected cash settlements 90.00, got %s", active.CashSettlements)
	}
}

func TestApplySettlementChecksExpectedVersion(t *testing.T) {
	s := NewSeeded()
	shift := openTestShift(t, s, "cashier", 0)
	recordSale(t, s, shift, domain.SaleDraft{
		ID:            "credit-1",
		CustomerID:    "cus-walkin",
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 1, UnitPrice: money.FromMajor(50)}},
		PaymentMethod: domain.PaymentOnCredit,
	})

	stale := int64(0)
	_, err := s.ApplySettlement(context.Background(), store.SettlementCommand{
		Settlement: domain.Settlement{
			TenantID:   DefaultTenantID,
			CustomerID: "cus-walkin",
			CashierID:  "cashier",
			Amount:     money.FromMajor(10),
			Method:     domain.PaymentCard,
			CreatedAt:  testNow,
		},
		ExpectedVersion: &stale,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}
}

func TestSettlementWithoutOpenShiftLeavesBalanceUntouched(t *testing.T) {
	s := NewSeeded()
	shift := openTestShift(t, s, "cashier", 0)
	recordSale(t, s, shift, domain.SaleDraft{
		ID:            "credit-1",
		CustomerID:    "cus-walkin",
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 1, UnitPrice: money.FromMajor(50)}},
		PaymentMethod: domain.PaymentOnCredit,
	})

	_, err := s.ApplySettlement(context.Background(), store.SettlementCommand{Settlement: domain.Settlement{
		TenantID:   DefaultTenantID,
		CustomerID: "cus-walkin",
		CashierID:  "someone-else",
		Amount:     money.FromMajor(10),
		Method:     domain.PaymentCash,
		CreatedAt:  testNow,
	}})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state without open shift, got %v", err)
	}
	customer, _ := s.GetCustomer(context.Background(), DefaultTenantID, "cus-walkin")
	if customer.Balance != money.FromMajor(50) {
		t.Fatalf("balance must stay 50.00, got %s", customer.Balance)
	}
}

func TestRefundReturnMovesCashOrStoreCredit(t *testing.T) {
	s := NewSeeded()
	shift := openTestShift(t, s, "cashier", money.FromMajor(100))
	sale := recordSale(t, s, shift, domain.SaleDraft{
		ID:            "sale-1",
		CustomerID:    "cus-walkin",
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 4, UnitPrice: money.FromMajor(25)}},
		PaymentMethod: domain.PaymentCash,
	})
	policy := domain.DefaultReturnPolicy(DefaultTenantID)
	policy.RequiresApproval = false

	newReturn := func(id string, qty int) domain.Return {
		ret, err := s.CreateReturn(context.Background(), DefaultTenantID, sale.ID, func(sale domain.Sale, previous []domain.Return) (domain.Return, error) {
			return domain.NewReturn(id, sale, domain.ReturnCreateRequest{
				SaleID: sale.ID,
				Items:  []domain.ReturnLine{{ProductID: "P1", Qty: qty}},
				Reason: "faulty",
			}, policy, previous, "cashier", testNow)
		})
		if err != nil {
			t.Fatalf("create return %s: %v", id, err)
		}
		return *ret
	}

	cashReturn := newReturn("ret-cash", 1)
	result, err := s.RefundReturn(context.Background(), store.RefundCommand{
		TenantID: DefaultTenantID, ReturnID: cashReturn.ID, Method: domain.RefundCash,
		Policy: policy, CashierID: "cashier", At: testNow,
	})
	if err != nil {
		t.Fatalf("cash refund: %v", err)
	}
	if result.Shift == nil || result.Shift.CashReturns != money.FromMajor(25) {
		t.Fatalf("expected cash returns 25.00, got %+v", result.Shift)
	}
	if result.Return.ShiftID != shift.ID {
		t.Fatalf("cash refund must be booked on shift %s, got %q", shift.ID, result.Return.ShiftID)
	}

	creditReturn := newReturn("ret-credit", 2)
	result, err = s.RefundReturn(context.Background(), store.RefundCommand{
		TenantID: DefaultTenantID, ReturnID: creditReturn.ID, Method: domain.RefundStoreCredit,
		Policy: policy, CashierID: "cashier", At: testNow,
	})
	if err != nil {
		t.Fatalf("store credit refund: %v", err)
	}
	if result.Customer == nil || result.Customer.StoreCredit != money.FromMajor(50) {
		t.Fatalf("expected store credit 50.00, got %+v", result.Customer)
	}

	if _, err := s.RefundReturn(context.Background(), store.RefundCommand{
		TenantID: DefaultTenantID, ReturnID: cashReturn.ID, Method: domain.RefundCash,
		Policy: policy, CashierID: "cashier", At: testNow,
	}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected second refund to be rejected, got %v", err)
	}

	refunds, err := s.ListCashRefundsByShift(context.Background(), DefaultTenantID, shift.ID)
	if err != nil {
		t.Fatalf("list cash refunds: %v", err)
	}
	if len(refunds) != 1 || refunds[0].ID != "ret-cash" {
		t.Fatalf("expected only the cash refund on the shift, got %+v", refunds)
	}

	if _, err := s.CreateReturn(context.Background(), DefaultTenantID, sale.ID, func(sale domain.Sale, previous []domain.Return) (domain.Return, error) {
		return domain.NewReturn("ret-over", sale, domain.ReturnCreateRequest{
			SaleID: sale.ID,
			Items:  []domain.ReturnLine{{ProductID: "P1", Qty: 2}},
			Reason: "too many",
		}, policy, previous, "cashier", testNow)
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected over-return to be rejected, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New()
	shift := openTestShift(t, s, "cashier", 0)
	recordSale(t, s, shift, domain.SaleDraft{
		ID:            "sale-1",
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 1, UnitPrice: 100}},
		PaymentMethod: domain.PaymentCash,
	})

	if _, err := s.GetSale(context.Background(), "other-store", "sale-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if _, err := s.GetShift(context.Background(), "other-store", shift.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if _, err := s.GetReturnPolicy(context.Background(), DefaultTenantID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no stored policy, got %v", err)
	}
}
