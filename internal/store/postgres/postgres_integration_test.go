package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
	"goodsale/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("GOODSALE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GOODSALE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestCreditSaleSettlementAndCashRefundReconcile(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	tenantID := fmt.Sprintf("tenant-it-%d", stamp)
	cashier := fmt.Sprintf("cashier-it-%d", stamp)
	now := time.Now().UTC()

	t.Cleanup(func() {
		for _, table := range []string{"settlements", "returns", "sales", "customers", "shifts", "return_policies"} {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE tenant_id = $1`, tenantID)
		}
	})

	opened, err := domain.NewShift(fmt.Sprintf("shf-it-%d", stamp), tenantID, cashier, money.FromMajor(100), now)
	if err != nil {
		t.Fatalf("new shift: %v", err)
	}
	shift, err := s.CreateShift(ctx, opened)
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	second, _ := domain.NewShift("", tenantID, cashier, 0, now)
	if _, err := s.CreateShift(ctx, second); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected second open shift to be rejected, got %v", err)
	}

	customer, err := s.CreateCustomer(ctx, domain.Customer{TenantID: tenantID, Name: "Integration Buyer"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	creditSale, err := domain.BuildSale(domain.SaleDraft{
		ID:            fmt.Sprintf("sale-credit-it-%d", stamp),
		CustomerID:    customer.ID,
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 2, UnitPrice: money.FromMajor(50)}},
		PaymentMethod: domain.PaymentOnCredit,
	}, *shift, now)
	if err != nil {
		t.Fatalf("build credit sale: %v", err)
	}
	if _, _, dup, err := s.CreateSale(ctx, creditSale); err != nil || dup {
		t.Fatalf("create credit sale: dup=%v err=%v", dup, err)
	}
	if _, _, dup, err := s.CreateSale(ctx, creditSale); err != nil || !dup {
		t.Fatalf("expected replayed sale to be a duplicate, dup=%v err=%v", dup, err)
	}

	cashSale, err := domain.BuildSale(domain.SaleDraft{
		ID:            fmt.Sprintf("sale-cash-it-%d", stamp),
		Items:         []domain.SaleItem{{ProductID: "P2", Qty: 3, UnitPrice: money.FromMajor(30)}},
		PaymentMethod: domain.PaymentCash,
	}, *shift, now)
	if err != nil {
		t.Fatalf("build cash sale: %v", err)
	}
	if _, _, _, err := s.CreateSale(ctx, cashSale); err != nil {
		t.Fatalf("create cash sale: %v", err)
	}

	settlement := domain.Settlement{
		TenantID:   tenantID,
		CustomerID: customer.ID,
		SaleID:     creditSale.ID,
		CashierID:  cashier,
		Amount:     money.FromMajor(200),
		Method:     domain.PaymentCash,
		CreatedAt:  now,
	}
	if _, err := s.ApplySettlement(ctx, store.SettlementCommand{Settlement: settlement}); !errors.Is(err, domain.ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
	settlement.Amount = money.FromMajor(40)
	result, err := s.ApplySettlement(ctx, store.SettlementCommand{Settlement: settlement})
	if err != nil {
		t.Fatalf("apply settlement: %v", err)
	}
	if result.Customer.Balance != money.FromMajor(60) {
		t.Fatalf("expected balance 60.00, got %s", result.Customer.Balance)
	}
	if result.Sale == nil || result.Sale.Status != domain.SaleStatusPending {
		t.Fatalf("expected partially settled sale to stay pending, got %+v", result.Sale)
	}

	policy := domain.DefaultReturnPolicy(tenantID)
	policy.RequiresApproval = false
	policy.RestockingFeePercent = decimal.NewFromInt(10)
	if _, err := s.UpsertReturnPolicy(ctx, policy); err != nil {
		t.Fatalf("upsert policy: %v", err)
	}
	storedPolicy, err := s.GetReturnPolicy(ctx, tenantID)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if !storedPolicy.RestockingFeePercent.Equal(decimal.NewFromInt(10)) || len(storedPolicy.AllowedRefundMethods) != 4 {
		t.Fatalf("unexpected stored policy %+v", storedPolicy)
	}

	ret, err := s.CreateReturn(ctx, tenantID, cashSale.ID, func(sale domain.Sale, previous []domain.Return) (domain.Return, error) {
		return domain.NewReturn(fmt.Sprintf("ret-it-%d", stamp), sale, domain.ReturnCreateRequest{
			SaleID: sale.ID,
			Items:  []domain.ReturnLine{{ProductID: "P2", Qty: 3}},
			Reason: "damaged",
		}, *storedPolicy, previous, cashier, now)
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.Status != domain.ReturnStatusApproved || ret.RefundAmount != money.MustParse("81.00") {
		t.Fatalf("expected auto-approved return refunding 81.00, got %s %s", ret.Status, ret.RefundAmount)
	}

	refund, err := s.RefundReturn(ctx, store.RefundCommand{
		TenantID:  tenantID,
		ReturnID:  ret.ID,
		Method:    domain.RefundCash,
		Policy:    *storedPolicy,
		CashierID: cashier,
		At:        now,
	})
	if err != nil {
		t.Fatalf("refund return: %v", err)
	}
	if refund.Shift == nil || refund.Shift.CashReturns != money.MustParse("81.00") {
		t.Fatalf("expected cash returns 81.00 on shift, got %+v", refund.Shift)
	}

	cashRefunds, err := s.ListCashRefundsByShift(ctx, tenantID, shift.ID)
	if err != nil {
		t.Fatalf("list cash refunds: %v", err)
	}
	if len(cashRefunds) != 1 {
		t.Fatalf("expected 1 cash refund, got %d", len(cashRefunds))
	}

	// 100 + 90 + 40 - 81
	closed, err := s.CloseShift(ctx, tenantID, shift.ID, money.FromMajor(150), "", now)
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.ExpectedCash() != money.FromMajor(149) {
		t.Fatalf("expected cash 149.00, got %s", closed.ExpectedCash())
	}
	if closed.CashDifference == nil || *closed.CashDifference != money.FromMajor(1) {
		t.Fatalf("expected difference 1.00, got %v", closed.CashDifference)
	}
}
