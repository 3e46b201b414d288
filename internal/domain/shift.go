package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"goodsale/backend/internal/money"
	"goodsale/backend/internal/reconcile"
)

// Shift is one cashier's drawer session. Accumulators only grow while the
// shift is open; expected cash is always derived, never stored.
type Shift struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenant_id"`
	CashierID         string        `json:"cashier_id"`
	Status            ShiftStatus   `json:"status"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	StartingCash      money.Amount  `json:"starting_cash_cents"`
	CashSales         money.Amount  `json:"cash_sales_cents"`
	CardSales         money.Amount  `json:"card_sales_cents"`
	MobileSales       money.Amount  `json:"mobile_sales_cents"`
	CreditSales       money.Amount  `json:"credit_sales_cents"`
	CashSettlements   money.Amount  `json:"cash_settlements_cents"`
	CardSettlements   money.Amount  `json:"card_settlements_cents"`
	MobileSettlements money.Amount  `json:"mobile_settlements_cents"`
	CashReturns       money.Amount  `json:"cash_returns_cents"`
	TotalSales        money.Amount  `json:"total_sales_cents"`
	SaleCount         int           `json:"sale_count"`
	ActualCash        *money.Amount `json:"actual_cash_cents,omitempty"`
	CashDifference    *money.Amount `json:"cash_difference_cents,omitempty"`
	Notes             string        `json:"notes,omitempty"`
}

func NewShift(id, tenantID, cashierID string, startingCash money.Amount, at time.Time) (Shift, error) {
	if cashierID == "" {
		return Shift{}, fmt.Errorf("%w: cashier is required", ErrValidation)
	}
	if startingCash.IsNegative() {
		return Shift{}, fmt.Errorf("%w: starting cash must not be negative", ErrValidation)
	}
	return Shift{
		ID:           id,
		TenantID:     tenantID,
		CashierID:    cashierID,
		Status:       ShiftStatusOpen,
		StartTime:    at.UTC(),
		StartingCash: startingCash,
	}, nil
}

func (s Shift) IsOpen() bool {
	return s.Status == ShiftStatusOpen
}

func (s Shift) ExpectedCash() money.Amount {
	return reconcile.ExpectedCash(s.StartingCash, s.CashSales, s.CashSettlements, s.CashReturns)
}

func (s Shift) MarshalJSON() ([]byte, error) {
	type shiftFields Shift
	return json.Marshal(struct {
		shiftFields
		ExpectedCash money.Amount `json:"expected_cash_cents"`
	}{shiftFields(s), s.ExpectedCash()})
}

func (s *Shift) requireOpen() error {
	if !s.IsOpen() {
		return fmt.Errorf("%w: shift %s is %s", ErrInvalidState, s.ID, s.Status)
	}
	return nil
}

// RecordSale routes the sale total into the bucket for its payment method.
func (s *Shift) RecordSale(sale Sale) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if sale.TotalAmount.IsNegative() {
		return fmt.Errorf("%w: sale total must not be negative", ErrValidation)
	}
	switch sale.PaymentMethod {
	case PaymentCash:
		s.CashSales += sale.TotalAmount
	case PaymentCard:
		s.CardSales += sale.TotalAmount
	case PaymentMobile:
		s.MobileSales += sale.TotalAmount
	case PaymentOnCredit:
		s.CreditSales += sale.TotalAmount
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, sale.PaymentMethod)
	}
	s.TotalSales += sale.TotalAmount
	s.SaleCount++
	return nil
}

// RecordSettlement books money collected against a credit balance. Only cash
// settlements change the expected drawer amount.
func (s *Shift) RecordSettlement(amount money.Amount, method PaymentMethod) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: settlement amount must be greater than zero", ErrValidation)
	}
	switch method {
	case PaymentCash:
		s.CashSettlements += amount
	case PaymentCard:
		s.CardSettlements += amount
	case PaymentMobile:
		s.MobileSettlements += amount
	case PaymentOnCredit:
		return fmt.Errorf("%w: a balance cannot be settled on credit", ErrValidation)
	default:
		return fmt.Errorf("%w: unknown settlement method %q", ErrValidation, method)
	}
	return nil
}

func (s *Shift) RecordCashReturn(amount money.Amount) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: cash return amount must be greater than zero", ErrValidation)
	}
	s.CashReturns += amount
	return nil
}

func (s *Shift) Close(actualCash money.Amount, notes string, at time.Time) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if actualCash.IsNegative() {
		return fmt.Errorf("%w: actual cash must not be negative", ErrValidation)
	}
	diff := reconcile.Difference(actualCash, s.ExpectedCash())
	end := at.UTC()
	s.Status = ShiftStatusClosed
	s.EndTime = &end
	s.ActualCash = &actualCash
	s.CashDifference = &diff
	s.Notes = notes
	return nil
}

// ShiftSummary is the end-of-shift reconciliation report.
type ShiftSummary struct {
	Shift           Shift         `json:"shift"`
	ExpectedCash    money.Amount  `json:"expected_cash_cents"`
	ActualCash      *money.Amount `json:"actual_cash_cents,omitempty"`
	CashDifference  *money.Amount `json:"cash_difference_cents,omitempty"`
	Verdict         string        `json:"verdict,omitempty"`
	SalesByMethod   []MethodTotal `json:"sales_by_method"`
	SettlementTotal money.Amount  `json:"settlement_total_cents"`
	Settlements     []Settlement  `json:"settlements"`
	CashRefunds     []Return      `json:"cash_refunds"`
}

type MethodTotal struct {
	Method PaymentMethod `json:"method"`
	Amount money.Amount  `json:"amount_cents"`
}

func NewShiftSummary(shift Shift, settlements []Settlement, cashRefunds []Return) ShiftSummary {
	summary := ShiftSummary{
		Shift:        shift,
		ExpectedCash: shift.ExpectedCash(),
		ActualCash:   shift.ActualCash,
		SalesByMethod: []MethodTotal{
			{Method: PaymentCash, Amount: shift.CashSales},
			{Method: PaymentCard, Amount: shift.CardSales},
			{Method: PaymentMobile, Amount: shift.MobileSales},
			{Method: PaymentOnCredit, Amount: shift.CreditSales},
		},
		SettlementTotal: shift.CashSettlements + shift.CardSettlements + shift.MobileSettlements,
		Settlements:     settlements,
		CashRefunds:     cashRefunds,
	}
	if summary.Settlements == nil {
		summary.Settlements = []Settlement{}
	}
	if summary.CashRefunds == nil {
		summary.CashRefunds = []Return{}
	}
	if shift.ActualCash != nil {
		diff := reconcile.Difference(*shift.ActualCash, summary.ExpectedCash)
		summary.CashDifference = &diff
		summary.Verdict = reconcile.Verdict(diff)
	}
	return summary
}
