package domain

import (
	"fmt"
	"strings"
	"time"

	"goodsale/backend/internal/money"
)

type SaleItem struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name,omitempty"`
	Qty       int          `json:"qty"`
	UnitPrice money.Amount `json:"unit_price_cents"`
	UnitCost  money.Amount `json:"unit_cost_cents"`
}

func (i SaleItem) LineTotal() money.Amount {
	return i.UnitPrice.Mul(i.Qty)
}

// Sale is immutable after creation except for AmountSettled and Status, which
// only move through ApplySettlement.
type Sale struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	ShiftID        string        `json:"shift_id"`
	CashierID      string        `json:"cashier_id"`
	CustomerID     string        `json:"customer_id,omitempty"`
	Items          []SaleItem    `json:"items"`
	DiscountAmount money.Amount  `json:"discount_cents"`
	TaxAmount      money.Amount  `json:"tax_cents"`
	TotalAmount    money.Amount  `json:"total_cents"`
	TotalProfit    money.Amount  `json:"total_profit_cents"`
	AmountSettled  money.Amount  `json:"amount_settled_cents"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	Status         SaleStatus    `json:"status"`
	Offline        bool          `json:"offline"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (s Sale) IsCredit() bool {
	return s.PaymentMethod == PaymentOnCredit
}

func (s Sale) AmountDue() money.Amount {
	return s.TotalAmount - s.AmountSettled
}

// Subtotal is the value of the lines before discount and tax.
func (s Sale) Subtotal() money.Amount {
	var subtotal money.Amount
	for _, item := range s.Items {
		subtotal += item.LineTotal()
	}
	return subtotal
}

// SaleDraft is what a terminal submits. Totals are computed server side from
// the lines, the discount and the externally supplied tax amount.
type SaleDraft struct {
	ID                 string        `json:"id"`
	CustomerID         string        `json:"customer_id,omitempty"`
	Items              []SaleItem    `json:"items"`
	DiscountAmount     money.Amount  `json:"discount_cents"`
	TaxAmount          money.Amount  `json:"tax_cents"`
	PaymentMethod      PaymentMethod `json:"payment_method"`
	AwaitingCollection bool          `json:"awaiting_collection,omitempty"`
	Offline            bool          `json:"offline,omitempty"`
	CreatedAt          *time.Time    `json:"created_at,omitempty"`
}

// BuildSale validates a draft and prices it into a Sale bound to the shift.
func BuildSale(draft SaleDraft, shift Shift, now time.Time) (Sale, error) {
	if strings.TrimSpace(draft.ID) == "" {
		return Sale{}, fmt.Errorf("%w: sale id is required", ErrValidation)
	}
	if len(draft.Items) == 0 {
		return Sale{}, fmt.Errorf("%w: sale has no items", ErrValidation)
	}
	if !draft.PaymentMethod.Valid() {
		return Sale{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, draft.PaymentMethod)
	}
	if draft.DiscountAmount.IsNegative() || draft.TaxAmount.IsNegative() {
		return Sale{}, fmt.Errorf("%w: discount and tax must not be negative", ErrValidation)
	}

	items := make([]SaleItem, 0, len(draft.Items))
	var subtotal, cost money.Amount
	for _, item := range draft.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return Sale{}, fmt.Errorf("%w: item product id is required", ErrValidation)
		}
		if item.Qty <= 0 {
			return Sale{}, fmt.Errorf("%w: qty for %s must be greater than zero", ErrValidation, item.ProductID)
		}
		if item.UnitPrice.IsNegative() || item.UnitCost.IsNegative() {
			return Sale{}, fmt.Errorf("%w: price and cost for %s must not be negative", ErrValidation, item.ProductID)
		}
		subtotal += item.LineTotal()
		cost += item.UnitCost.Mul(item.Qty)
		items = append(items, item)
	}
	if draft.DiscountAmount > subtotal {
		return Sale{}, fmt.Errorf("%w: discount exceeds subtotal", ErrValidation)
	}

	sale := Sale{
		ID:             draft.ID,
		TenantID:       shift.TenantID,
		ShiftID:        shift.ID,
		CashierID:      shift.CashierID,
		CustomerID:     strings.TrimSpace(draft.CustomerID),
		Items:          items,
		DiscountAmount: draft.DiscountAmount,
		TaxAmount:      draft.TaxAmount,
		TotalAmount:    subtotal - draft.DiscountAmount + draft.TaxAmount,
		TotalProfit:    subtotal - draft.DiscountAmount - cost,
		PaymentMethod:  draft.PaymentMethod,
		Offline:        draft.Offline,
		CreatedAt:      now.UTC(),
	}
	if draft.CreatedAt != nil && !draft.CreatedAt.IsZero() {
		sale.CreatedAt = draft.CreatedAt.UTC()
	}

	switch sale.PaymentMethod {
	case PaymentOnCredit:
		if sale.CustomerID == "" {
			return Sale{}, fmt.Errorf("%w: credit sales require a customer", ErrValidation)
		}
		if !sale.TotalAmount.IsPositive() {
			return Sale{}, fmt.Errorf("%w: credit sale total must be greater than zero", ErrValidation)
		}
		sale.Status = SaleStatusPending
		if draft.AwaitingCollection {
			sale.Status = SaleStatusAwaitingCollection
		}
	case PaymentCash, PaymentCard, PaymentMobile:
		sale.Status = SaleStatusPaid
		sale.AmountSettled = sale.TotalAmount
	}
	return sale, nil
}

// ApplySettlement moves part of a credit sale's outstanding amount to settled.
// The sale becomes Paid only when nothing is left to collect.
func (s *Sale) ApplySettlement(customerID string, amount money.Amount) error {
	if !s.IsCredit() || s.CustomerID != customerID {
		return fmt.Errorf("%w: sale %s is not a credit sale of customer %s", ErrInvalidState, s.ID, customerID)
	}
	if s.Status == SaleStatusPaid {
		return fmt.Errorf("%w: sale %s is already paid", ErrInvalidState, s.ID)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: settlement amount must be greater than zero", ErrValidation)
	}
	if amount > s.AmountDue() {
		return fmt.Errorf("%w: %s exceeds the %s still due on sale %s", ErrOverpayment, amount, s.AmountDue(), s.ID)
	}
	s.AmountSettled += amount
	if s.AmountSettled == s.TotalAmount {
		s.Status = SaleStatusPaid
	}
	return nil
}

// ApplyReturnCredit writes returned goods off the amount still due on a
// credit sale and reports how much was written off.
func (s *Sale) ApplyReturnCredit(amount money.Amount) money.Amount {
	if !s.IsCredit() || s.Status == SaleStatusPaid || !amount.IsPositive() {
		return money.Zero
	}
	applied := money.Min(amount, s.AmountDue())
	s.AmountSettled += applied
	if s.AmountSettled == s.TotalAmount {
		s.Status = SaleStatusPaid
	}
	return applied
}

type SaleResponse struct {
	Sale      Sale   `json:"sale"`
	Shift     *Shift `json:"shift,omitempty"`
	Duplicate bool   `json:"duplicate"`
}
