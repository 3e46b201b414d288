package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"goodsale/backend/internal/money"
)

const AutoApprovalReason = "auto-approved by policy"

type ReturnPolicy struct {
	TenantID             string          `json:"tenant_id"`
	ReturnWindowDays     int             `json:"return_window_days"`
	DefaultRefundMethod  RefundMethod    `json:"default_refund_method"`
	AllowedRefundMethods []RefundMethod  `json:"allowed_refund_methods"`
	RestockingFeePercent decimal.Decimal `json:"restocking_fee_percent"`
	RequiresApproval     bool            `json:"requires_approval"`
	AllowPartialReturns  bool            `json:"allow_partial_returns"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func DefaultReturnPolicy(tenantID string) ReturnPolicy {
	return ReturnPolicy{
		TenantID:             tenantID,
		ReturnWindowDays:     30,
		DefaultRefundMethod:  RefundCash,
		AllowedRefundMethods: []RefundMethod{RefundCash, RefundStoreCredit, RefundCard, RefundMobile},
		RestockingFeePercent: decimal.Zero,
		RequiresApproval:     true,
		AllowPartialReturns:  true,
	}
}

var hundredPercent = decimal.NewFromInt(100)

func (p ReturnPolicy) Validate() error {
	if p.ReturnWindowDays < 0 {
		return fmt.Errorf("%w: return window must not be negative", ErrValidation)
	}
	if p.RestockingFeePercent.IsNegative() || p.RestockingFeePercent.GreaterThan(hundredPercent) {
		return fmt.Errorf("%w: restocking fee percent must be between 0 and 100", ErrValidation)
	}
	if !p.RestockingFeePercent.Equal(p.RestockingFeePercent.Truncate(2)) {
		return fmt.Errorf("%w: restocking fee percent allows at most two decimal places", ErrValidation)
	}
	if len(p.AllowedRefundMethods) == 0 {
		return fmt.Errorf("%w: at least one refund method must be allowed", ErrValidation)
	}
	for _, m := range p.AllowedRefundMethods {
		if !m.Valid() {
			return fmt.Errorf("%w: unknown refund method %q", ErrValidation, m)
		}
	}
	if !p.AllowsRefundMethod(p.DefaultRefundMethod) {
		return fmt.Errorf("%w: default refund method %q is not allowed", ErrValidation, p.DefaultRefundMethod)
	}
	return nil
}

func (p ReturnPolicy) AllowsRefundMethod(m RefundMethod) bool {
	for _, allowed := range p.AllowedRefundMethods {
		if allowed == m {
			return true
		}
	}
	return false
}

// WithinWindow reports whether a sale made at soldAt can still be returned.
// A zero window disables the check.
func (p ReturnPolicy) WithinWindow(soldAt, now time.Time) bool {
	if p.ReturnWindowDays == 0 {
		return true
	}
	deadline := soldAt.AddDate(0, 0, p.ReturnWindowDays)
	return !now.After(deadline)
}

type ReturnItem struct {
	ProductID string       `json:"product_id"`
	Qty       int          `json:"qty"`
	UnitPrice money.Amount `json:"unit_price_cents"`
}

type Return struct {
	ID                   string          `json:"id"`
	TenantID             string          `json:"tenant_id"`
	SaleID               string          `json:"sale_id"`
	CustomerID           string          `json:"customer_id,omitempty"`
	Items                []ReturnItem    `json:"items"`
	Status               ReturnStatus    `json:"status"`
	TotalReturnAmount    money.Amount    `json:"total_return_cents"`
	RestockingFeePercent decimal.Decimal `json:"restocking_fee_percent"`
	RestockingFeeAmount  money.Amount    `json:"restocking_fee_cents"`
	RefundAmount         money.Amount    `json:"refund_cents"`
	CreditApplied        money.Amount    `json:"credit_applied_cents"`
	RefundMethod         RefundMethod    `json:"refund_method,omitempty"`
	Reason               string          `json:"reason"`
	ApprovalReason       string          `json:"approval_reason,omitempty"`
	RejectionReason      string          `json:"rejection_reason,omitempty"`
	CancellationReason   string          `json:"cancellation_reason,omitempty"`
	RequestedBy          string          `json:"requested_by"`
	RefundedBy           string          `json:"refunded_by,omitempty"`
	ShiftID              string          `json:"shift_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty"`
	RefundedAt           *time.Time      `json:"refunded_at,omitempty"`
	ClosedAt             *time.Time      `json:"closed_at,omitempty"`
}

type ReturnLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ReturnCreateRequest struct {
	SaleID string       `json:"sale_id"`
	Items  []ReturnLine `json:"items"`
	Reason string       `json:"reason"`
}

type ReturnActionRequest struct {
	Action       ReturnAction `json:"action"`
	Reason       string       `json:"reason,omitempty"`
	RefundMethod RefundMethod `json:"refund_method,omitempty"`
}

// ReturnedQuantities sums units per product that earlier returns still hold
// against a sale.
func ReturnedQuantities(returns []Return) map[string]int {
	out := make(map[string]int)
	for _, r := range returns {
		if !r.Status.CountsAgainstSale() {
			continue
		}
		for _, item := range r.Items {
			out[item.ProductID] += item.Qty
		}
	}
	return out
}

// Payout is the part of the refund handed back through the refund method.
// The rest was written off the customer's receivable.
func (r Return) Payout() money.Amount {
	return r.RefundAmount - r.CreditApplied
}

// ReturnedValue sums the amounts earlier returns still hold against a sale.
func ReturnedValue(returns []Return) money.Amount {
	var total money.Amount
	for _, r := range returns {
		if r.Status.CountsAgainstSale() {
			total += r.TotalReturnAmount
		}
	}
	return total
}

// NewReturn prices a return request against the sale it reverses. Returned
// lines are valued at their share of what the sale actually charged, so the
// sale's discount and tax are spread over the lines by value. The fee percent
// is copied from the policy so later policy edits do not change the refund.
func NewReturn(id string, sale Sale, req ReturnCreateRequest, policy ReturnPolicy, previous []Return, requestedBy string, now time.Time) (Return, error) {
	if len(req.Items) == 0 {
		return Return{}, fmt.Errorf("%w: return has no items", ErrValidation)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return Return{}, fmt.Errorf("%w: return reason is required", ErrValidation)
	}
	if !policy.WithinWindow(sale.CreatedAt, now) {
		return Return{}, fmt.Errorf("%w: sale %s is outside the %d day return window", ErrInvalidState, sale.ID, policy.ReturnWindowDays)
	}

	purchased := make(map[string]SaleItem, len(sale.Items))
	soldQty := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if _, ok := purchased[item.ProductID]; !ok {
			purchased[item.ProductID] = item
		}
		soldQty[item.ProductID] += item.Qty
	}
	alreadyReturned := ReturnedQuantities(previous)

	requested := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if _, ok := purchased[productID]; !ok {
			return Return{}, fmt.Errorf("%w: product %s is not part of sale %s", ErrValidation, productID, sale.ID)
		}
		if line.Qty <= 0 {
			return Return{}, fmt.Errorf("%w: qty for %s must be greater than zero", ErrValidation, productID)
		}
		if _, seen := requested[productID]; !seen {
			order = append(order, productID)
		}
		requested[productID] += line.Qty
	}

	items := make([]ReturnItem, 0, len(order))
	var returnedValue money.Amount
	for _, productID := range order {
		remaining := soldQty[productID] - alreadyReturned[productID]
		qty := requested[productID]
		if qty > remaining {
			return Return{}, fmt.Errorf("%w: only %d of %s left to return", ErrValidation, remaining, productID)
		}
		line := ReturnItem{ProductID: productID, Qty: qty, UnitPrice: purchased[productID].UnitPrice}
		returnedValue += line.UnitPrice.Mul(qty)
		items = append(items, line)
	}
	lastUnits := true
	for productID, sold := range soldQty {
		if requested[productID] != sold-alreadyReturned[productID] {
			lastUnits = false
			break
		}
	}
	if !policy.AllowPartialReturns && !lastUnits {
		return Return{}, fmt.Errorf("%w: partial returns are not allowed; return every remaining unit", ErrValidation)
	}

	total := sale.TotalAmount.Prorate(returnedValue, sale.Subtotal())
	if left := sale.TotalAmount - ReturnedValue(previous); lastUnits || total > left {
		total = left
	}

	fee := total.Percent(policy.RestockingFeePercent)
	ret := Return{
		ID:                   id,
		TenantID:             sale.TenantID,
		SaleID:               sale.ID,
		CustomerID:           sale.CustomerID,
		Items:                items,
		Status:               ReturnStatusPending,
		TotalReturnAmount:    total,
		RestockingFeePercent: policy.RestockingFeePercent,
		RestockingFeeAmount:  fee,
		RefundAmount:         total - fee,
		Reason:               strings.TrimSpace(req.Reason),
		RequestedBy:          requestedBy,
		CreatedAt:            now.UTC(),
	}
	if !policy.RequiresApproval {
		if err := ret.Approve(AutoApprovalReason, now); err != nil {
			return Return{}, err
		}
	}
	return ret, nil
}

func (r *Return) transition(from, to ReturnStatus) error {
	if r.Status != from {
		return fmt.Errorf("%w: return %s is %s, cannot move to %s", ErrInvalidState, r.ID, r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *Return) Approve(reason string, at time.Time) error {
	if err := r.transition(ReturnStatusPending, ReturnStatusApproved); err != nil {
		return err
	}
	approved := at.UTC()
	r.ApprovalReason = strings.TrimSpace(reason)
	r.ApprovedAt = &approved
	return nil
}

func (r *Return) Reject(reason string, at time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	if err := r.transition(ReturnStatusPending, ReturnStatusRejected); err != nil {
		return err
	}
	closed := at.UTC()
	r.RejectionReason = strings.TrimSpace(reason)
	r.ClosedAt = &closed
	return nil
}

func (r *Return) Cancel(reason string, at time.Time) error {
	if err := r.transition(ReturnStatusPending, ReturnStatusCancelled); err != nil {
		return err
	}
	closed := at.UTC()
	r.CancellationReason = strings.TrimSpace(reason)
	r.ClosedAt = &closed
	return nil
}

// MarkRefunded finalises an approved return. RefundAmount is not recomputed.
func (r *Return) MarkRefunded(method RefundMethod, policy ReturnPolicy, by, shiftID string, at time.Time) error {
	if r.Status != ReturnStatusApproved {
		return fmt.Errorf("%w: return %s is %s, cannot move to %s", ErrInvalidState, r.ID, r.Status, ReturnStatusRefunded)
	}
	if !method.Valid() {
		return fmt.Errorf("%w: unknown refund method %q", ErrValidation, method)
	}
	if !policy.AllowsRefundMethod(method) {
		return fmt.Errorf("%w: refund method %q is not allowed by policy", ErrValidation, method)
	}
	if method == RefundStoreCredit && r.CustomerID == "" {
		return fmt.Errorf("%w: store credit refunds need a customer on the sale", ErrValidation)
	}
	r.Status = ReturnStatusRefunded
	refunded := at.UTC()
	r.RefundMethod = method
	r.RefundedBy = by
	r.RefundedAt = &refunded
	r.ClosedAt = &refunded
	if method.MovesDrawerCash() {
		r.ShiftID = shiftID
	}
	return nil
}
