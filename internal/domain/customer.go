package domain

import (
	"fmt"
	"strings"
	"time"

	"goodsale/backend/internal/money"
)

// Customer carries the receivable for credit sales. Version increases on every
// balance change and is the optimistic-concurrency token clients may pin.
type Customer struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	Name        string       `json:"name"`
	Phone       string       `json:"phone,omitempty"`
	Balance     money.Amount `json:"balance_cents"`
	CreditLimit money.Amount `json:"credit_limit_cents"`
	StoreCredit money.Amount `json:"store_credit_cents"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type CustomerCreateRequest struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"`
	Phone       string       `json:"phone,omitempty"`
	CreditLimit money.Amount `json:"credit_limit_cents"`
}

func (r CustomerCreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if r.CreditLimit.IsNegative() {
		return fmt.Errorf("%w: credit limit must not be negative", ErrValidation)
	}
	return nil
}

// Charge raises the receivable for a credit sale. A zero credit limit means
// the account is unlimited.
func (c *Customer) Charge(amount money.Amount, at time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: charge must be greater than zero", ErrValidation)
	}
	if c.CreditLimit.IsPositive() && c.Balance+amount > c.CreditLimit {
		return fmt.Errorf("%w: credit limit %s exceeded for customer %s", ErrValidation, c.CreditLimit, c.ID)
	}
	c.Balance += amount
	c.touch(at)
	return nil
}

// Settle pays down the receivable. Amounts above the balance are rejected,
// never clamped.
func (c *Customer) Settle(amount money.Amount, at time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: settlement amount must be greater than zero", ErrValidation)
	}
	if amount > c.Balance {
		return fmt.Errorf("%w: %s exceeds balance %s of customer %s", ErrOverpayment, amount, c.Balance, c.ID)
	}
	c.Balance -= amount
	c.touch(at)
	return nil
}

// CreditRefund books a store-credit refund: the receivable is reduced first
// and whatever is left becomes spendable store credit.
func (c *Customer) CreditRefund(amount money.Amount, at time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: refund amount must be greater than zero", ErrValidation)
	}
	applied := money.Min(amount, c.Balance)
	c.Balance -= applied
	c.StoreCredit += amount - applied
	c.touch(at)
	return nil
}

// ReduceReceivable takes up to amount off the balance owed and reports how
// much it took.
func (c *Customer) ReduceReceivable(amount money.Amount, at time.Time) money.Amount {
	applied := money.Min(amount, c.Balance)
	if !applied.IsPositive() {
		return money.Zero
	}
	c.Balance -= applied
	c.touch(at)
	return applied
}

func (c *Customer) touch(at time.Time) {
	c.Version++
	c.UpdatedAt = at.UTC()
}

type Settlement struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	CustomerID string        `json:"customer_id"`
	SaleID     string        `json:"sale_id,omitempty"`
	ShiftID    string        `json:"shift_id"`
	CashierID  string        `json:"cashier_id"`
	Amount     money.Amount  `json:"amount_cents"`
	Method     PaymentMethod `json:"method"`
	CreatedAt  time.Time     `json:"created_at"`
}

type SettlementRequest struct {
	Amount          money.Amount  `json:"amount_cents"`
	Method          PaymentMethod `json:"method"`
	SaleID          string        `json:"sale_id,omitempty"`
	ExpectedVersion *int64        `json:"expected_version,omitempty"`
}

func (r SettlementRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: settlement amount must be greater than zero", ErrValidation)
	}
	if !r.Method.ValidSettlement() {
		return fmt.Errorf("%w: settlement method must be Cash, Card or Mobile", ErrValidation)
	}
	return nil
}

type SettlementResult struct {
	Settlement Settlement `json:"settlement"`
	Customer   Customer   `json:"customer"`
	Sale       *Sale      `json:"sale,omitempty"`
	Shift      Shift      `json:"shift"`
}
