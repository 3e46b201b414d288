package store

import (
	"context"
	"time"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
)

// ReturnBuilder prices a new return from the sale and the returns already
// filed against it. Repositories call it while holding the sale lock.
type ReturnBuilder func(sale domain.Sale, previous []domain.Return) (domain.Return, error)

// ReturnMutator applies a non-monetary transition (approve, reject, cancel).
type ReturnMutator func(ret *domain.Return) error

type SettlementCommand struct {
	Settlement      domain.Settlement
	ExpectedVersion *int64
}

type RefundCommand struct {
	TenantID  string
	ReturnID  string
	Method    domain.RefundMethod
	Policy    domain.ReturnPolicy
	CashierID string
	At        time.Time
}

type RefundResult struct {
	Return   domain.Return    `json:"return"`
	Shift    *domain.Shift    `json:"shift,omitempty"`
	Customer *domain.Customer `json:"customer,omitempty"`
	Sale     *domain.Sale     `json:"sale,omitempty"`
}

type ShiftRepository interface {
	// CreateShift fails with domain.ErrValidation when the cashier already
	// has an open shift.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, tenantID string, id string) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, tenantID string, cashierID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, tenantID string, id string, actualCash money.Amount, notes string, closedAt time.Time) (*domain.Shift, error)
}

type SaleRepository interface {
	// CreateSale records the sale, books it on its shift and, for credit
	// sales, charges the customer, all in one unit. A sale id that already
	// exists returns the stored sale with duplicate=true and changes nothing.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, *domain.Shift, bool, error)
	GetSale(ctx context.Context, tenantID string, id string) (*domain.Sale, error)
}

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, tenantID string, id string) (*domain.Customer, error)
	// ApplySettlement re-reads the balance under lock; the caller's view of
	// the customer is never trusted.
	ApplySettlement(ctx context.Context, cmd SettlementCommand) (*domain.SettlementResult, error)
	ListSettlementsByCustomer(ctx context.Context, tenantID string, customerID string, limit int) ([]domain.Settlement, error)
	ListSettlementsByShift(ctx context.Context, tenantID string, shiftID string) ([]domain.Settlement, error)
}

type ReturnRepository interface {
	CreateReturn(ctx context.Context, tenantID string, saleID string, build ReturnBuilder) (*domain.Return, error)
	GetReturn(ctx context.Context, tenantID string, id string) (*domain.Return, error)
	ListReturnsBySale(ctx context.Context, tenantID string, saleID string) ([]domain.Return, error)
	ListCashRefundsByShift(ctx context.Context, tenantID string, shiftID string) ([]domain.Return, error)
	UpdateReturn(ctx context.Context, tenantID string, id string, mutate ReturnMutator) (*domain.Return, error)
	// RefundReturn pays out an approved return. On a credit sale the refund
	// first comes off the customer's receivable and the sale's amount due;
	// only the rest goes back through the refund method.
	RefundReturn(ctx context.Context, cmd RefundCommand) (*RefundResult, error)
	GetReturnPolicy(ctx context.Context, tenantID string) (*domain.ReturnPolicy, error)
	UpsertReturnPolicy(ctx context.Context, policy domain.ReturnPolicy) (*domain.ReturnPolicy, error)
}

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	ShiftRepository
	SaleRepository
	CustomerRepository
	ReturnRepository
	AuditRepository
	UserRepository
}
