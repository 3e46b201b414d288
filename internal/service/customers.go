package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/store"
	"goodsale/backend/internal/xid"
)

const maxSettlementAttempts = 3

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.Customer{}, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = xid.New("cus")
	}
	now := s.now()
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:          id,
		TenantID:    s.defaultTenantID,
		Name:        strings.TrimSpace(req.Name),
		Phone:       strings.TrimSpace(req.Phone),
		CreditLimit: req.CreditLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, fmt.Sprintf("credit_limit=%d", created.CreditLimit.Cents()))
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, s.defaultTenantID, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// Settle pays down a customer's credit balance, optionally against one sale.
// The repository re-reads the balance under lock. Conflicts are retried here
// unless the client pinned the version it saw.
func (s *Service) Settle(ctx context.Context, customerID string, req domain.SettlementRequest) (domain.SettlementResult, error) {
	actor, err := s.cashier(ctx)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.SettlementResult{}, err
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.SettlementResult{}, fmt.Errorf("%w: customer is required", domain.ErrValidation)
	}

	cmd := store.SettlementCommand{
		Settlement: domain.Settlement{
			ID:         xid.New("stl"),
			TenantID:   s.defaultTenantID,
			CustomerID: customerID,
			SaleID:     strings.TrimSpace(req.SaleID),
			CashierID:  actor.Username,
			Amount:     req.Amount,
			Method:     req.Method,
		},
		ExpectedVersion: req.ExpectedVersion,
	}

	var result *domain.SettlementResult
	for attempt := 1; ; attempt++ {
		cmd.Settlement.CreatedAt = s.now()
		result, err = s.repo.ApplySettlement(ctx, cmd)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || req.ExpectedVersion != nil || attempt >= maxSettlementAttempts {
			return domain.SettlementResult{}, err
		}
		log.Printf("[service] settlement conflict customer=%s attempt=%d, retrying: %v", customerID, attempt, err)
	}

	s.logAudit(ctx, "settlement", "customer", customerID, fmt.Sprintf("amount=%d,method=%s,sale=%s,balance=%d",
		result.Settlement.Amount.Cents(), result.Settlement.Method, result.Settlement.SaleID, result.Customer.Balance.Cents()))
	return *result, nil
}

func (s *Service) ListSettlements(ctx context.Context, customerID string, limit int) ([]domain.Settlement, error) {
	if _, err := s.repo.GetCustomer(ctx, s.defaultTenantID, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListSettlementsByCustomer(ctx, s.defaultTenantID, customerID, limit)
}
