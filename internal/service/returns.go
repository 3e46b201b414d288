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

// ReturnPolicy returns the tenant's policy, falling back to the defaults when
// none has been stored.
func (s *Service) ReturnPolicy(ctx context.Context) (domain.ReturnPolicy, error) {
	if cached, ok, err := s.policies.Get(ctx, s.defaultTenantID); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: policy cache read failed tenant=%s: %v", s.defaultTenantID, err)
	}

	policy := domain.DefaultReturnPolicy(s.defaultTenantID)
	stored, err := s.repo.GetReturnPolicy(ctx, s.defaultTenantID)
	switch {
	case err == nil:
		policy = *stored
	case !errors.Is(err, domain.ErrNotFound):
		return domain.ReturnPolicy{}, err
	}

	if err := s.policies.Set(ctx, policy, s.policyTTL); err != nil {
		log.Printf("[service] WARN: policy cache write failed tenant=%s: %v", s.defaultTenantID, err)
	}
	return policy, nil
}

func (s *Service) UpdateReturnPolicy(ctx context.Context, policy domain.ReturnPolicy) (domain.ReturnPolicy, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.ReturnPolicy{}, err
	}
	policy.TenantID = s.defaultTenantID
	policy.UpdatedAt = s.now()
	if err := policy.Validate(); err != nil {
		return domain.ReturnPolicy{}, err
	}

	saved, err := s.repo.UpsertReturnPolicy(ctx, policy)
	if err != nil {
		return domain.ReturnPolicy{}, err
	}
	if err := s.policies.Invalidate(ctx, s.defaultTenantID); err != nil {
		log.Printf("[service] WARN: policy cache invalidation failed tenant=%s: %v", s.defaultTenantID, err)
	}

	s.logAudit(ctx, "return_policy_update", "return_policy", saved.TenantID, fmt.Sprintf("window=%d,fee=%s,approval=%t,partial=%t",
		saved.ReturnWindowDays, saved.RestockingFeePercent.String(), saved.RequiresApproval, saved.AllowPartialReturns))
	return *saved, nil
}

func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	actor, err := s.cashier(ctx)
	if err != nil {
		return domain.Return{}, err
	}
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return domain.Return{}, fmt.Errorf("%w: sale is required", domain.ErrValidation)
	}
	policy, err := s.ReturnPolicy(ctx)
	if err != nil {
		return domain.Return{}, err
	}

	now := s.now()
	created, err := s.repo.CreateReturn(ctx, s.defaultTenantID, req.SaleID, func(sale domain.Sale, previous []domain.Return) (domain.Return, error) {
		return domain.NewReturn(xid.New("ret"), sale, req, policy, previous, actor.Username, now)
	})
	if err != nil {
		return domain.Return{}, err
	}

	s.logAudit(ctx, "return_create", "return", created.ID, fmt.Sprintf("sale=%s,refund=%d,status=%s",
		created.SaleID, created.RefundAmount.Cents(), created.Status))
	return *created, nil
}

func (s *Service) GetReturn(ctx context.Context, returnID string) (domain.Return, error) {
	ret, err := s.repo.GetReturn(ctx, s.defaultTenantID, strings.TrimSpace(returnID))
	if err != nil {
		return domain.Return{}, err
	}
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, saleID string) ([]domain.Return, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return nil, fmt.Errorf("%w: sale_id is required", domain.ErrValidation)
	}
	return s.repo.ListReturnsBySale(ctx, s.defaultTenantID, saleID)
}

// ActOnReturn drives a return through its lifecycle. Approve and reject are
// manager decisions; refund and cancel are open to the cashier.
func (s *Service) ActOnReturn(ctx context.Context, returnID string, req domain.ReturnActionRequest) (store.RefundResult, error) {
	actor, err := s.cashier(ctx)
	if err != nil {
		return store.RefundResult{}, err
	}
	returnID = strings.TrimSpace(returnID)
	now := s.now()

	var mutate store.ReturnMutator
	switch req.Action {
	case domain.ReturnActionApprove:
		if _, err := s.requireAdmin(ctx); err != nil {
			return store.RefundResult{}, err
		}
		mutate = func(ret *domain.Return) error { return ret.Approve(req.Reason, now) }
	case domain.ReturnActionReject:
		if _, err := s.requireAdmin(ctx); err != nil {
			return store.RefundResult{}, err
		}
		mutate = func(ret *domain.Return) error { return ret.Reject(req.Reason, now) }
	case domain.ReturnActionCancel:
		mutate = func(ret *domain.Return) error { return ret.Cancel(req.Reason, now) }
	case domain.ReturnActionRefund:
		return s.refundReturn(ctx, actor, returnID, req.RefundMethod)
	default:
		return store.RefundResult{}, fmt.Errorf("%w: unknown return action %q", domain.ErrValidation, req.Action)
	}

	updated, err := s.repo.UpdateReturn(ctx, s.defaultTenantID, returnID, mutate)
	if err != nil {
		return store.RefundResult{}, err
	}
	s.logAudit(ctx, "return_"+string(req.Action), "return", updated.ID, strings.TrimSpace(req.Reason))
	return store.RefundResult{Return: *updated}, nil
}

func (s *Service) refundReturn(ctx context.Context, actor domain.Actor, returnID string, method domain.RefundMethod) (store.RefundResult, error) {
	policy, err := s.ReturnPolicy(ctx)
	if err != nil {
		return store.RefundResult{}, err
	}
	if method == "" {
		method = policy.DefaultRefundMethod
	}

	result, err := s.repo.RefundReturn(ctx, store.RefundCommand{
		TenantID:  s.defaultTenantID,
		ReturnID:  returnID,
		Method:    method,
		Policy:    policy,
		CashierID: actor.Username,
		At:        s.now(),
	})
	if err != nil {
		return store.RefundResult{}, err
	}

	s.logAudit(ctx, "return_refund", "return", result.Return.ID, fmt.Sprintf("method=%s,amount=%d,credit_applied=%d,shift=%s",
		result.Return.RefundMethod, result.Return.RefundAmount.Cents(), result.Return.CreditApplied.Cents(), result.Return.ShiftID))
	return *result, nil
}
