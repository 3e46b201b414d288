package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/xid"
)

// RecordSale books a sale on the caller's open shift. The sale id is the
// idempotency key: a replayed id returns the stored sale with Duplicate set
// and changes nothing, even after the original shift has closed.
func (s *Service) RecordSale(ctx context.Context, draft domain.SaleDraft) (domain.SaleResponse, error) {
	actor, err := s.cashier(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	draft.ID = strings.TrimSpace(draft.ID)
	if draft.ID == "" {
		draft.ID = xid.New("sale")
	}
	draft.Offline = draft.Offline || xid.IsOffline(draft.ID)

	existing, err := s.repo.GetSale(ctx, s.defaultTenantID, draft.ID)
	switch {
	case err == nil:
		return s.duplicateSale(ctx, *existing)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.SaleResponse{}, err
	}

	shift, err := s.repo.GetActiveShift(ctx, s.defaultTenantID, actor.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SaleResponse{}, fmt.Errorf("%w: cashier %s has no open shift", domain.ErrInvalidState, actor.Username)
		}
		return domain.SaleResponse{}, err
	}

	sale, err := domain.BuildSale(draft, *shift, s.now())
	if err != nil {
		return domain.SaleResponse{}, err
	}
	saved, updatedShift, duplicate, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if duplicate {
		return domain.SaleResponse{Sale: *saved, Shift: updatedShift, Duplicate: true}, nil
	}

	s.logAudit(ctx, "sale_create", "sale", saved.ID, fmt.Sprintf("method=%s,total=%d,offline=%t",
		saved.PaymentMethod, saved.TotalAmount.Cents(), saved.Offline))
	return domain.SaleResponse{Sale: *saved, Shift: updatedShift}, nil
}

func (s *Service) duplicateSale(ctx context.Context, sale domain.Sale) (domain.SaleResponse, error) {
	resp := domain.SaleResponse{Sale: sale, Duplicate: true}
	shift, err := s.repo.GetShift(ctx, s.defaultTenantID, sale.ShiftID)
	switch {
	case err == nil:
		resp.Shift = shift
	case !errors.Is(err, domain.ErrNotFound):
		return domain.SaleResponse{}, err
	}
	return resp, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, s.defaultTenantID, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}
