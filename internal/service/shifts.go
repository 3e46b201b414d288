package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
	"goodsale/backend/internal/xid"
)

func (s *Service) StartShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	actor, err := s.cashier(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	shift, err := domain.NewShift(xid.New("shf"), s.defaultTenantID, actor.Username, money.Amount(req.StartingCashCents), s.now())
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, "shift_open", "shift", saved.ID, fmt.Sprintf("starting_cash=%d", saved.StartingCash.Cents()))
	return domain.ShiftResponse{Shift: *saved}, nil
}

// CloseShift closes the given shift, or the caller's active shift when
// shiftID is empty. Only the owning cashier or an admin may close a shift.
func (s *Service) CloseShift(ctx context.Context, shiftID string, req domain.ShiftCloseRequest) (domain.ShiftResponse, error) {
	actor, err := s.cashier(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	var shift *domain.Shift
	if strings.TrimSpace(shiftID) == "" {
		shift, err = s.repo.GetActiveShift(ctx, s.defaultTenantID, actor.Username)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ShiftResponse{}, fmt.Errorf("%w: cashier %s has no open shift", domain.ErrInvalidState, actor.Username)
		}
	} else {
		shift, err = s.repo.GetShift(ctx, s.defaultTenantID, shiftID)
	}
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if shift.CashierID != actor.Username && actor.Role != "admin" {
		return domain.ShiftResponse{}, fmt.Errorf("%w: shift %s belongs to another cashier", domain.ErrForbidden, shift.ID)
	}

	closed, err := s.repo.CloseShift(ctx, s.defaultTenantID, shift.ID, money.Amount(req.ActualCashCents), strings.TrimSpace(req.Notes), s.now())
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, "shift_close", "shift", closed.ID, fmt.Sprintf("expected=%d,actual=%d,difference=%d",
		closed.ExpectedCash().Cents(), closed.ActualCash.Cents(), closed.CashDifference.Cents()))
	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) ActiveShift(ctx context.Context) (domain.ShiftResponse, error) {
	actor, err := s.cashier(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	shift, err := s.repo.GetActiveShift(ctx, s.defaultTenantID, actor.Username)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (domain.ShiftResponse, error) {
	shift, err := s.repo.GetShift(ctx, s.defaultTenantID, shiftID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) ShiftSummary(ctx context.Context, shiftID string) (domain.ShiftSummary, error) {
	shift, err := s.repo.GetShift(ctx, s.defaultTenantID, shiftID)
	if err != nil {
		return domain.ShiftSummary{}, err
	}
	settlements, err := s.repo.ListSettlementsByShift(ctx, s.defaultTenantID, shift.ID)
	if err != nil {
		return domain.ShiftSummary{}, err
	}
	refunds, err := s.repo.ListCashRefundsByShift(ctx, s.defaultTenantID, shift.ID)
	if err != nil {
		return domain.ShiftSummary{}, err
	}
	return domain.NewShiftSummary(*shift, settlements, refunds), nil
}
