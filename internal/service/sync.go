package service

import (
	"context"
	"errors"
	"strings"

	"goodsale/backend/internal/domain"
)

// SyncOffline replays a device's queued sales in order. Permanent failures
// are rejected and the batch moves on; the first transient failure marks it
// and every later sale as retry so the device keeps them queued in order.
func (s *Service) SyncOffline(ctx context.Context, req domain.OfflineSyncRequest) (domain.OfflineSyncResponse, error) {
	if _, err := s.cashier(ctx); err != nil {
		return domain.OfflineSyncResponse{}, err
	}

	resp := domain.OfflineSyncResponse{
		EnvelopeID: req.EnvelopeID,
		Statuses:   make([]domain.OfflineSyncStatus, 0, len(req.Sales)),
	}

	halted := false
	for _, queued := range req.Sales {
		draft := queued.Sale
		if strings.TrimSpace(draft.ID) == "" {
			draft.ID = queued.ClientSaleID
		}
		draft.Offline = true

		status := domain.OfflineSyncStatus{ClientSaleID: queued.ClientSaleID}
		if halted {
			status.Status = domain.SyncStatusRetry
			resp.Statuses = append(resp.Statuses, status)
			continue
		}

		saleResp, err := s.RecordSale(ctx, draft)
		switch {
		case err == nil && saleResp.Duplicate:
			status.Status = domain.SyncStatusDuplicate
			status.SaleID = saleResp.Sale.ID
		case err == nil:
			status.Status = domain.SyncStatusAccepted
			status.SaleID = saleResp.Sale.ID
			resp.Shift = saleResp.Shift
		case isPermanent(err):
			status.Status = domain.SyncStatusRejected
			status.Reason = err.Error()
		default:
			halted = true
			status.Status = domain.SyncStatusRetry
			status.Reason = err.Error()
		}
		resp.Statuses = append(resp.Statuses, status)
	}

	if resp.Shift == nil {
		if active, err := s.ActiveShift(ctx); err == nil {
			resp.Shift = &active.Shift
		}
	}
	return resp, nil
}

// isPermanent reports whether resubmitting the same sale can never succeed.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrForbidden)
}
