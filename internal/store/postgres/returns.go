package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/store"
	"goodsale/backend/internal/xid"
)

const returnColumns = `id, tenant_id, sale_id, customer_id, items, status, total_return_cents,
	restocking_fee_percent, restocking_fee_cents, refund_cents, credit_applied_cents, refund_method, reason,
	approval_reason, rejection_reason, cancellation_reason, requested_by, refunded_by, shift_id,
	created_at, approved_at, refunded_at, closed_at`

func scanReturn(row rowScanner) (*domain.Return, error) {
	var ret domain.Return
	var customerID, refundMethod, shiftID sql.NullString
	var approvedAt, refundedAt, closedAt sql.NullTime
	var itemsRaw []byte
	err := row.Scan(
		&ret.ID,
		&ret.TenantID,
		&ret.SaleID,
		&customerID,
		&itemsRaw,
		&ret.Status,
		&ret.TotalReturnAmount,
		&ret.RestockingFeePercent,
		&ret.RestockingFeeAmount,
		&ret.RefundAmount,
		&ret.CreditApplied,
		&refundMethod,
		&ret.Reason,
		&ret.ApprovalReason,
		&ret.RejectionReason,
		&ret.CancellationReason,
		&ret.RequestedBy,
		&ret.RefundedBy,
		&shiftID,
		&ret.CreatedAt,
		&approvedAt,
		&refundedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &ret.Items); err != nil {
		return nil, fmt.Errorf("decode items of return %s: %w", ret.ID, err)
	}
	ret.CustomerID = customerID.String
	ret.RefundMethod = domain.RefundMethod(refundMethod.String)
	ret.ShiftID = shiftID.String
	ret.CreatedAt = ret.CreatedAt.UTC()
	ret.ApprovedAt = timePtr(approvedAt)
	ret.RefundedAt = timePtr(refundedAt)
	ret.ClosedAt = timePtr(closedAt)
	return &ret, nil
}

func (s *Store) queryReturns(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, query string, args ...any) ([]domain.Return, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Return, 0, 8)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateReturn(ctx context.Context, tenantID string, saleID string, build store.ReturnBuilder) (*domain.Return, error) {
	var created *domain.Return
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sale, err := lockSale(ctx, tx, tenantID, saleID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: sale %s", domain.ErrNotFound, saleID)
			}
			return err
		}
		previous, err := s.queryReturns(ctx, tx, `
			SELECT `+returnColumns+`
			FROM returns
			WHERE tenant_id = $1 AND sale_id = $2
			ORDER BY created_at ASC
		`, tenantID, saleID)
		if err != nil {
			return err
		}

		ret, err := build(*sale, previous)
		if err != nil {
			return err
		}
		if ret.ID == "" {
			ret.ID = xid.New("ret")
		}
		itemsJSON, err := json.Marshal(ret.Items)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO returns (`+returnColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		`, ret.ID, ret.TenantID, ret.SaleID, nullIfEmpty(ret.CustomerID), string(itemsJSON), string(ret.Status),
			ret.TotalReturnAmount.Cents(), ret.RestockingFeePercent, ret.RestockingFeeAmount.Cents(), ret.RefundAmount.Cents(),
			ret.CreditApplied.Cents(), nullIfEmpty(string(ret.RefundMethod)), ret.Reason, ret.ApprovalReason, ret.RejectionReason, ret.CancellationReason,
			ret.RequestedBy, ret.RefundedBy, nullIfEmpty(ret.ShiftID), ret.CreatedAt,
			nullTime(ret.ApprovedAt), nullTime(ret.RefundedAt), nullTime(ret.ClosedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: return %s already exists", domain.ErrValidation, ret.ID)
			}
			return err
		}
		created = &ret
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetReturn(ctx context.Context, tenantID string, id string) (*domain.Return, error) {
	return scanReturn(s.db.QueryRowContext(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

func lockReturn(ctx context.Context, tx *sql.Tx, tenantID string, id string) (*domain.Return, error) {
	return scanReturn(tx.QueryRowContext(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id))
}

func (s *Store) ListReturnsBySale(ctx context.Context, tenantID string, saleID string) ([]domain.Return, error) {
	return s.queryReturns(ctx, s.db, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE tenant_id = $1 AND sale_id = $2
		ORDER BY created_at ASC
	`, tenantID, saleID)
}

func (s *Store) ListCashRefundsByShift(ctx context.Context, tenantID string, shiftID string) ([]domain.Return, error) {
	return s.queryReturns(ctx, s.db, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE tenant_id = $1 AND shift_id = $2 AND refund_method = 'cash'
		ORDER BY refunded_at ASC
	`, tenantID, shiftID)
}

func saveReturn(ctx context.Context, tx *sql.Tx, ret domain.Return) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE returns
		SET status = $2,
			refund_method = $3,
			approval_reason = $4,
			rejection_reason = $5,
			cancellation_reason = $6,
			refunded_by = $7,
			shift_id = $8,
			approved_at = $9,
			refunded_at = $10,
			closed_at = $11,
			credit_applied_cents = $12
		WHERE id = $1
	`, ret.ID, string(ret.Status), nullIfEmpty(string(ret.RefundMethod)), ret.ApprovalReason, ret.RejectionReason,
		ret.CancellationReason, ret.RefundedBy, nullIfEmpty(ret.ShiftID),
		nullTime(ret.ApprovedAt), nullTime(ret.RefundedAt), nullTime(ret.ClosedAt), ret.CreditApplied.Cents())
	return err
}

func (s *Store) UpdateReturn(ctx context.Context, tenantID string, id string, mutate store.ReturnMutator) (*domain.Return, error) {
	var updated *domain.Return
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := mutate(ret); err != nil {
			return err
		}
		if err := saveReturn(ctx, tx, *ret); err != nil {
			return err
		}
		updated = ret
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) RefundReturn(ctx context.Context, cmd store.RefundCommand) (*store.RefundResult, error) {
	if cmd.At.IsZero() {
		cmd.At = time.Now().UTC()
	}
	var result *store.RefundResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ret, err := lockReturn(ctx, tx, cmd.TenantID, cmd.ReturnID)
		if err != nil {
			return err
		}
		out := &store.RefundResult{}

		var shift *domain.Shift
		if cmd.Method.MovesDrawerCash() && ret.Status == domain.ReturnStatusApproved {
			shift, err = lockActiveShift(ctx, tx, cmd.TenantID, cmd.CashierID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%w: cashier %s has no open shift for a cash refund", domain.ErrInvalidState, cmd.CashierID)
				}
				return err
			}
		}
		shiftID := ""
		if shift != nil {
			shiftID = shift.ID
		}
		if err := ret.MarkRefunded(cmd.Method, cmd.Policy, cmd.CashierID, shiftID, cmd.At); err != nil {
			return err
		}

		var customer *domain.Customer
		var previousVersion int64
		loadCustomer := func() error {
			if customer != nil {
				return nil
			}
			locked, err := lockCustomer(ctx, tx, cmd.TenantID, ret.CustomerID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%w: customer %s", domain.ErrNotFound, ret.CustomerID)
				}
				return err
			}
			customer, previousVersion = locked, locked.Version
			return nil
		}

		sale, err := lockSale(ctx, tx, cmd.TenantID, ret.SaleID)
		if err != nil {
			return err
		}
		if sale.IsCredit() && ret.RefundAmount.IsPositive() {
			sale.ApplyReturnCredit(ret.RefundAmount)
			if err := loadCustomer(); err != nil {
				return err
			}
			ret.CreditApplied = customer.ReduceReceivable(ret.RefundAmount, cmd.At)
			if err := saveSaleSettlement(ctx, tx, *sale); err != nil {
				return fmt.Errorf("%w: update sale amount due: %w", domain.ErrReconciliation, err)
			}
			out.Sale = sale
		}

		payout := ret.Payout()
		switch cmd.Method {
		case domain.RefundCash:
			if payout.IsPositive() {
				if err := shift.RecordCashReturn(payout); err != nil {
					return fmt.Errorf("%w: record cash return: %w", domain.ErrReconciliation, err)
				}
				if err := saveShift(ctx, tx, *shift); err != nil {
					return fmt.Errorf("%w: update shift totals: %w", domain.ErrReconciliation, err)
				}
			}
			out.Shift = shift
		case domain.RefundStoreCredit:
			if err := loadCustomer(); err != nil {
				return err
			}
			if payout.IsPositive() {
				if err := customer.CreditRefund(payout, cmd.At); err != nil {
					return fmt.Errorf("%w: credit customer account: %w", domain.ErrReconciliation, err)
				}
			}
		case domain.RefundCard, domain.RefundMobile:
		}
		if customer != nil {
			if customer.Version != previousVersion {
				if err := saveCustomer(ctx, tx, *customer, previousVersion); err != nil {
					return fmt.Errorf("%w: update customer balance: %w", domain.ErrReconciliation, err)
				}
			}
			out.Customer = customer
		}

		if err := saveReturn(ctx, tx, *ret); err != nil {
			return fmt.Errorf("%w: update return: %w", domain.ErrReconciliation, err)
		}
		out.Return = *ret
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetReturnPolicy(ctx context.Context, tenantID string) (*domain.ReturnPolicy, error) {
	var policy domain.ReturnPolicy
	var methodsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, return_window_days, default_refund_method, allowed_refund_methods,
			restocking_fee_percent, requires_approval, allow_partial_returns, updated_at
		FROM return_policies
		WHERE tenant_id = $1
	`, tenantID).Scan(&policy.TenantID, &policy.ReturnWindowDays, &policy.DefaultRefundMethod, &methodsRaw,
		&policy.RestockingFeePercent, &policy.RequiresApproval, &policy.AllowPartialReturns, &policy.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(methodsRaw, &policy.AllowedRefundMethods); err != nil {
		return nil, fmt.Errorf("decode refund methods of tenant %s: %w", tenantID, err)
	}
	policy.UpdatedAt = policy.UpdatedAt.UTC()
	return &policy, nil
}

func (s *Store) UpsertReturnPolicy(ctx context.Context, policy domain.ReturnPolicy) (*domain.ReturnPolicy, error) {
	if policy.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.UpdatedAt.IsZero() {
		policy.UpdatedAt = time.Now().UTC()
	}
	methodsJSON, err := json.Marshal(policy.AllowedRefundMethods)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO return_policies (
			tenant_id, return_window_days, default_refund_method, allowed_refund_methods,
			restocking_fee_percent, requires_approval, allow_partial_returns, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (tenant_id) DO UPDATE
		SET return_window_days = EXCLUDED.return_window_days,
			default_refund_method = EXCLUDED.default_refund_method,
			allowed_refund_methods = EXCLUDED.allowed_refund_methods,
			restocking_fee_percent = EXCLUDED.restocking_fee_percent,
			requires_approval = EXCLUDED.requires_approval,
			allow_partial_returns = EXCLUDED.allow_partial_returns,
			updated_at = EXCLUDED.updated_at
	`, policy.TenantID, policy.ReturnWindowDays, string(policy.DefaultRefundMethod), string(methodsJSON),
		policy.RestockingFeePercent, policy.RequiresApproval, policy.AllowPartialReturns, policy.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := policy
	return &saved, nil
}
