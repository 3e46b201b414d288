package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/store"
	"goodsale/backend/internal/xid"
)

const customerColumns = `id, tenant_id, name, phone, balance_cents, credit_limit_cents,
	store_credit_cents, version, created_at, updated_at`

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Balance, &c.CreditLimit,
		&c.StoreCredit, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.TenantID == "" || customer.Name == "" {
		return nil, fmt.Errorf("%w: tenant and name are required", domain.ErrValidation)
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.UpdatedAt = customer.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, customer.ID, customer.TenantID, customer.Name, customer.Phone, customer.Balance.Cents(),
		customer.CreditLimit.Cents(), customer.StoreCredit.Cents(), customer.Version, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer %s already exists", domain.ErrValidation, customer.ID)
		}
		return nil, err
	}
	saved := customer
	return &saved, nil
}

func (s *Store) GetCustomer(ctx context.Context, tenantID string, id string) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

func lockCustomer(ctx context.Context, tx *sql.Tx, tenantID string, id string) (*domain.Customer, error) {
	return scanCustomer(tx.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id))
}

// saveCustomer writes balances guarded by the version read under lock.
func saveCustomer(ctx context.Context, tx *sql.Tx, customer domain.Customer, previousVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET balance_cents = $3, store_credit_cents = $4, version = $5, updated_at = $6
		WHERE id = $1 AND version = $2
	`, customer.ID, previousVersion, customer.Balance.Cents(), customer.StoreCredit.Cents(), customer.Version, customer.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: customer %s changed concurrently", domain.ErrConflict, customer.ID)
	}
	return nil
}

func (s *Store) ApplySettlement(ctx context.Context, cmd store.SettlementCommand) (*domain.SettlementResult, error) {
	record := cmd.Settlement
	if record.ID == "" {
		record.ID = xid.New("stl")
	}

	var result *domain.SettlementResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		customer, err := lockCustomer(ctx, tx, record.TenantID, record.CustomerID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: customer %s", domain.ErrNotFound, record.CustomerID)
			}
			return err
		}
		if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != customer.Version {
			return fmt.Errorf("%w: customer %s is at version %d, not %d", domain.ErrConflict, customer.ID, customer.Version, *cmd.ExpectedVersion)
		}
		previousVersion := customer.Version
		if err := customer.Settle(record.Amount, record.CreatedAt); err != nil {
			return err
		}

		var sale *domain.Sale
		if record.SaleID != "" {
			sale, err = lockSale(ctx, tx, record.TenantID, record.SaleID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%w: sale %s", domain.ErrNotFound, record.SaleID)
				}
				return err
			}
			if err := sale.ApplySettlement(customer.ID, record.Amount); err != nil {
				return err
			}
		}

		shift, err := lockActiveShift(ctx, tx, record.TenantID, record.CashierID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: cashier %s has no open shift", domain.ErrInvalidState, record.CashierID)
			}
			return err
		}
		if err := shift.RecordSettlement(record.Amount, record.Method); err != nil {
			return err
		}
		record.ShiftID = shift.ID

		if err := saveCustomer(ctx, tx, *customer, previousVersion); err != nil {
			return fmt.Errorf("%w: update customer balance: %w", domain.ErrReconciliation, err)
		}
		if sale != nil {
			if err := saveSaleSettlement(ctx, tx, *sale); err != nil {
				return fmt.Errorf("%w: update sale settled amount: %w", domain.ErrReconciliation, err)
			}
		}
		if err := saveShift(ctx, tx, *shift); err != nil {
			return fmt.Errorf("%w: update shift totals: %w", domain.ErrReconciliation, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO settlements (id, tenant_id, customer_id, sale_id, shift_id, cashier_id, amount_cents, method, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, record.ID, record.TenantID, record.CustomerID, nullIfEmpty(record.SaleID), record.ShiftID,
			record.CashierID, record.Amount.Cents(), string(record.Method), record.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: insert settlement record: %w", domain.ErrReconciliation, err)
		}

		result = &domain.SettlementResult{
			Settlement: record,
			Customer:   *customer,
			Sale:       sale,
			Shift:      *shift,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

const settlementColumns = `id, tenant_id, customer_id, sale_id, shift_id, cashier_id, amount_cents, method, created_at`

func (s *Store) ListSettlementsByCustomer(ctx context.Context, tenantID string, customerID string, limit int) ([]domain.Settlement, error) {
	if limit < 1 {
		limit = 100
	}
	return s.querySettlements(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE tenant_id = $1 AND customer_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, customerID, limit)
}

func (s *Store) ListSettlementsByShift(ctx context.Context, tenantID string, shiftID string) ([]domain.Settlement, error) {
	return s.querySettlements(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE tenant_id = $1 AND shift_id = $2
		ORDER BY created_at ASC
	`, tenantID, shiftID)
}

func (s *Store) querySettlements(ctx context.Context, query string, args ...any) ([]domain.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Settlement, 0, 16)
	for rows.Next() {
		var entry domain.Settlement
		var saleID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.CustomerID, &saleID, &entry.ShiftID,
			&entry.CashierID, &entry.Amount, &entry.Method, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.SaleID = saleID.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
