package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"goodsale/backend/internal/domain"
)

const saleColumns = `id, tenant_id, shift_id, cashier_id, customer_id, items,
	discount_cents, tax_cents, total_cents, total_profit_cents, amount_settled_cents,
	payment_method, status, offline, created_at`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullString
	var itemsRaw []byte
	err := row.Scan(
		&sale.ID,
		&sale.TenantID,
		&sale.ShiftID,
		&sale.CashierID,
		&customerID,
		&itemsRaw,
		&sale.DiscountAmount,
		&sale.TaxAmount,
		&sale.TotalAmount,
		&sale.TotalProfit,
		&sale.AmountSettled,
		&sale.PaymentMethod,
		&sale.Status,
		&sale.Offline,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &sale.Items); err != nil {
		return nil, fmt.Errorf("decode items of sale %s: %w", sale.ID, err)
	}
	sale.CustomerID = customerID.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, tenantID string, id string) (*domain.Sale, error) {
	return scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

func lockSale(ctx context.Context, tx *sql.Tx, tenantID string, id string) (*domain.Sale, error) {
	return scanSale(tx.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id))
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, *domain.Shift, bool, error) {
	if strings.TrimSpace(sale.ID) == "" {
		return nil, nil, false, fmt.Errorf("%w: sale id is required", domain.ErrValidation)
	}
	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, nil, false, err
	}

	var savedShift *domain.Shift
	var duplicate bool
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var tenantID string
		err := tx.QueryRowContext(ctx, `SELECT tenant_id FROM sales WHERE id = $1`, sale.ID).Scan(&tenantID)
		switch {
		case err == nil:
			if tenantID != sale.TenantID {
				return fmt.Errorf("%w: sale id %s is already taken", domain.ErrValidation, sale.ID)
			}
			duplicate = true
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		shift, err := lockShift(ctx, tx, sale.TenantID, sale.ShiftID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: shift %s", domain.ErrNotFound, sale.ShiftID)
			}
			return err
		}
		if err := shift.RecordSale(sale); err != nil {
			return err
		}

		if sale.CustomerID != "" {
			customer, err := lockCustomer(ctx, tx, sale.TenantID, sale.CustomerID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%w: customer %s", domain.ErrNotFound, sale.CustomerID)
				}
				return err
			}
			if sale.IsCredit() {
				previous := customer.Version
				if err := customer.Charge(sale.TotalAmount, sale.CreatedAt); err != nil {
					return err
				}
				if err := saveCustomer(ctx, tx, *customer, previous); err != nil {
					return err
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (`+saleColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`, sale.ID, sale.TenantID, sale.ShiftID, sale.CashierID, nullIfEmpty(sale.CustomerID), string(itemsJSON),
			sale.DiscountAmount.Cents(), sale.TaxAmount.Cents(), sale.TotalAmount.Cents(), sale.TotalProfit.Cents(),
			sale.AmountSettled.Cents(), string(sale.PaymentMethod), string(sale.Status), sale.Offline, sale.CreatedAt)
		if err != nil {
			return err
		}
		if err := saveShift(ctx, tx, *shift); err != nil {
			return err
		}
		savedShift = shift
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return s.existingSale(ctx, sale.TenantID, sale.ID)
		}
		return nil, nil, false, err
	}
	if duplicate {
		return s.existingSale(ctx, sale.TenantID, sale.ID)
	}

	saved := sale
	return &saved, savedShift, false, nil
}

func (s *Store) existingSale(ctx context.Context, tenantID string, id string) (*domain.Sale, *domain.Shift, bool, error) {
	sale, err := s.GetSale(ctx, tenantID, id)
	if err != nil {
		return nil, nil, false, err
	}
	shift, err := s.GetShift(ctx, tenantID, sale.ShiftID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, false, err
	}
	return sale, shift, true, nil
}

func saveSaleSettlement(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET amount_settled_cents = $2, status = $3
		WHERE id = $1
	`, sale.ID, sale.AmountSettled.Cents(), string(sale.Status))
	return err
}
