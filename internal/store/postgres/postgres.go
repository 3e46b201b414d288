package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
	"goodsale/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// inTx runs fn in a SERIALIZABLE transaction. Serialization failures surface
// as domain.ErrConflict so callers can refresh and retry.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapTxError(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const shiftColumns = `id, tenant_id, cashier_id, status, start_time, end_time,
	starting_cash_cents, cash_sales_cents, card_sales_cents, mobile_sales_cents, credit_sales_cents,
	cash_settlements_cents, card_settlements_cents, mobile_settlements_cents, cash_returns_cents,
	total_sales_cents, sale_count, actual_cash_cents, cash_difference_cents, notes`

func scanShift(row rowScanner) (*domain.Shift, error) {
	var shift domain.Shift
	var endTime sql.NullTime
	var actualCash, cashDifference sql.NullInt64
	err := row.Scan(
		&shift.ID,
		&shift.TenantID,
		&shift.CashierID,
		&shift.Status,
		&shift.StartTime,
		&endTime,
		&shift.StartingCash,
		&shift.CashSales,
		&shift.CardSales,
		&shift.MobileSales,
		&shift.CreditSales,
		&shift.CashSettlements,
		&shift.CardSettlements,
		&shift.MobileSettlements,
		&shift.CashReturns,
		&shift.TotalSales,
		&shift.SaleCount,
		&actualCash,
		&cashDifference,
		&shift.Notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	shift.StartTime = shift.StartTime.UTC()
	shift.EndTime = timePtr(endTime)
	shift.ActualCash = amountPtr(actualCash)
	shift.CashDifference = amountPtr(cashDifference)
	return &shift, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.TenantID) == "" || strings.TrimSpace(shift.CashierID) == "" {
		return nil, fmt.Errorf("%w: tenant and cashier are required", domain.ErrValidation)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	if shift.StartTime.IsZero() {
		shift.StartTime = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, tenant_id, cashier_id, status, start_time, starting_cash_cents)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, shift.ID, shift.TenantID, shift.CashierID, string(shift.Status), shift.StartTime, shift.StartingCash.Cents())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: cashier %s already has an open shift", domain.ErrValidation, shift.CashierID)
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetShift(ctx context.Context, tenantID string, id string) (*domain.Shift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

func (s *Store) GetActiveShift(ctx context.Context, tenantID string, cashierID string) (*domain.Shift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE tenant_id = $1 AND cashier_id = $2 AND status = 'open'
	`, tenantID, cashierID))
}

func lockShift(ctx context.Context, tx *sql.Tx, tenantID string, id string) (*domain.Shift, error) {
	return scanShift(tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id))
}

func lockActiveShift(ctx context.Context, tx *sql.Tx, tenantID string, cashierID string) (*domain.Shift, error) {
	return scanShift(tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE tenant_id = $1 AND cashier_id = $2 AND status = 'open'
		FOR UPDATE
	`, tenantID, cashierID))
}

func saveShift(ctx context.Context, tx *sql.Tx, shift domain.Shift) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE shifts
		SET status = $2,
			end_time = $3,
			cash_sales_cents = $4,
			card_sales_cents = $5,
			mobile_sales_cents = $6,
			credit_sales_cents = $7,
			cash_settlements_cents = $8,
			card_settlements_cents = $9,
			mobile_settlements_cents = $10,
			cash_returns_cents = $11,
			total_sales_cents = $12,
			sale_count = $13,
			actual_cash_cents = $14,
			cash_difference_cents = $15,
			notes = $16
		WHERE id = $1
	`, shift.ID, string(shift.Status), nullTime(shift.EndTime),
		shift.CashSales.Cents(), shift.CardSales.Cents(), shift.MobileSales.Cents(), shift.CreditSales.Cents(),
		shift.CashSettlements.Cents(), shift.CardSettlements.Cents(), shift.MobileSettlements.Cents(),
		shift.CashReturns.Cents(), shift.TotalSales.Cents(), shift.SaleCount,
		nullAmount(shift.ActualCash), nullAmount(shift.CashDifference), shift.Notes)
	return err
}

func (s *Store) CloseShift(ctx context.Context, tenantID string, id string, actualCash money.Amount, notes string, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	var closed *domain.Shift
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		shift, err := lockShift(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := shift.Close(actualCash, notes, closedAt); err != nil {
			return err
		}
		if err := saveShift(ctx, tx, *shift); err != nil {
			return err
		}
		closed = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.TenantID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE tenant_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already exists", domain.ErrValidation, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func mapTxError(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullAmount(val *money.Amount) any {
	if val == nil {
		return nil
	}
	return val.Cents()
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

func amountPtr(val sql.NullInt64) *money.Amount {
	if !val.Valid {
		return nil
	}
	a := money.Amount(val.Int64)
	return &a
}
