package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
	"goodsale/backend/internal/store"
	"goodsale/backend/internal/xid"
)

const DefaultTenantID = "main-store"

type Store struct {
	mu               sync.RWMutex
	shiftsByID       map[string]domain.Shift
	activeShiftByKey map[string]string
	salesByID        map[string]domain.Sale
	customersByID    map[string]domain.Customer
	settlements      []domain.Settlement
	returnsByID      map[string]domain.Return
	returnIDsBySale  map[string][]string
	policiesByTenant map[string]domain.ReturnPolicy
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		shiftsByID:       make(map[string]domain.Shift),
		activeShiftByKey: make(map[string]string),
		salesByID:        make(map[string]domain.Sale),
		customersByID:    make(map[string]domain.Customer),
		settlements:      make([]domain.Settlement, 0, 64),
		returnsByID:      make(map[string]domain.Return),
		returnIDsBySale:  make(map[string][]string),
		policiesByTenant: make(map[string]domain.ReturnPolicy),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with the dev accounts and a walk-in credit
// customer in the default tenant.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	now := time.Now().UTC()
	s.customersByID["cus-walkin"] = domain.Customer{
		ID:        "cus-walkin",
		TenantID:  DefaultTenantID,
		Name:      "Walk-in Credit",
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.TenantID) == "" || strings.TrimSpace(shift.CashierID) == "" {
		return nil, fmt.Errorf("%w: tenant and cashier are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.TenantID, shift.CashierID)
	if _, exists := s.activeShiftByKey[key]; exists {
		return nil, fmt.Errorf("%w: cashier %s already has an open shift", domain.ErrValidation, shift.CashierID)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	if shift.StartTime.IsZero() {
		shift.StartTime = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByKey[key] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShift(_ context.Context, tenantID string, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok || shift.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) GetActiveShift(_ context.Context, tenantID string, cashierID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.activeShiftLocked(tenantID, cashierID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) activeShiftLocked(tenantID string, cashierID string) (domain.Shift, bool) {
	shiftID, exists := s.activeShiftByKey[shiftMapKey(tenantID, cashierID)]
	if !exists {
		return domain.Shift{}, false
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || !shift.IsOpen() {
		return domain.Shift{}, false
	}
	return shift, true
}

func (s *Store) CloseShift(_ context.Context, tenantID string, id string, actualCash money.Amount, notes string, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[id]
	if !ok || shift.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	if err := shift.Close(actualCash, notes, closedAt); err != nil {
		return nil, err
	}

	delete(s.activeShiftByKey, shiftMapKey(shift.TenantID, shift.CashierID))
	s.shiftsByID[id] = shift
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, *domain.Shift, bool, error) {
	if strings.TrimSpace(sale.ID) == "" {
		return nil, nil, false, fmt.Errorf("%w: sale id is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.salesByID[sale.ID]; ok {
		if existing.TenantID != sale.TenantID {
			return nil, nil, false, fmt.Errorf("%w: sale id %s is already taken", domain.ErrValidation, sale.ID)
		}
		dup := cloneSale(existing)
		var shiftCopy *domain.Shift
		if shift, ok := s.shiftsByID[existing.ShiftID]; ok {
			shiftCopy = &shift
		}
		return &dup, shiftCopy, true, nil
	}

	shift, ok := s.shiftsByID[sale.ShiftID]
	if !ok || shift.TenantID != sale.TenantID {
		return nil, nil, false, fmt.Errorf("%w: shift %s", domain.ErrNotFound, sale.ShiftID)
	}
	if err := shift.RecordSale(sale); err != nil {
		return nil, nil, false, err
	}

	var customer domain.Customer
	if sale.CustomerID != "" {
		customer, ok = s.customersByID[sale.CustomerID]
		if !ok || customer.TenantID != sale.TenantID {
			return nil, nil, false, fmt.Errorf("%w: customer %s", domain.ErrNotFound, sale.CustomerID)
		}
		if sale.IsCredit() {
			if err := customer.Charge(sale.TotalAmount, sale.CreatedAt); err != nil {
				return nil, nil, false, err
			}
		}
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	s.shiftsByID[shift.ID] = shift
	if sale.IsCredit() {
		s.customersByID[customer.ID] = customer
	}
	saved := cloneSale(sale)
	return &saved, &shift, false, nil
}

func (s *Store) GetSale(_ context.Context, tenantID string, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok || sale.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.TenantID == "" || customer.Name == "" {
		return nil, fmt.Errorf("%w: tenant and name are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, fmt.Errorf("%w: customer %s already exists", domain.ErrValidation, customer.ID)
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = customer.CreatedAt
	s.customersByID[customer.ID] = customer
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) GetCustomer(_ context.Context, tenantID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok || customer.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ApplySettlement(_ context.Context, cmd store.SettlementCommand) (*domain.SettlementResult, error) {
	record := cmd.Settlement

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customersByID[record.CustomerID]
	if !ok || customer.TenantID != record.TenantID {
		return nil, fmt.Errorf("%w: customer %s", domain.ErrNotFound, record.CustomerID)
	}
	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != customer.Version {
		return nil, fmt.Errorf("%w: customer %s is at version %d, not %d", domain.ErrConflict, customer.ID, customer.Version, *cmd.ExpectedVersion)
	}
	if err := customer.Settle(record.Amount, record.CreatedAt); err != nil {
		return nil, err
	}

	var sale *domain.Sale
	if record.SaleID != "" {
		found, ok := s.salesByID[record.SaleID]
		if !ok || found.TenantID != record.TenantID {
			return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, record.SaleID)
		}
		updated := cloneSale(found)
		if err := updated.ApplySettlement(customer.ID, record.Amount); err != nil {
			return nil, err
		}
		sale = &updated
	}

	shift, ok := s.activeShiftLocked(record.TenantID, record.CashierID)
	if !ok {
		return nil, fmt.Errorf("%w: cashier %s has no open shift", domain.ErrInvalidState, record.CashierID)
	}
	if err := shift.RecordSettlement(record.Amount, record.Method); err != nil {
		return nil, err
	}
	record.ShiftID = shift.ID
	if record.ID == "" {
		record.ID = xid.New("stl")
	}

	s.customersByID[customer.ID] = customer
	if sale != nil {
		s.salesByID[sale.ID] = cloneSale(*sale)
	}
	s.shiftsByID[shift.ID] = shift
	s.settlements = append(s.settlements, record)

	return &domain.SettlementResult{
		Settlement: record,
		Customer:   customer,
		Sale:       sale,
		Shift:      shift,
	}, nil
}

func (s *Store) ListSettlementsByCustomer(_ context.Context, tenantID string, customerID string, limit int) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Settlement, 0, 16)
	for i := len(s.settlements) - 1; i >= 0; i-- {
		entry := s.settlements[i]
		if entry.TenantID != tenantID || entry.CustomerID != customerID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ListSettlementsByShift(_ context.Context, tenantID string, shiftID string) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Settlement, 0, 16)
	for _, entry := range s.settlements {
		if entry.TenantID == tenantID && entry.ShiftID == shiftID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (s *Store) CreateReturn(_ context.Context, tenantID string, saleID string, build store.ReturnBuilder) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok || sale.TenantID != tenantID {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, saleID)
	}
	ret, err := build(cloneSale(sale), s.returnsForSaleLocked(saleID))
	if err != nil {
		return nil, err
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if _, exists := s.returnsByID[ret.ID]; exists {
		return nil, fmt.Errorf("%w: return %s already exists", domain.ErrValidation, ret.ID)
	}
	s.returnsByID[ret.ID] = cloneReturn(ret)
	s.returnIDsBySale[saleID] = append(s.returnIDsBySale[saleID], ret.ID)
	return &ret, nil
}

func (s *Store) returnsForSaleLocked(saleID string) []domain.Return {
	ids := s.returnIDsBySale[saleID]
	out := make([]domain.Return, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneReturn(s.returnsByID[id]))
	}
	return out
}

func (s *Store) GetReturn(_ context.Context, tenantID string, id string) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returnsByID[id]
	if !ok || ret.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	copyReturn := cloneReturn(ret)
	return &copyReturn, nil
}

func (s *Store) ListReturnsBySale(_ context.Context, tenantID string, saleID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sale, ok := s.salesByID[saleID]; !ok || sale.TenantID != tenantID {
		return []domain.Return{}, nil
	}
	return s.returnsForSaleLocked(saleID), nil
}

func (s *Store) ListCashRefundsByShift(_ context.Context, tenantID string, shiftID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, 8)
	for _, ret := range s.returnsByID {
		if ret.TenantID == tenantID && ret.ShiftID == shiftID && ret.RefundMethod == domain.RefundCash {
			result = append(result, cloneReturn(ret))
		}
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		return a.RefundedAt.Compare(*b.RefundedAt)
	})
	return result, nil
}

func (s *Store) UpdateReturn(_ context.Context, tenantID string, id string, mutate store.ReturnMutator) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.returnsByID[id]
	if !ok || current.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	updated := cloneReturn(current)
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	s.returnsByID[id] = cloneReturn(updated)
	return &updated, nil
}

func (s *Store) RefundReturn(_ context.Context, cmd store.RefundCommand) (*store.RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.returnsByID[cmd.ReturnID]
	if !ok || current.TenantID != cmd.TenantID {
		return nil, domain.ErrNotFound
	}
	ret := cloneReturn(current)
	result := &store.RefundResult{}

	var shift domain.Shift
	if cmd.Method.MovesDrawerCash() && current.Status == domain.ReturnStatusApproved {
		shift, ok = s.activeShiftLocked(cmd.TenantID, cmd.CashierID)
		if !ok {
			return nil, fmt.Errorf("%w: cashier %s has no open shift for a cash refund", domain.ErrInvalidState, cmd.CashierID)
		}
	}
	if err := ret.MarkRefunded(cmd.Method, cmd.Policy, cmd.CashierID, shift.ID, cmd.At); err != nil {
		return nil, err
	}

	loadCustomer := func() (*domain.Customer, error) {
		if result.Customer != nil {
			return result.Customer, nil
		}
		customer, ok := s.customersByID[ret.CustomerID]
		if !ok || customer.TenantID != cmd.TenantID {
			return nil, fmt.Errorf("%w: customer %s", domain.ErrNotFound, ret.CustomerID)
		}
		result.Customer = &customer
		return result.Customer, nil
	}

	sale, ok := s.salesByID[ret.SaleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, ret.SaleID)
	}
	if sale.IsCredit() && ret.RefundAmount.IsPositive() {
		updated := cloneSale(sale)
		updated.ApplyReturnCredit(ret.RefundAmount)
		customer, err := loadCustomer()
		if err != nil {
			return nil, err
		}
		ret.CreditApplied = customer.ReduceReceivable(ret.RefundAmount, cmd.At)
		result.Sale = &updated
	}

	payout := ret.Payout()
	switch cmd.Method {
	case domain.RefundCash:
		if payout.IsPositive() {
			if err := shift.RecordCashReturn(payout); err != nil {
				return nil, fmt.Errorf("%w: record cash return: %w", domain.ErrReconciliation, err)
			}
		}
		result.Shift = &shift
	case domain.RefundStoreCredit:
		customer, err := loadCustomer()
		if err != nil {
			return nil, err
		}
		if payout.IsPositive() {
			if err := customer.CreditRefund(payout, cmd.At); err != nil {
				return nil, fmt.Errorf("%w: credit customer account: %w", domain.ErrReconciliation, err)
			}
		}
	case domain.RefundCard, domain.RefundMobile:
	}

	s.returnsByID[ret.ID] = cloneReturn(ret)
	if result.Shift != nil {
		s.shiftsByID[result.Shift.ID] = *result.Shift
	}
	if result.Customer != nil {
		s.customersByID[result.Customer.ID] = *result.Customer
	}
	if result.Sale != nil {
		s.salesByID[result.Sale.ID] = cloneSale(*result.Sale)
	}
	result.Return = ret
	return result, nil
}

func (s *Store) GetReturnPolicy(_ context.Context, tenantID string) (*domain.ReturnPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policiesByTenant[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	policy.AllowedRefundMethods = slices.Clone(policy.AllowedRefundMethods)
	return &policy, nil
}

func (s *Store) UpsertReturnPolicy(_ context.Context, policy domain.ReturnPolicy) (*domain.ReturnPolicy, error) {
	if policy.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if policy.UpdatedAt.IsZero() {
		policy.UpdatedAt = time.Now().UTC()
	}
	policy.AllowedRefundMethods = slices.Clone(policy.AllowedRefundMethods)
	s.policiesByTenant[policy.TenantID] = policy
	saved := policy
	saved.AllowedRefundMethods = slices.Clone(policy.AllowedRefundMethods)
	return &saved, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if tenantID != "" && entry.TenantID != tenantID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: user %s already exists", domain.ErrValidation, username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return domain.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func shiftMapKey(tenantID string, cashierID string) string {
	return tenantID + "::" + cashierID
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

func cloneReturn(src domain.Return) domain.Return {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}
