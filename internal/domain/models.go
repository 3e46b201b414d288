package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type ShiftOpenRequest struct {
	StartingCashCents int64 `json:"starting_cash_cents"`
}

type ShiftCloseRequest struct {
	ActualCashCents int64  `json:"actual_cash_cents"`
	Notes           string `json:"notes,omitempty"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type OfflineSale struct {
	ClientSaleID string    `json:"client_sale_id"`
	Sale         SaleDraft `json:"sale"`
}

type OfflineSyncRequest struct {
	DeviceID   string        `json:"device_id"`
	EnvelopeID string        `json:"envelope_id"`
	Sales      []OfflineSale `json:"sales"`
}

type OfflineSyncStatus struct {
	ClientSaleID string `json:"client_sale_id"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	SaleID       string `json:"sale_id,omitempty"`
}

type OfflineSyncResponse struct {
	EnvelopeID string              `json:"envelope_id"`
	Statuses   []OfflineSyncStatus `json:"statuses"`
	Shift      *Shift              `json:"shift,omitempty"`
}

const (
	SyncStatusAccepted  = "accepted"
	SyncStatusDuplicate = "duplicate"
	SyncStatusRejected  = "rejected"
	// SyncStatusRetry marks a sale the server could not take yet (no open
	// shift, concurrent update). The device keeps it queued.
	SyncStatusRetry = "retry"
)

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
