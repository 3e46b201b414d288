package domain

import (
	"encoding/json"
	"strings"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "Cash"
	PaymentCard     PaymentMethod = "Card"
	PaymentMobile   PaymentMethod = "Mobile"
	PaymentOnCredit PaymentMethod = "On Credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile, PaymentOnCredit:
		return true
	default:
		return false
	}
}

// ValidSettlement reports whether m can be used to pay down a balance.
func (m PaymentMethod) ValidSettlement() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod accepts the canonical tags plus the lowercase / snake_case
// spellings older clients send ("cash", "on_credit", "credit").
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cash":
		return PaymentCash, true
	case "card":
		return PaymentCard, true
	case "mobile":
		return PaymentMobile, true
	case "on credit", "on_credit", "credit":
		return PaymentOnCredit, true
	default:
		return "", false
	}
}

// UnmarshalJSON normalises alternate spellings. Unknown values are kept as is
// so Valid reports them.
func (m *PaymentMethod) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, ok := ParsePaymentMethod(raw); ok {
		*m = parsed
		return nil
	}
	*m = PaymentMethod(raw)
	return nil
}

type SaleStatus string

const (
	SaleStatusPaid               SaleStatus = "Paid"
	SaleStatusPending            SaleStatus = "Pending"
	SaleStatusAwaitingCollection SaleStatus = "Awaiting Collection"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPaid, SaleStatusPending, SaleStatusAwaitingCollection:
		return true
	default:
		return false
	}
}

type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "open"
	ShiftStatusClosed ShiftStatus = "closed"
)

type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusRefunded  ReturnStatus = "refunded"
	ReturnStatusCancelled ReturnStatus = "cancelled"
)

func (s ReturnStatus) Terminal() bool {
	switch s {
	case ReturnStatusRejected, ReturnStatusRefunded, ReturnStatusCancelled:
		return true
	case ReturnStatusPending, ReturnStatusApproved:
		return false
	default:
		return true
	}
}

// CountsAgainstSale reports whether the returned quantities of a return in
// this status are still reserved against the original sale.
func (s ReturnStatus) CountsAgainstSale() bool {
	switch s {
	case ReturnStatusPending, ReturnStatusApproved, ReturnStatusRefunded:
		return true
	default:
		return false
	}
}

type RefundMethod string

const (
	RefundCash        RefundMethod = "cash"
	RefundStoreCredit RefundMethod = "store_credit"
	RefundCard        RefundMethod = "card"
	RefundMobile      RefundMethod = "mobile"
)

func (m RefundMethod) Valid() bool {
	switch m {
	case RefundCash, RefundStoreCredit, RefundCard, RefundMobile:
		return true
	default:
		return false
	}
}

// MovesDrawerCash reports whether the refund physically leaves the drawer.
func (m RefundMethod) MovesDrawerCash() bool {
	return m == RefundCash
}

type ReturnAction string

const (
	ReturnActionApprove ReturnAction = "approve"
	ReturnActionReject  ReturnAction = "reject"
	ReturnActionRefund  ReturnAction = "refund"
	ReturnActionCancel  ReturnAction = "cancel"
)
