package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrValidation covers bad amounts and missing selections. The caller
	// re-prompts; nothing was persisted.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState means the operation is illegal for the current
	// lifecycle state (closing a closed shift, refunding a pending return).
	ErrInvalidState = errors.New("invalid state")
	ErrOverpayment  = errors.New("amount exceeds balance")
	// ErrConflict is returned when a balance or version was changed by a
	// concurrent writer. Callers refresh and retry.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrReconciliation marks a financial mutation that failed part way. It
	// always wraps the step that failed.
	ErrReconciliation = errors.New("reconciliation failure")
	ErrForbidden      = errors.New("forbidden")
)
