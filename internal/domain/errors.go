package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateEvent signals that a webhook event id has already been
	// accepted. It is a no-op outcome, not a failure.
	ErrDuplicateEvent = errors.New("webhook event already processed")

	// ErrDuplicateReference signals that a ledger credit with the same
	// (user, reference) pair has already been committed. Callers treat it
	// as "already credited, skip".
	ErrDuplicateReference = errors.New("reference already credited")

	// ErrStaleTransition is returned when a payment event arrives whose
	// precondition state no longer holds (e.g. a late authorized after
	// completed). The event is logged and dropped, never applied.
	ErrStaleTransition = errors.New("payment state transition not allowed")

	ErrInvalidSignature = errors.New("invalid webhook signature")
)
