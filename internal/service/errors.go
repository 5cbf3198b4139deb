package service

import "errors"

// Typed failures returned by the stock engine. Business-rule violations are
// final for the caller; ErrConcurrentModification and ErrPersistence are
// transient and already retried internally before being surfaced.
var (
	// ErrNotFound — no ledger entry exists for the requested key.
	ErrNotFound = errors.New("stock ledger entry not found")
	// ErrReservationNotFound — no reservation exists with the given id.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationInactive — the reservation was already released or expired.
	// Returning this instead of re-applying the credit prevents double-crediting
	// when a manual release races the sweeper.
	ErrReservationInactive = errors.New("reservation already inactive")
	// ErrInsufficientStock — reserve asked for more than is available. A normal
	// "cannot fulfill" business outcome, not a system fault.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverRelease — release asked for more than is currently reserved.
	ErrOverRelease = errors.New("release exceeds reserved quantity")
	// ErrInvalidQuantity — missing, zero or negative quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrBelowReserved — adjust would set available below the quantity already
	// promised to active reservations.
	ErrBelowReserved = errors.New("new available is below reserved quantity")
	// ErrConcurrentModification — lock/version conflict after bounded retries.
	ErrConcurrentModification = errors.New("concurrent ledger modification")
	// ErrPersistence — storage unavailable after bounded retries.
	ErrPersistence = errors.New("persistence failure")
)

// IsBusinessError reports whether err is a final business-rule violation as
// opposed to a transient concurrency/storage failure.
func IsBusinessError(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrReservationNotFound,
		ErrReservationInactive,
		ErrInsufficientStock,
		ErrOverRelease,
		ErrInvalidQuantity,
		ErrBelowReserved,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
