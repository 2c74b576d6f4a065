package services

import (
	"errors"
	"fmt"
)

// Scan flow failures.
var (
	ErrInvalidCode         = errors.New("scan: code is not a card link")
	ErrNotFound            = errors.New("scan: customer card not found")
	ErrInvalidQuantity     = errors.New("scan: quantity must be at least 1")
	ErrKindNotScannable    = errors.New("scan: card kind carries no balance")
	ErrNotRedeemable       = errors.New("scan: card kind has no redeemable goal")
	ErrInsufficientBalance = errors.New("scan: balance has not reached the reward goal")
	ErrUnknownKind         = errors.New("scan: unknown card kind")
	ErrCardInactive        = errors.New("scan: card is not active")
	ErrCardExpired         = errors.New("scan: card has expired")
	ErrIdempotencyConflict = errors.New("scan: idempotency key already used for another operation")
	ErrSessionBusy         = errors.New("scan: session is not in a state that allows this action")
	ErrScanCancelled       = errors.New("scan: cancelled by operator")
)

// PersistenceError wraps a failure of the backing store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("scan: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err came from the backing store.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
