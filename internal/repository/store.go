// Package repository persists enrollments and their ledger.
//
// Balance changes go through ApplyLedgerEntry only: the balance update and the
// ledger insert succeed or fail together.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/example/stampcard/internal/models"
)

var ErrNotFound = errors.New("repository: not found")

// CardRecord is a customer loyalty card with its template and holder loaded.
type CardRecord struct {
	Enrollment models.CustomerLoyaltyCard
	Card       models.LoyaltyCard
	Customer   models.Customer
}

// ApplyFunc mutates the locked enrollment in rec and returns the ledger row to append.
// Returning an error aborts the whole entry.
type ApplyFunc func(rec *CardRecord) (*models.Transaction, error)

// LedgerResult is the outcome of ApplyLedgerEntry. Replayed is set when the
// idempotency key was already used and nothing was written.
type LedgerResult struct {
	Record      CardRecord
	Transaction models.Transaction
	Replayed    bool
}

// Store is the storage used by the scan flow.
type Store interface {
	// FindCustomerCard loads a customer loyalty card by its identifier.
	// Identifiers that cannot exist yield ErrNotFound.
	FindCustomerCard(ctx context.Context, id string) (*CardRecord, error)
	// ApplyLedgerEntry locks the enrollment, runs apply, then writes the new
	// balance and the returned transaction atomically. A non-empty
	// idempotencyKey already stored for the same enrollment replays that
	// transaction without calling apply. Keys are scoped per enrollment.
	ApplyLedgerEntry(ctx context.Context, id uuid.UUID, idempotencyKey string, apply ApplyFunc) (*LedgerResult, error)
	ListTransactions(ctx context.Context, enrollmentID uuid.UUID, limit, offset int) ([]models.Transaction, int64, error)
}
