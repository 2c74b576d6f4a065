package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/stampcard/internal/models"
)

// GormStore implements Store on Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindCustomerCard(ctx context.Context, id string) (*CardRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.loadRecord(s.db.WithContext(ctx), parsed, false)
}

func (s *GormStore) ApplyLedgerEntry(ctx context.Context, id uuid.UUID, idempotencyKey string, apply ApplyFunc) (*LedgerResult, error) {
	var result *LedgerResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			res, err := s.replay(tx, id, idempotencyKey)
			if err == nil {
				result = res
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		rec, err := s.loadRecord(tx, id, true)
		if err != nil {
			return err
		}

		txn, err := apply(rec)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.CustomerLoyaltyCard{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"points":           rec.Enrollment.Points,
				"stamps":           rec.Enrollment.Stamps,
				"tier":             rec.Enrollment.Tier,
				"last_activity_at": rec.Enrollment.LastActivityAt,
			}).Error; err != nil {
			return err
		}

		txn.CustomerLoyaltyCardID = id
		if idempotencyKey != "" {
			key := idempotencyKey
			txn.IdempotencyKey = &key
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}

		result = &LedgerResult{Record: *rec, Transaction: *txn}
		return nil
	})

	// A concurrent request with the same key won the insert.
	if errors.Is(err, gorm.ErrDuplicatedKey) && idempotencyKey != "" {
		return s.replay(s.db.WithContext(ctx), id, idempotencyKey)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GormStore) ListTransactions(ctx context.Context, enrollmentID uuid.UUID, limit, offset int) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("customer_loyalty_card_id = ?", enrollmentID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.Transaction
	if err := query.
		Order("occurred_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (s *GormStore) replay(db *gorm.DB, id uuid.UUID, key string) (*LedgerResult, error) {
	var existing models.Transaction
	if err := db.Where("customer_loyalty_card_id = ? AND idempotency_key = ?", id, key).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec, err := s.loadRecord(db, id, false)
	if err != nil {
		return nil, err
	}
	return &LedgerResult{Record: *rec, Transaction: existing, Replayed: true}, nil
}

func (s *GormStore) loadRecord(db *gorm.DB, id uuid.UUID, lock bool) (*CardRecord, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rec CardRecord
	if err := query.First(&rec.Enrollment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := db.First(&rec.Card, "id = ?", rec.Enrollment.LoyaltyCardID).Error; err != nil {
		return nil, err
	}
	if err := db.First(&rec.Customer, "id = ?", rec.Enrollment.CustomerID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
