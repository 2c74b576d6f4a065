package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/stampcard/internal/models"
)

type ledgerKey struct {
	enrollment uuid.UUID
	key        string
}

// MemoryStore implements Store in process memory for tests.
type MemoryStore struct {
	mu sync.Mutex

	businesses   map[uuid.UUID]models.Business
	cards        map[uuid.UUID]models.LoyaltyCard
	customers    map[uuid.UUID]models.Customer
	enrollments  map[uuid.UUID]models.CustomerLoyaltyCard
	transactions []models.Transaction
	byKey        map[ledgerKey]int

	reads  int
	failOn error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses:  make(map[uuid.UUID]models.Business),
		cards:       make(map[uuid.UUID]models.LoyaltyCard),
		customers:   make(map[uuid.UUID]models.Customer),
		enrollments: make(map[uuid.UUID]models.CustomerLoyaltyCard),
		byKey:       make(map[ledgerKey]int),
	}
}

// AddBusiness stores b, assigning an ID when missing.
func (s *MemoryStore) AddBusiness(b models.Business) models.Business {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignID(&b.BaseModel)
	s.businesses[b.ID] = b
	return b
}

// AddCard stores c, assigning an ID when missing.
func (s *MemoryStore) AddCard(c models.LoyaltyCard) models.LoyaltyCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignID(&c.BaseModel)
	s.cards[c.ID] = c
	return c
}

// AddCustomer stores c, assigning an ID when missing.
func (s *MemoryStore) AddCustomer(c models.Customer) models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignID(&c.BaseModel)
	s.customers[c.ID] = c
	return c
}

// Enroll stores e, assigning an ID when missing.
func (s *MemoryStore) Enroll(e models.CustomerLoyaltyCard) models.CustomerLoyaltyCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignID(&e.BaseModel)
	if e.JoinedAt.IsZero() {
		e.JoinedAt = e.CreatedAt
	}
	s.enrollments[e.ID] = e
	return e
}

// FailWrites makes every following ApplyLedgerEntry fail with err until
// called again with nil.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = err
}

// Reads returns how many lookups FindCustomerCard has served.
func (s *MemoryStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Enrollment returns the stored enrollment with the given ID.
func (s *MemoryStore) Enrollment(id uuid.UUID) (models.CustomerLoyaltyCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	return e, ok
}

func (s *MemoryStore) FindCustomerCard(_ context.Context, id string) (*CardRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.record(parsed)
}

func (s *MemoryStore) ApplyLedgerEntry(_ context.Context, id uuid.UUID, idempotencyKey string, apply ApplyFunc) (*LedgerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if idx, ok := s.byKey[ledgerKey{id, idempotencyKey}]; ok {
			rec, err := s.record(id)
			if err != nil {
				return nil, err
			}
			return &LedgerResult{Record: *rec, Transaction: s.transactions[idx], Replayed: true}, nil
		}
	}

	if s.failOn != nil {
		return nil, s.failOn
	}

	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	txn, err := apply(rec)
	if err != nil {
		return nil, err
	}

	assignID(&txn.BaseModel)
	txn.CustomerLoyaltyCardID = id
	if idempotencyKey != "" {
		key := idempotencyKey
		txn.IdempotencyKey = &key
		s.byKey[ledgerKey{id, key}] = len(s.transactions)
	}
	s.enrollments[id] = rec.Enrollment
	s.transactions = append(s.transactions, *txn)

	return &LedgerResult{Record: *rec, Transaction: *txn}, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, enrollmentID uuid.UUID, limit, offset int) ([]models.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Transaction
	for _, txn := range s.transactions {
		if txn.CustomerLoyaltyCardID == enrollmentID {
			matched = append(matched, txn)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []models.Transaction{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) record(id uuid.UUID) (*CardRecord, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return nil, ErrNotFound
	}
	card, ok := s.cards[e.LoyaltyCardID]
	if !ok {
		return nil, ErrNotFound
	}
	customer, ok := s.customers[e.CustomerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &CardRecord{Enrollment: e, Card: card, Customer: customer}, nil
}

func assignID(b *models.BaseModel) {
	if b.ID == uuid.Nil {
		b.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
