package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/stampcard/internal/models"
)

func seedStore(t *testing.T) (*MemoryStore, models.CustomerLoyaltyCard) {
	t.Helper()
	s := NewMemoryStore()
	b := s.AddBusiness(models.Business{Name: "Corner Coffee"})
	card := s.AddCard(models.LoyaltyCard{
		BusinessID: b.ID,
		Name:       "Coffee",
		Kind:       models.CardKindStamp,
		Rules:      datatypes.NewJSONType(models.CardRules{StampGoal: 10}),
	})
	cu := s.AddCustomer(models.Customer{BusinessID: b.ID, Name: "Ann"})
	e := s.Enroll(models.CustomerLoyaltyCard{CustomerID: cu.ID, LoyaltyCardID: card.ID, Stamps: 1})
	return s, e
}

func addStamp(n int, at time.Time) ApplyFunc {
	return func(rec *CardRecord) (*models.Transaction, error) {
		rec.Enrollment.Stamps += n
		return &models.Transaction{Type: models.TransactionEarn, Stamps: n, OccurredAt: at}, nil
	}
}

func TestMemoryStoreFindCustomerCard(t *testing.T) {
	s, e := seedStore(t)

	rec, err := s.FindCustomerCard(context.Background(), e.ID.String())
	if err != nil {
		t.Fatalf("FindCustomerCard: %v", err)
	}
	if rec.Customer.Name != "Ann" || rec.Card.Name != "Coffee" || rec.Enrollment.Stamps != 1 {
		t.Errorf("record = %+v", rec)
	}

	for _, id := range []string{uuid.NewString(), "42"} {
		if _, err := s.FindCustomerCard(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindCustomerCard(%q) = %v, want ErrNotFound", id, err)
		}
	}
	if s.Reads() != 3 {
		t.Errorf("reads = %d, want 3", s.Reads())
	}
}

func TestMemoryStoreApplyIsAllOrNothing(t *testing.T) {
	s, e := seedStore(t)

	_, err := s.ApplyLedgerEntry(context.Background(), e.ID, "", func(rec *CardRecord) (*models.Transaction, error) {
		rec.Enrollment.Stamps += 5
		return nil, errors.New("rule violated")
	})
	if err == nil {
		t.Fatal("ApplyLedgerEntry succeeded")
	}
	if got, _ := s.Enrollment(e.ID); got.Stamps != 1 {
		t.Errorf("stamps = %d after aborted apply, want 1", got.Stamps)
	}

	s.FailWrites(errors.New("disk full"))
	if _, err := s.ApplyLedgerEntry(context.Background(), e.ID, "", addStamp(1, time.Now())); err == nil {
		t.Fatal("ApplyLedgerEntry succeeded with failing writes")
	}
	s.FailWrites(nil)

	res, err := s.ApplyLedgerEntry(context.Background(), e.ID, "", addStamp(2, time.Now()))
	if err != nil {
		t.Fatalf("ApplyLedgerEntry: %v", err)
	}
	if res.Record.Enrollment.Stamps != 3 || res.Transaction.CustomerLoyaltyCardID != e.ID || res.Transaction.ID == uuid.Nil {
		t.Errorf("result = %+v", res)
	}
}

func TestMemoryStoreIdempotencyKey(t *testing.T) {
	s, e := seedStore(t)

	first, err := s.ApplyLedgerEntry(context.Background(), e.ID, "k1", addStamp(1, time.Now()))
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := s.ApplyLedgerEntry(context.Background(), e.ID, "k1", addStamp(1, time.Now()))
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !second.Replayed || second.Transaction.ID != first.Transaction.ID {
		t.Errorf("second = %+v, want replay of %s", second, first.Transaction.ID)
	}
	if got, _ := s.Enrollment(e.ID); got.Stamps != 2 {
		t.Errorf("stamps = %d, want 2", got.Stamps)
	}

	rec, _ := s.FindCustomerCard(context.Background(), e.ID.String())
	cu := s.AddCustomer(models.Customer{BusinessID: rec.Card.BusinessID, Name: "Bo"})
	other := s.Enroll(models.CustomerLoyaltyCard{CustomerID: cu.ID, LoyaltyCardID: rec.Card.ID})
	third, err := s.ApplyLedgerEntry(context.Background(), other.ID, "k1", addStamp(1, time.Now()))
	if err != nil {
		t.Fatalf("same key on another card: %v", err)
	}
	if third.Replayed || third.Transaction.ID == first.Transaction.ID {
		t.Errorf("third = %+v, want a fresh entry", third)
	}
	if got, _ := s.Enrollment(other.ID); got.Stamps != 1 {
		t.Errorf("other stamps = %d, want 1", got.Stamps)
	}
}

func TestMemoryStoreConcurrentApply(t *testing.T) {
	s, e := seedStore(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ApplyLedgerEntry(context.Background(), e.ID, "", addStamp(1, time.Now())); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	if got, _ := s.Enrollment(e.ID); got.Stamps != n+1 {
		t.Errorf("stamps = %d, want %d", got.Stamps, n+1)
	}
	if _, total, _ := s.ListTransactions(context.Background(), e.ID, 0, 0); total != n {
		t.Errorf("transactions = %d, want %d", total, n)
	}
}

func TestMemoryStoreListTransactions(t *testing.T) {
	s, e := seedStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if _, err := s.ApplyLedgerEntry(context.Background(), e.ID, "", addStamp(i+1, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	page, total, err := s.ListTransactions(context.Background(), e.ID, 2, 1)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if total != 4 || len(page) != 2 {
		t.Fatalf("page = %d of %d", len(page), total)
	}
	if page[0].Stamps != 3 || page[1].Stamps != 2 {
		t.Errorf("page stamps = %d, %d; want 3, 2", page[0].Stamps, page[1].Stamps)
	}

	empty, total, _ := s.ListTransactions(context.Background(), e.ID, 2, 10)
	if len(empty) != 0 || total != 4 {
		t.Errorf("past the end = %d of %d", len(empty), total)
	}
}
