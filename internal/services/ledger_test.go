package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/stampcard/internal/models"
)

type recordingNotifier struct {
	sent chan RewardNotification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(chan RewardNotification, 4)}
}

func (n *recordingNotifier) NotifyRewardReached(r RewardNotification) error {
	n.sent <- r
	return nil
}

func newLedger(f *fixture) *LedgerService {
	return NewLedgerService(f.store, NewActivityLog(5), nil)
}

func TestCommitAddsStamps(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	e := f.enroll(t, card, 3, 0)
	ledger := newLedger(f)

	bal, err := ledger.Commit(context.Background(), CommitRequest{
		BusinessID:            f.business.ID,
		CustomerLoyaltyCardID: e.ID.String(),
		Quantity:              2,
		Operator:              "till-1",
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if bal.Stamps != 5 || bal.Balance != 5 || bal.Points != 0 {
		t.Errorf("balance = %+v, want 5 stamps", bal)
	}
	stored := f.enrollment(t, e.ID)
	if stored.Stamps != 5 || stored.LastActivityAt == nil {
		t.Errorf("stored = %+v", stored)
	}

	txns, total, err := ledger.Transactions(context.Background(), f.business.ID, e.ID.String(), 10, 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if total != 1 || len(txns) != 1 {
		t.Fatalf("transactions = %d (total %d), want 1", len(txns), total)
	}
	txn := txns[0]
	if txn.Type != models.TransactionEarn || txn.Stamps != 2 || txn.Points != 0 {
		t.Errorf("transaction = %+v", txn)
	}
	if txn.ID != bal.TransactionID {
		t.Errorf("transaction id = %s, want %s", txn.ID, bal.TransactionID)
	}

	var meta map[string]string
	if err := json.Unmarshal(txn.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["mode"] != ModeAdd || meta["operator"] != "till-1" {
		t.Errorf("metadata = %v", meta)
	}

	feed := ledger.Activity().Recent(f.business.ID)
	if len(feed) != 1 {
		t.Fatalf("feed = %d entries, want 1", len(feed))
	}
	if feed[0].Type != "stamps" || feed[0].Quantity != 2 || feed[0].CustomerName != "Ann Lee" || feed[0].Mode != ModeAdd {
		t.Errorf("feed entry = %+v", feed[0])
	}
}

func TestCommitAddsPoints(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindPoints, models.CardRules{PointsGoal: 100})
	e := f.enroll(t, card, 0, 40)

	bal, err := newLedger(f).Commit(context.Background(), CommitRequest{
		CustomerLoyaltyCardID: e.ID.String(),
		Quantity:              15,
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if bal.Points != 55 || bal.Stamps != 0 {
		t.Errorf("balance = %+v, want 55 points", bal)
	}
}

func TestCommitTieredRecomputesTier(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindTiered, models.CardRules{Tiers: []models.Tier{
		{Name: "Bronze", Threshold: 0},
		{Name: "Silver", Threshold: 100},
		{Name: "Gold", Threshold: 250},
	}})
	e := f.store.Enroll(models.CustomerLoyaltyCard{
		CustomerID: f.customer.ID, LoyaltyCardID: card.ID, Points: 90, Tier: "Bronze",
	})

	bal, err := newLedger(f).Commit(context.Background(), CommitRequest{
		CustomerLoyaltyCardID: e.ID.String(),
		Quantity:              20,
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if bal.Points != 110 || bal.Tier != "Silver" {
		t.Errorf("balance = %+v, want 110 points in Silver", bal)
	}
	if got := f.enrollment(t, e.ID).Tier; got != "Silver" {
		t.Errorf("stored tier = %q", got)
	}
}

func TestCommitRejectsInvalidQuantity(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	e := f.enroll(t, card, 3, 0)
	ledger := newLedger(f)

	for _, q := range []int{0, -1} {
		t.Run(fmt.Sprint(q), func(t *testing.T) {
			_, err := ledger.Commit(context.Background(), CommitRequest{
				CustomerLoyaltyCardID: e.ID.String(),
				Quantity:              q,
			})
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Fatalf("error = %v, want ErrInvalidQuantity", err)
			}
		})
	}

	if got := f.enrollment(t, e.ID).Stamps; got != 3 {
		t.Errorf("stamps = %d, want unchanged 3", got)
	}
	if len(ledger.Activity().Recent(f.business.ID)) != 0 {
		t.Errorf("feed recorded a rejected commit")
	}
}

func TestCommitDiscountCardNotScannable(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindDiscount, models.CardRules{DiscountPercent: 10})
	e := f.enroll(t, card, 0, 0)
	ledger := newLedger(f)

	_, err := ledger.Commit(context.Background(), CommitRequest{
		CustomerLoyaltyCardID: e.ID.String(),
		Quantity:              1,
	})
	if !errors.Is(err, ErrKindNotScannable) {
		t.Fatalf("error = %v, want ErrKindNotScannable", err)
	}

	_, total, err := ledger.Transactions(context.Background(), uuid.Nil, e.ID.String(), 10, 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if total != 0 {
		t.Errorf("transactions = %d, want 0", total)
	}
}

func TestCommitUnknownCard(t *testing.T) {
	f := newFixture(t)
	ledger := newLedger(f)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: id, Quantity: 1})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Commit(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestCommitOtherBusinessNotFound(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	e := f.enroll(t, card, 3, 0)

	_, err := newLedger(f).Commit(context.Background(), CommitRequest{
		BusinessID:            uuid.New(),
		CustomerLoyaltyCardID: e.ID.String(),
		Quantity:              1,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if got := f.enrollment(t, e.ID).Stamps; got != 3 {
		t.Errorf("stamps = %d, want 3", got)
	}
}

func TestCommitTwiceWithoutKeyAppliesTwice(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	e := f.enroll(t, card, 0, 0)
	ledger := newLedger(f)

	for i := 0; i < 2; i++ {
		if _, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 1}); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}

	if got := f.enrollment(t, e.ID).Stamps; got != 2 {
		t.Errorf("stamps = %d, want 2", got)
	}
	_, total, _ := ledger.Transactions(context.Background(), uuid.Nil, e.ID.String(), 10, 0)
	if total != 2 {
		t.Errorf("transactions = %d, want 2", total)
	}
}

func TestCommitIdempotencyKeyAppliesOnce(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	e := f.enroll(t, card, 0, 0)
	ledger := newLedger(f)
	req := CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 2, IdempotencyKey: "retry-1"}

	first, err := ledger.Commit(context.Background(), req)
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	second, err := ledger.Commit(context.Background(), req)
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	if first.Replayed || !second.Replayed {
		t.Errorf("replayed = %v/%v, want false/true", first.Replayed, second.Replayed)
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("replay returned transaction %s, want %s", second.TransactionID, first.TransactionID)
	}
	if got := f.enrollment(t, e.ID).Stamps; got != 2 {
		t.Errorf("stamps = %d, want 2", got)
	}
	if got := len(ledger.Activity().Recent(uuid.Nil)); got != 0 {
		t.Errorf("nil business feed = %d", got)
	}
	if got := len(ledger.Activity().Recent(f.business.ID)); got != 1 {
		t.Errorf("feed = %d entries, want 1", got)
	}
}

func TestCommitIdempotencyKeyReplayHidesOtherBusiness(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	e := f.enroll(t, card, 1, 0)
	ledger := newLedger(f)

	req := CommitRequest{BusinessID: f.business.ID, CustomerLoyaltyCardID: e.ID.String(), Quantity: 1, IdempotencyKey: "order-1"}
	if _, err := ledger.Commit(context.Background(), req); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	req.BusinessID = uuid.New()
	bal, err := ledger.Commit(context.Background(), req)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if bal != nil {
		t.Errorf("balance = %+v, want nil", bal)
	}

	_, err = ledger.Redeem(context.Background(), RedeemRequest{BusinessID: req.BusinessID, CustomerLoyaltyCardID: e.ID.String(), IdempotencyKey: "order-1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("redeem error = %v, want ErrNotFound", err)
	}
	if got := f.enrollment(t, e.ID).Stamps; got != 2 {
		t.Errorf("stamps = %d, want 2", got)
	}
}

func TestCommitIdempotencyKeyScopedPerCard(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	a := f.enroll(t, card, 0, 0)

	otherBusiness := f.store.AddBusiness(models.Business{Name: "Bagel Bar", OwnerEmail: "owner@bagel.test"})
	otherCard := f.store.AddCard(models.LoyaltyCard{
		BusinessID: otherBusiness.ID,
		Name:       "Bagels",
		Kind:       models.CardKindPoints,
		Rules:      datatypes.NewJSONType(models.CardRules{PointsGoal: 10}),
		IsActive:   true,
	})
	otherCustomer := f.store.AddCustomer(models.Customer{BusinessID: otherBusiness.ID, Name: "Bo Chan"})
	b := f.store.Enroll(models.CustomerLoyaltyCard{CustomerID: otherCustomer.ID, LoyaltyCardID: otherCard.ID})
	ledger := newLedger(f)

	first, err := ledger.Commit(context.Background(), CommitRequest{BusinessID: f.business.ID, CustomerLoyaltyCardID: a.ID.String(), Quantity: 1, IdempotencyKey: "order-1"})
	if err != nil {
		t.Fatalf("Commit A: %v", err)
	}
	second, err := ledger.Commit(context.Background(), CommitRequest{BusinessID: otherBusiness.ID, CustomerLoyaltyCardID: b.ID.String(), Quantity: 4, IdempotencyKey: "order-1"})
	if err != nil {
		t.Fatalf("Commit B: %v", err)
	}

	if second.Replayed || second.TransactionID == first.TransactionID {
		t.Errorf("second = %+v, want a fresh entry", second)
	}
	if second.CustomerName != "Bo Chan" || second.Points != 4 {
		t.Errorf("second = %+v", second)
	}
	if got := f.enrollment(t, a.ID).Stamps; got != 1 {
		t.Errorf("A stamps = %d, want 1", got)
	}
}

func TestIdempotencyKeyReusedForRedeemConflicts(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 2})
	e := f.enroll(t, card, 5, 0)
	ledger := newLedger(f)

	if _, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 1, IdempotencyKey: "k"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_, err := ledger.Redeem(context.Background(), RedeemRequest{CustomerLoyaltyCardID: e.ID.String(), IdempotencyKey: "k"})
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("error = %v, want ErrIdempotencyConflict", err)
	}
	if got := f.enrollment(t, e.ID).Stamps; got != 6 {
		t.Errorf("stamps = %d, want 6", got)
	}
}

func TestCommitRejectsClosedCards(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	inactive := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	inactive.IsActive = false
	inactive = f.store.AddCard(inactive)
	expired := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10, ExpiresAt: &past})
	open := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10, ExpiresAt: &future})
	ledger := newLedger(f)

	tests := []struct {
		name string
		card models.LoyaltyCard
		want error
	}{
		{name: "inactive", card: inactive, want: ErrCardInactive},
		{name: "expired", card: expired, want: ErrCardExpired},
		{name: "expires later", card: open},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := f.enroll(t, tt.card, 2, 0)
			_, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 1})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			want := 2
			if tt.want == nil {
				want = 3
			}
			if got := f.enrollment(t, e.ID).Stamps; got != want {
				t.Errorf("stamps = %d, want %d", got, want)
			}
		})
	}
}

func TestCommitConcurrentScansKeepEveryStamp(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 1000})
	e := f.enroll(t, card, 0, 0)
	ledger := newLedger(f)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 1}); err != nil {
				t.Errorf("Commit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.enrollment(t, e.ID).Stamps; got != n {
		t.Errorf("stamps = %d, want %d", got, n)
	}
	_, total, _ := ledger.Transactions(context.Background(), uuid.Nil, e.ID.String(), 100, 0)
	if total != n {
		t.Errorf("transactions = %d, want %d", total, n)
	}
}

func TestCommitPersistenceFailureLeavesBalance(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 10})
	e := f.enroll(t, card, 3, 0)
	ledger := newLedger(f)
	f.store.FailWrites(errors.New("connection reset"))

	_, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 2})
	if !IsPersistence(err) {
		t.Fatalf("error = %v, want persistence error", err)
	}
	if got := f.enrollment(t, e.ID).Stamps; got != 3 {
		t.Errorf("stamps = %d, want 3", got)
	}
	if got := len(ledger.Activity().Recent(f.business.ID)); got != 0 {
		t.Errorf("feed = %d entries, want 0", got)
	}
}

func TestCommitFeedKeepsFiveNewest(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 100})
	e := f.enroll(t, card, 0, 0)
	ledger := newLedger(f)

	for q := 1; q <= 7; q++ {
		if _, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: q}); err != nil {
			t.Fatalf("Commit %d: %v", q, err)
		}
	}

	feed := ledger.Activity().Recent(f.business.ID)
	if len(feed) != 5 {
		t.Fatalf("feed = %d entries, want 5", len(feed))
	}
	for i, want := range []int{7, 6, 5, 4, 3} {
		if feed[i].Quantity != want {
			t.Errorf("feed[%d].Quantity = %d, want %d", i, feed[i].Quantity, want)
		}
	}
}

func TestCommitNotifiesWhenGoalReached(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 5, RewardText: "Free coffee"})
	e := f.enroll(t, card, 3, 0)
	notifier := newRecordingNotifier()
	ledger := NewLedgerService(f.store, NewActivityLog(5), notifier)

	bal, err := ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 2})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !bal.RewardReached {
		t.Errorf("RewardReached = false")
	}

	select {
	case n := <-notifier.sent:
		if n.CustomerName != "Ann Lee" || n.RewardText != "Free coffee" || n.Balance != 5 || n.Goal != 5 {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no reward notification")
	}

	bal, err = ledger.Commit(context.Background(), CommitRequest{CustomerLoyaltyCardID: e.ID.String(), Quantity: 1})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if bal.RewardReached {
		t.Errorf("RewardReached set again past the goal")
	}
}

func TestRedeemStampCard(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 5})
	e := f.enroll(t, card, 7, 0)
	ledger := newLedger(f)

	bal, err := ledger.Redeem(context.Background(), RedeemRequest{CustomerLoyaltyCardID: e.ID.String()})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if bal.Stamps != 2 {
		t.Errorf("stamps = %d, want 2", bal.Stamps)
	}

	txns, _, _ := ledger.Transactions(context.Background(), uuid.Nil, e.ID.String(), 10, 0)
	if len(txns) != 1 || txns[0].Type != models.TransactionRedeem || txns[0].Stamps != -5 {
		t.Errorf("transactions = %+v", txns)
	}

	feed := ledger.Activity().Recent(f.business.ID)
	if len(feed) != 1 || feed[0].Mode != ModeRedeem || feed[0].Quantity != 5 {
		t.Errorf("feed = %+v", feed)
	}
}

func TestRedeemErrors(t *testing.T) {
	f := newFixture(t)
	stamp := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 5})
	tiered := f.card(t, models.CardKindTiered, models.CardRules{Tiers: []models.Tier{{Name: "Gold", Threshold: 10}}})
	short := f.enroll(t, stamp, 4, 0)
	tier := f.enroll(t, tiered, 0, 50)
	ledger := newLedger(f)

	tests := []struct {
		name string
		id   uuid.UUID
		want error
	}{
		{name: "below goal", id: short.ID, want: ErrInsufficientBalance},
		{name: "tiered", id: tier.ID, want: ErrNotRedeemable},
		{name: "unknown", id: uuid.New(), want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Redeem(context.Background(), RedeemRequest{CustomerLoyaltyCardID: tt.id.String()})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := f.enrollment(t, short.ID).Stamps; got != 4 {
		t.Errorf("stamps = %d, want 4", got)
	}
}

func TestTransactionsHidesOtherBusiness(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardKindStamp, models.CardRules{StampGoal: 5})
	e := f.enroll(t, card, 0, 0)

	_, _, err := newLedger(f).Transactions(context.Background(), uuid.New(), e.ID.String(), 10, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
