package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/stampcard/internal/models"
	"github.com/example/stampcard/internal/repository"
)

// CommitRequest adds Quantity to a customer card. Requests sharing a non-empty
// IdempotencyKey are applied once.
type CommitRequest struct {
	BusinessID            uuid.UUID
	CustomerLoyaltyCardID string
	Quantity              int
	IdempotencyKey        string
	Operator              string
	Source                string
}

// RedeemRequest pays out the card's reward.
type RedeemRequest struct {
	BusinessID            uuid.UUID
	CustomerLoyaltyCardID string
	IdempotencyKey        string
	Operator              string
	Source                string
}

// Balance is the enrollment state after a ledger entry.
type Balance struct {
	CustomerLoyaltyCardID string          `json:"customer_loyalty_card_id"`
	CustomerName          string          `json:"customer_name"`
	Kind                  models.CardKind `json:"kind"`
	Stamps                int             `json:"stamps"`
	Points                int             `json:"points"`
	Balance               int             `json:"balance"`
	Goal                  int             `json:"goal"`
	Tier                  string          `json:"tier,omitempty"`
	LastActivityAt        *time.Time      `json:"last_activity_at"`
	TransactionID         uuid.UUID       `json:"transaction_id"`
	Replayed              bool            `json:"replayed"`
	RewardReached         bool            `json:"reward_reached"`
}

// RewardNotification describes a customer crossing a card goal.
type RewardNotification struct {
	BusinessID   uuid.UUID
	CustomerName string
	CardName     string
	RewardText   string
	Balance      int
	Goal         int
}

// RewardNotifier is told when a customer reaches a card goal.
type RewardNotifier interface {
	NotifyRewardReached(n RewardNotification) error
}

// LedgerService applies balance changes and feeds the activity log.
type LedgerService struct {
	store    repository.Store
	activity *ActivityLog
	notifier RewardNotifier
	now      func() time.Time
}

// NewLedgerService constructs a LedgerService. notifier may be nil.
func NewLedgerService(store repository.Store, activity *ActivityLog, notifier RewardNotifier) *LedgerService {
	return &LedgerService{store: store, activity: activity, notifier: notifier, now: time.Now}
}

// Activity returns the activity log entries are recorded into.
func (s *LedgerService) Activity() *ActivityLog {
	return s.activity
}

// Commit adds req.Quantity stamps or points, depending on the card kind, and
// appends an earn transaction in the same storage transaction.
func (s *LedgerService) Commit(ctx context.Context, req CommitRequest) (*Balance, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	id, err := uuid.Parse(req.CustomerLoyaltyCardID)
	if err != nil {
		return nil, ErrNotFound
	}

	var before int
	res, err := s.store.ApplyLedgerEntry(ctx, id, req.IdempotencyKey, func(rec *repository.CardRecord) (*models.Transaction, error) {
		if req.BusinessID != uuid.Nil && rec.Card.BusinessID != req.BusinessID {
			return nil, ErrNotFound
		}
		field, err := BalanceFieldFor(rec.Card.Kind)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if err := acceptsEarning(rec.Card, now); err != nil {
			return nil, err
		}

		txn := &models.Transaction{
			Type:       models.TransactionEarn,
			Metadata:   ledgerMetadata(ModeAdd, req.Operator, req.Source),
			OccurredAt: now,
		}

		switch field {
		case FieldStamps:
			before = rec.Enrollment.Stamps
			rec.Enrollment.Stamps += req.Quantity
			txn.Stamps = req.Quantity
		case FieldPoints:
			before = rec.Enrollment.Points
			rec.Enrollment.Points += req.Quantity
			txn.Points = req.Quantity
			if rec.Card.Kind == models.CardKindTiered {
				rec.Enrollment.Tier = TierFor(rec.Card.Rules.Data().Tiers, rec.Enrollment.Points)
			}
		}
		rec.Enrollment.LastActivityAt = &now
		return txn, nil
	})
	if err != nil {
		return nil, translateStoreError("commit", err)
	}
	if err := checkReplay(res, req.BusinessID, models.TransactionEarn); err != nil {
		return nil, err
	}

	bal := newBalance(res)
	if res.Replayed {
		return bal, nil
	}

	log.Printf("[Scan] +%d %s for card %s (%s)", req.Quantity, fieldName(res.Record.Card.Kind), bal.CustomerLoyaltyCardID, res.Record.Customer.Name)

	s.activity.Record(res.Record.Card.BusinessID, ActivityEntry{
		Type:         fieldName(res.Record.Card.Kind),
		CustomerName: res.Record.Customer.Name,
		Quantity:     req.Quantity,
		Mode:         ModeAdd,
		Timestamp:    res.Transaction.OccurredAt,
	})

	if bal.Goal > 0 && before < bal.Goal && bal.Balance >= bal.Goal {
		bal.RewardReached = true
		s.notifyReward(res.Record, bal)
	}

	return bal, nil
}

// Redeem consumes one reward worth of stamps or points and appends a redeem
// transaction with negative deltas.
func (s *LedgerService) Redeem(ctx context.Context, req RedeemRequest) (*Balance, error) {
	id, err := uuid.Parse(req.CustomerLoyaltyCardID)
	if err != nil {
		return nil, ErrNotFound
	}

	var consumed int
	res, err := s.store.ApplyLedgerEntry(ctx, id, req.IdempotencyKey, func(rec *repository.CardRecord) (*models.Transaction, error) {
		if req.BusinessID != uuid.Nil && rec.Card.BusinessID != req.BusinessID {
			return nil, ErrNotFound
		}
		goal, err := redeemGoal(rec.Card)
		if err != nil {
			return nil, err
		}

		now := s.now()
		txn := &models.Transaction{
			Type:       models.TransactionRedeem,
			Metadata:   ledgerMetadata(ModeRedeem, req.Operator, req.Source),
			OccurredAt: now,
		}

		field, _ := BalanceFieldFor(rec.Card.Kind)
		switch field {
		case FieldStamps:
			if rec.Enrollment.Stamps < goal {
				return nil, ErrInsufficientBalance
			}
			rec.Enrollment.Stamps -= goal
			txn.Stamps = -goal
		case FieldPoints:
			if rec.Enrollment.Points < goal {
				return nil, ErrInsufficientBalance
			}
			rec.Enrollment.Points -= goal
			txn.Points = -goal
		}
		consumed = goal
		rec.Enrollment.LastActivityAt = &now
		return txn, nil
	})
	if err != nil {
		return nil, translateStoreError("redeem", err)
	}
	if err := checkReplay(res, req.BusinessID, models.TransactionRedeem); err != nil {
		return nil, err
	}

	bal := newBalance(res)
	if res.Replayed {
		return bal, nil
	}

	log.Printf("[Scan] redeemed %d %s on card %s", consumed, fieldName(res.Record.Card.Kind), bal.CustomerLoyaltyCardID)

	s.activity.Record(res.Record.Card.BusinessID, ActivityEntry{
		Type:         fieldName(res.Record.Card.Kind),
		CustomerName: res.Record.Customer.Name,
		Quantity:     consumed,
		Mode:         ModeRedeem,
		Timestamp:    res.Transaction.OccurredAt,
	})

	return bal, nil
}

// Transactions lists the ledger of one customer card, newest first. A
// non-nil businessID hides cards of other businesses.
func (s *LedgerService) Transactions(ctx context.Context, businessID uuid.UUID, customerLoyaltyCardID string, limit, offset int) ([]models.Transaction, int64, error) {
	rec, err := s.store.FindCustomerCard(ctx, customerLoyaltyCardID)
	if err != nil {
		return nil, 0, translateStoreError("load card", err)
	}
	if businessID != uuid.Nil && rec.Card.BusinessID != businessID {
		return nil, 0, ErrNotFound
	}

	txns, total, err := s.store.ListTransactions(ctx, rec.Enrollment.ID, limit, offset)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "list transactions", Err: err}
	}
	return txns, total, nil
}

func (s *LedgerService) notifyReward(rec repository.CardRecord, bal *Balance) {
	if s.notifier == nil {
		return
	}
	n := RewardNotification{
		BusinessID:   rec.Card.BusinessID,
		CustomerName: rec.Customer.Name,
		CardName:     rec.Card.Name,
		RewardText:   rec.Card.Rules.Data().RewardText,
		Balance:      bal.Balance,
		Goal:         bal.Goal,
	}
	go func() {
		if err := s.notifier.NotifyRewardReached(n); err != nil {
			log.Printf("[Scan] reward notification failed: %v", err)
		}
	}()
}

// checkReplay rejects a replayed entry that belongs to another business or
// was stored by the other operation under the same key.
func checkReplay(res *repository.LedgerResult, businessID uuid.UUID, txnType string) error {
	if !res.Replayed {
		return nil
	}
	if businessID != uuid.Nil && res.Record.Card.BusinessID != businessID {
		return ErrNotFound
	}
	if res.Transaction.Type != txnType {
		return ErrIdempotencyConflict
	}
	return nil
}

// acceptsEarning reports why card cannot collect stamps or points at now.
func acceptsEarning(card models.LoyaltyCard, now time.Time) error {
	if !card.IsActive {
		return ErrCardInactive
	}
	if exp := card.Rules.Data().ExpiresAt; exp != nil && !now.Before(*exp) {
		return ErrCardExpired
	}
	return nil
}

func newBalance(res *repository.LedgerResult) *Balance {
	e := res.Record.Enrollment
	return &Balance{
		CustomerLoyaltyCardID: e.ID.String(),
		CustomerName:          res.Record.Customer.Name,
		Kind:                  res.Record.Card.Kind,
		Stamps:                e.Stamps,
		Points:                e.Points,
		Balance:               BalanceOf(res.Record.Card.Kind, e),
		Goal:                  Goal(res.Record.Card),
		Tier:                  e.Tier,
		LastActivityAt:        e.LastActivityAt,
		TransactionID:         res.Transaction.ID,
		Replayed:              res.Replayed,
	}
}

func translateStoreError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCardInactive),
		errors.Is(err, ErrCardExpired),
		errors.Is(err, ErrKindNotScannable),
		errors.Is(err, ErrNotRedeemable),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrUnknownKind):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func fieldName(kind models.CardKind) string {
	field, _ := BalanceFieldFor(kind)
	return field.String()
}

func ledgerMetadata(mode, operator, source string) datatypes.JSON {
	meta := map[string]string{"mode": mode}
	if operator != "" {
		meta["operator"] = operator
	}
	if source != "" {
		meta["source"] = source
	}
	raw, _ := json.Marshal(meta)
	return datatypes.JSON(raw)
}
