package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Customer struct {
	BaseModel
	BusinessID uuid.UUID `gorm:"type:uuid;index" json:"business_id"`
	Name       string    `json:"name"`
	Email      string    `gorm:"index" json:"email"`
	Phone      string    `json:"phone"`
}

// CustomerLoyaltyCard is one customer's enrollment in one loyalty card.
// The (customer, card) pair is unique.
type CustomerLoyaltyCard struct {
	BaseModel
	CustomerID     uuid.UUID    `gorm:"type:uuid;uniqueIndex:idx_customer_card" json:"customer_id"`
	Customer       *Customer    `json:"customer,omitempty"`
	LoyaltyCardID  uuid.UUID    `gorm:"type:uuid;uniqueIndex:idx_customer_card" json:"loyalty_card_id"`
	LoyaltyCard    *LoyaltyCard `json:"loyalty_card,omitempty"`
	Points         int          `gorm:"not null;default:0;check:points >= 0" json:"points"`
	Stamps         int          `gorm:"not null;default:0;check:stamps >= 0" json:"stamps"`
	Tier           string       `json:"tier"`
	JoinedAt       time.Time    `json:"joined_at"`
	LastActivityAt *time.Time   `json:"last_activity_at"`
}

// Transaction types.
const (
	TransactionEarn   = "earn"
	TransactionRedeem = "redeem"
)

// Transaction is an append-only ledger entry for one balance change.
type Transaction struct {
	BaseModel
	CustomerLoyaltyCardID uuid.UUID      `gorm:"type:uuid;index;uniqueIndex:idx_card_idempotency" json:"customer_loyalty_card_id"`
	Type                  string         `gorm:"type:varchar(16)" json:"type"`
	Points                int            `json:"points"`
	Stamps                int            `json:"stamps"`
	Metadata              datatypes.JSON `json:"metadata"`
	IdempotencyKey        *string        `gorm:"uniqueIndex:idx_card_idempotency" json:"idempotency_key,omitempty"`
	OccurredAt            time.Time      `json:"occurred_at"`
}
