package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CardKind selects which balance and rules of a LoyaltyCard are authoritative.
type CardKind string

const (
	CardKindStamp    CardKind = "stamp"
	CardKindPoints   CardKind = "points"
	CardKindTiered   CardKind = "tiered"
	CardKindDiscount CardKind = "discount"
)

// Valid reports whether k is one of the known card kinds.
func (k CardKind) Valid() bool {
	switch k {
	case CardKindStamp, CardKindPoints, CardKindTiered, CardKindDiscount:
		return true
	}
	return false
}

// CardDesign is the visual part of a card template.
type CardDesign struct {
	PrimaryColor    string `json:"primary_color"`
	SecondaryColor  string `json:"secondary_color"`
	TextColor       string `json:"text_color"`
	LogoURL         string `json:"logo_url"`
	BackgroundImage string `json:"background_image"`
}

// Tier is one named threshold of a tiered card.
type Tier struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
	Reward    string `json:"reward"`
}

// CardRules holds the reward rules. Only the fields matching the card kind are read.
type CardRules struct {
	StampGoal       int        `json:"stamp_goal,omitempty"`
	PointsGoal      int        `json:"points_goal,omitempty"`
	RewardText      string     `json:"reward_text"`
	Tiers           []Tier     `json:"tiers,omitempty"`
	DiscountPercent int        `json:"discount_percent,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// LoyaltyCard is a reward template owned by one business.
type LoyaltyCard struct {
	BaseModel
	BusinessID uuid.UUID                      `gorm:"type:uuid;index" json:"business_id"`
	Business   *Business                      `json:"business,omitempty"`
	Name       string                         `json:"name"`
	Kind       CardKind                       `gorm:"type:varchar(16)" json:"kind"`
	Design     datatypes.JSONType[CardDesign] `json:"design"`
	Rules      datatypes.JSONType[CardRules]  `json:"rules"`
	IsActive   bool                           `json:"is_active"`
}
