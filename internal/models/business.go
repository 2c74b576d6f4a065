package models

// Business owns loyalty cards and customers. The owner signs in with OwnerEmail.
type Business struct {
	BaseModel
	Name           string        `json:"name"`
	OwnerEmail     string        `gorm:"uniqueIndex" json:"owner_email"`
	PasswordHash   string        `json:"-"`
	ContactEmail   string        `json:"contact_email"`
	ContactPhone   string        `json:"contact_phone"`
	Address        string        `json:"address"`
	TelegramChatID string        `json:"telegram_chat_id"`
	LoyaltyCards   []LoyaltyCard `json:"loyalty_cards,omitempty"`
	Customers      []Customer    `json:"customers,omitempty"`
}
