package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/models"
)

// BusinessChatLookup returns a ChatLookup that reads the business's own
// Telegram chat from db. Unknown businesses yield "".
func BusinessChatLookup(db *gorm.DB) func(uuid.UUID) string {
	return func(businessID uuid.UUID) string {
		var business models.Business
		if err := db.Select("telegram_chat_id").First(&business, "id = ?", businessID).Error; err != nil {
			return ""
		}
		return business.TelegramChatID
	}
}

// NewBusinessTelegramService creates a TelegramService that routes reward
// messages to each business's chat when db is set.
func NewBusinessTelegramService(botToken, adminChatID string, db *gorm.DB) *TelegramService {
	s := NewTelegramService(botToken, adminChatID)
	if db != nil {
		s.ChatLookup = BusinessChatLookup(db)
	}
	return s
}
