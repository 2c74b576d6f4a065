package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TelegramService sends operator notifications to Telegram chats.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBaseURL  string
	client      *http.Client

	// ChatLookup returns a business's own chat, if any. Messages fall back
	// to the admin chat.
	ChatLookup func(businessID uuid.UUID) string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBaseURL:  "https://api.telegram.org",
		client:      http.DefaultClient,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBaseURL, s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// NotifyRewardReached tells the business that a customer earned a reward.
func (s *TelegramService) NotifyRewardReached(n RewardNotification) error {
	chatID := s.adminChatID
	if s.ChatLookup != nil {
		if own := s.ChatLookup(n.BusinessID); own != "" {
			chatID = own
		}
	}
	if chatID == "" {
		log.Println("[Telegram] No chat configured for reward notification")
		return nil
	}

	reward := n.RewardText
	if reward == "" {
		reward = "Reward"
	}

	message := fmt.Sprintf(`<b>🎉 Reward unlocked</b>
<b>👤 Customer:</b> %s
<b>💳 Card:</b> %s
<b>📈 Progress:</b> %d / %d
<b>🎁 Reward:</b> %s`,
		html.EscapeString(n.CustomerName),
		html.EscapeString(n.CardName),
		n.Balance,
		n.Goal,
		html.EscapeString(reward),
	)

	return s.SendMessage(chatID, strings.TrimSpace(message))
}
