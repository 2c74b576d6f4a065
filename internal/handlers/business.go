package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/middleware"
	"github.com/example/stampcard/internal/models"
)

// BusinessHandler manages the signed-in business's settings.
type BusinessHandler struct {
	db *gorm.DB
}

// NewBusinessHandler constructs BusinessHandler.
func NewBusinessHandler(db *gorm.DB) *BusinessHandler {
	return &BusinessHandler{db: db}
}

// GetBusiness returns the signed-in business profile.
func (h *BusinessHandler) GetBusiness(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var business models.Business
	if err := h.db.First(&business, "id = ?", businessID).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": business})
}

type updateBusinessRequest struct {
	Name           *string `json:"name"`
	ContactEmail   *string `json:"contact_email"`
	ContactPhone   *string `json:"contact_phone"`
	Address        *string `json:"address"`
	TelegramChatID *string `json:"telegram_chat_id"`
}

// UpdateBusiness updates business profile fields that were sent.
func (h *BusinessHandler) UpdateBusiness(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var req updateBusinessRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]any{}
	if req.Name != nil {
		if *req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name must not be empty")
		}
		updates["name"] = *req.Name
	}
	if req.ContactEmail != nil {
		updates["contact_email"] = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		updates["contact_phone"] = *req.ContactPhone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.TelegramChatID != nil {
		updates["telegram_chat_id"] = *req.TelegramChatID
	}

	if len(updates) > 0 {
		if err := h.db.Model(&models.Business{}).Where("id = ?", businessID).Updates(updates).Error; err != nil {
			return err
		}
	}

	return h.GetBusiness(c)
}
