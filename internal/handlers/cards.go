package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/middleware"
	"github.com/example/stampcard/internal/models"
	"github.com/example/stampcard/internal/services"
	"github.com/example/stampcard/internal/utils"
)

// CardHandler manages loyalty card templates and enrollments.
type CardHandler struct {
	db *gorm.DB
	qr *services.QRCodeService
}

// NewCardHandler constructs CardHandler.
func NewCardHandler(db *gorm.DB, qr *services.QRCodeService) *CardHandler {
	return &CardHandler{db: db, qr: qr}
}

// ListCards returns the business's cards, optionally filtered by kind.
func (h *CardHandler) ListCards(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.LoyaltyCard{}).Where("business_id = ?", businessID)

	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var cards []models.LoyaltyCard
	if err := query.Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").
		Find(&cards).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       cards,
		"pagination": pg.Meta(total),
	})
}

// GetCard loads one card of the business.
func (h *CardHandler) GetCard(c *fiber.Ctx) error {
	card, err := h.loadCard(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": card})
}

type cardRequest struct {
	Name     string            `json:"name"`
	Kind     models.CardKind   `json:"kind"`
	Design   models.CardDesign `json:"design"`
	Rules    models.CardRules  `json:"rules"`
	IsActive *bool             `json:"is_active"`
}

// CreateCard creates a card template after checking its rules match its kind.
func (h *CardHandler) CreateCard(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var req cardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	if !req.Kind.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "kind must be stamp, points, tiered or discount")
	}
	if err := services.ValidateCardRules(req.Kind, req.Rules); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	card := models.LoyaltyCard{
		BusinessID: businessID,
		Name:       strings.TrimSpace(req.Name),
		Kind:       req.Kind,
		Design:     datatypes.NewJSONType(req.Design),
		Rules:      datatypes.NewJSONType(req.Rules),
		IsActive:   true,
	}
	if req.IsActive != nil {
		card.IsActive = *req.IsActive
	}

	if err := h.db.Create(&card).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": card})
}

// UpdateCard replaces the card's name, design and rules. The kind is fixed
// once customers may hold balances against it.
func (h *CardHandler) UpdateCard(c *fiber.Ctx) error {
	card, err := h.loadCard(c)
	if err != nil {
		return err
	}

	var req cardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Kind != "" && req.Kind != card.Kind {
		return fiber.NewError(fiber.StatusBadRequest, "kind cannot be changed")
	}
	if err := services.ValidateCardRules(card.Kind, req.Rules); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		card.Name = name
	}
	card.Design = datatypes.NewJSONType(req.Design)
	card.Rules = datatypes.NewJSONType(req.Rules)
	if req.IsActive != nil {
		card.IsActive = *req.IsActive
	}

	if err := h.db.Save(card).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": card})
}

type enrollRequest struct {
	CustomerID string `json:"customer_id"`
}

// Enroll issues the card to a customer of the same business and returns the
// link and QR code printed on the customer's card.
func (h *CardHandler) Enroll(c *fiber.Ctx) error {
	card, err := h.loadCard(c)
	if err != nil {
		return err
	}
	if !card.IsActive {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "card is not active")
	}

	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid customer_id")
	}

	var customer models.Customer
	if err := h.db.First(&customer, "id = ? AND business_id = ?", customerID, card.BusinessID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "customer not found")
		}
		return err
	}

	enrollment := models.CustomerLoyaltyCard{
		CustomerID:    customer.ID,
		LoyaltyCardID: card.ID,
		JoinedAt:      time.Now(),
	}
	if card.Kind == models.CardKindTiered {
		enrollment.Tier = services.TierFor(card.Rules.Data().Tiers, 0)
	}

	if err := h.db.Create(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "customer already holds this card")
		}
		return err
	}

	cardURL := h.qr.CardURL(enrollment.ID.String())
	qrCode, err := h.qr.CodeURL(enrollment.ID.String(), cardURL)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"data":     enrollment,
		"card_url": cardURL,
		"qr_code":  qrCode,
	})
}

func (h *CardHandler) loadCard(c *fiber.Ctx) (*models.LoyaltyCard, error) {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var card models.LoyaltyCard
	if err := h.db.First(&card, "id = ? AND business_id = ?", id, businessID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "card not found")
		}
		return nil, err
	}
	return &card, nil
}
