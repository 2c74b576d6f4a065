package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/middleware"
	"github.com/example/stampcard/internal/models"
)

// AnalyticsHandler serves the business dashboard numbers.
type AnalyticsHandler struct {
	db *gorm.DB
}

// NewAnalyticsHandler constructs AnalyticsHandler.
func NewAnalyticsHandler(db *gorm.DB) *AnalyticsHandler {
	return &AnalyticsHandler{db: db}
}

// Dashboard returns aggregate statistics for the signed-in business.
func (h *AnalyticsHandler) Dashboard(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var totalCards int64
	if err := h.db.Model(&models.LoyaltyCard{}).
		Where("business_id = ?", businessID).
		Count(&totalCards).Error; err != nil {
		return err
	}

	var totalCustomers int64
	if err := h.db.Model(&models.Customer{}).
		Where("business_id = ?", businessID).
		Count(&totalCustomers).Error; err != nil {
		return err
	}

	var totalEnrollments int64
	if err := h.db.Model(&models.CustomerLoyaltyCard{}).
		Joins("JOIN loyalty_cards ON loyalty_cards.id = customer_loyalty_cards.loyalty_card_id").
		Where("loyalty_cards.business_id = ?", businessID).
		Count(&totalEnrollments).Error; err != nil {
		return err
	}

	ledger := func() *gorm.DB {
		return h.db.Model(&models.Transaction{}).
			Joins("JOIN customer_loyalty_cards ON customer_loyalty_cards.id = transactions.customer_loyalty_card_id").
			Joins("JOIN loyalty_cards ON loyalty_cards.id = customer_loyalty_cards.loyalty_card_id").
			Where("loyalty_cards.business_id = ?", businessID)
	}

	// Earned today
	type earned struct {
		Stamps int64
		Points int64
	}
	var today earned
	if err := ledger().
		Where("transactions.type = ? AND transactions.occurred_at::date = CURRENT_DATE", models.TransactionEarn).
		Select("COALESCE(SUM(transactions.stamps), 0) AS stamps, COALESCE(SUM(transactions.points), 0) AS points").
		Scan(&today).Error; err != nil {
		return err
	}

	var totalRedemptions int64
	if err := ledger().
		Where("transactions.type = ?", models.TransactionRedeem).
		Count(&totalRedemptions).Error; err != nil {
		return err
	}

	// Enrollments per card
	type cardCount struct {
		CardID   string `json:"card_id"`
		CardName string `json:"card_name"`
		Count    int64  `json:"count"`
	}
	var perCard []cardCount
	if err := h.db.Model(&models.LoyaltyCard{}).
		Select("loyalty_cards.id AS card_id, loyalty_cards.name AS card_name, COUNT(customer_loyalty_cards.id) AS count").
		Joins("LEFT JOIN customer_loyalty_cards ON customer_loyalty_cards.loyalty_card_id = loyalty_cards.id").
		Where("loyalty_cards.business_id = ?", businessID).
		Group("loyalty_cards.id, loyalty_cards.name").
		Scan(&perCard).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_cards":         totalCards,
			"total_customers":     totalCustomers,
			"total_enrollments":   totalEnrollments,
			"total_redemptions":   totalRedemptions,
			"stamps_today":        today.Stamps,
			"points_today":        today.Points,
			"enrollments_by_card": perCard,
		},
	})
}
