package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/middleware"
	"github.com/example/stampcard/internal/models"
	"github.com/example/stampcard/internal/utils"
)

// CustomerHandler manages the business's customers.
type CustomerHandler struct {
	db *gorm.DB
}

// NewCustomerHandler constructs CustomerHandler.
func NewCustomerHandler(db *gorm.DB) *CustomerHandler {
	return &CustomerHandler{db: db}
}

// ListCustomers returns paginated customers with an optional search.
func (h *CustomerHandler) ListCustomers(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Customer{}).Where("business_id = ?", businessID)

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + search + "%"
		query = query.Where("name ILIKE ? OR email ILIKE ? OR phone ILIKE ?", q, q, q)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var customers []models.Customer
	if err := query.Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").
		Find(&customers).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       customers,
		"pagination": pg.Meta(total),
	})
}

type customerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateCustomer registers a customer for the business.
func (h *CustomerHandler) CreateCustomer(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var req customerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}

	customer := models.Customer{
		BusinessID: businessID,
		Name:       strings.TrimSpace(req.Name),
		Email:      normalizeEmail(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
	}
	if err := h.db.Create(&customer).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": customer})
}

// GetCustomer returns a customer and every card they hold.
func (h *CustomerHandler) GetCustomer(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var customer models.Customer
	if err := h.db.First(&customer, "id = ? AND business_id = ?", id, businessID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "customer not found")
		}
		return err
	}

	var cards []models.CustomerLoyaltyCard
	if err := h.db.Preload("LoyaltyCard").
		Where("customer_id = ?", customer.ID).
		Order("joined_at desc").
		Find(&cards).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"customer": customer,
			"cards":    cards,
		},
	})
}
