package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/stampcard/internal/middleware"
	"github.com/example/stampcard/internal/services"
	"github.com/example/stampcard/internal/utils"
)

// ScanHandler exposes the scan-and-commit flow to the dashboard.
type ScanHandler struct {
	resolver *services.Resolver
	ledger   *services.LedgerService
}

// NewScanHandler constructs ScanHandler.
func NewScanHandler(resolver *services.Resolver, ledger *services.LedgerService) *ScanHandler {
	return &ScanHandler{resolver: resolver, ledger: ledger}
}

type resolveRequest struct {
	Code string `json:"code"`
}

// Resolve turns scanned QR text into the card view shown to the operator.
func (h *ScanHandler) Resolve(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	view, err := h.resolver.Resolve(c.UserContext(), businessID, req.Code)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": view})
}

type commitRequest struct {
	CustomerLoyaltyCardID string `json:"customer_loyalty_card_id"`
	Quantity              *int   `json:"quantity"`
	IdempotencyKey        string `json:"idempotency_key"`
	Operator              string `json:"operator"`
}

// Commit adds stamps or points to a resolved card. The quantity defaults to 1.
func (h *ScanHandler) Commit(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var req commitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.CustomerLoyaltyCardID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "customer_loyalty_card_id is required")
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	bal, err := h.ledger.Commit(c.UserContext(), services.CommitRequest{
		BusinessID:            businessID,
		CustomerLoyaltyCardID: req.CustomerLoyaltyCardID,
		Quantity:              quantity,
		IdempotencyKey:        idempotencyKey(c, req.IdempotencyKey),
		Operator:              req.Operator,
		Source:                "api",
	})
	if err != nil {
		return err
	}

	status := fiber.StatusCreated
	if bal.Replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "data": bal})
}

type redeemRequest struct {
	CustomerLoyaltyCardID string `json:"customer_loyalty_card_id"`
	IdempotencyKey        string `json:"idempotency_key"`
	Operator              string `json:"operator"`
}

// Redeem pays out the reward of a stamp or points card.
func (h *ScanHandler) Redeem(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.CustomerLoyaltyCardID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "customer_loyalty_card_id is required")
	}

	bal, err := h.ledger.Redeem(c.UserContext(), services.RedeemRequest{
		BusinessID:            businessID,
		CustomerLoyaltyCardID: req.CustomerLoyaltyCardID,
		IdempotencyKey:        idempotencyKey(c, req.IdempotencyKey),
		Operator:              req.Operator,
		Source:                "api",
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": bal})
}

// Activity returns the recent scans of the business, newest first.
func (h *ScanHandler) Activity(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.ledger.Activity().Recent(businessID),
	})
}

// Transactions returns the paginated ledger of one customer card.
func (h *ScanHandler) Transactions(c *fiber.Ctx) error {
	businessID, err := middleware.RequireBusiness(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	txns, total, err := h.ledger.Transactions(c.UserContext(), businessID, c.Params("id"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       txns,
		"pagination": pg.Meta(total),
	})
}

// idempotencyKey prefers the Idempotency-Key header over the body field.
func idempotencyKey(c *fiber.Ctx, fromBody string) string {
	if key := strings.TrimSpace(c.Get("Idempotency-Key")); key != "" {
		return key
	}
	return strings.TrimSpace(fromBody)
}
