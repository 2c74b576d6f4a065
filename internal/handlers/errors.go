package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/services"
)

// ErrorHandler renders every error returned by a handler as
// {"success": false, "error": ..., "type": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, kind, message := classifyError(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"type":    kind,
	})
}

func classifyError(err error) (int, string, string) {
	var walletErr *services.WalletError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &walletErr):
		return walletErr.Status, walletErr.Type, walletErr.Message
	case errors.As(err, &fiberErr):
		return fiberErr.Code, "request_error", fiberErr.Message
	case errors.Is(err, services.ErrInvalidCode):
		return fiber.StatusBadRequest, "invalid_code", "The scanned code is not a valid card link."
	case errors.Is(err, services.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound, "not_found", "Customer card not found."
	case errors.Is(err, services.ErrInvalidQuantity):
		return fiber.StatusUnprocessableEntity, "invalid_quantity", "Quantity must be at least 1."
	case errors.Is(err, services.ErrKindNotScannable):
		return fiber.StatusUnprocessableEntity, "kind_not_scannable", "This card type does not collect stamps or points."
	case errors.Is(err, services.ErrNotRedeemable):
		return fiber.StatusUnprocessableEntity, "not_redeemable", "This card type has no reward to redeem."
	case errors.Is(err, services.ErrUnknownKind):
		return fiber.StatusUnprocessableEntity, "unknown_kind", "Unknown card type."
	case errors.Is(err, services.ErrCardInactive):
		return fiber.StatusUnprocessableEntity, "card_inactive", "This card is not active."
	case errors.Is(err, services.ErrCardExpired):
		return fiber.StatusUnprocessableEntity, "card_expired", "This card has expired."
	case errors.Is(err, services.ErrInsufficientBalance):
		return fiber.StatusConflict, "insufficient_balance", "The customer has not reached the reward yet."
	case errors.Is(err, services.ErrIdempotencyConflict):
		return fiber.StatusConflict, "idempotency_conflict", "Idempotency key was already used for another operation."
	case errors.Is(err, services.ErrCardIDRequired):
		return fiber.StatusBadRequest, "invalid_request", "cardId is required."
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fiber.StatusConflict, "conflict", "Record already exists."
	case services.IsPersistence(err):
		return fiber.StatusInternalServerError, "persistence_error", "Could not save changes. Please try again."
	}
	return fiber.StatusInternalServerError, "internal_error", "Internal server error."
}
