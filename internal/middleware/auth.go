package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/stampcard/internal/utils"
)

const businessContextKey = "currentBusinessID"

// AuthMiddleware validates the bearer token and stores the signed-in business
// ID for the rest of the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		businessID, err := utils.ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(businessContextKey, businessID)
		return c.Next()
	}
}

// GetCurrentBusinessID extracts the signed-in business ID from context.
func GetCurrentBusinessID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(businessContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}

// RequireBusiness returns the signed-in business ID or a 401 error.
func RequireBusiness(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := GetCurrentBusinessID(c)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}
