package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/payflowhq/payflow/app/models"
)

// IdempotencyKeyHeader is the header clients retry with.
const IdempotencyKeyHeader = "Idempotency-Key"

// ValidateIdempotencyKey rejects malformed idempotency keys before any work
// happens. A missing key is allowed; the operation then runs unprotected.
func ValidateIdempotencyKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		if !models.ValidIdempotencyKey(key) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation_error",
				"message": "Idempotency-Key must be 1-255 characters of [A-Za-z0-9_-]",
			})
		}
		return c.Next()
	}
}
