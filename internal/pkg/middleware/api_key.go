package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/accountcontext"
)

// APIKeyAuthMiddleware authenticates requests carrying an API key header.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			logDenied(c, "auth_denied", "missing api key")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		hash := models.HashAPIKey(apiKey)
		repo := repository.GetGlobalFactory().GetCredentialRepository()
		credential, err := repo.GetByKeyHash(hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logDenied(c, "auth_denied", "invalid api key")
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("[Auth] API key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if !credential.Active {
			logDenied(c, "auth_denied", "credential revoked")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Credential revoked"})
		}

		// Refresh last-used timestamp best-effort.
		if err := repo.TouchUsage(credential.ID); err != nil {
			log.Warnf("[Auth] Failed to update key usage timestamp for credential %d: %v", credential.ID, err)
		}

		accountcontext.Set(c, accountcontext.AccountContext{
			AccountID:     credential.AccountID,
			CredentialID:  credential.ID,
			Authenticated: true,
			IsAdmin:       credential.Role == models.RoleAdmin,
		})

		return c.Next()
	}
}

// AdminOnlyMiddleware rejects callers without the admin role. Must run after
// APIKeyAuthMiddleware.
func AdminOnlyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !accountcontext.IsAdmin(c) {
			logDenied(c, "admin_denied", "admin credential required")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin credential required"})
		}
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
