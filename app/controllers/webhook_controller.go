package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/payflowhq/payflow/internal/pkg/gateway"
)

// WebhookSignatureHeader carries the provider's HMAC over the raw body.
const WebhookSignatureHeader = "X-Gateway-Signature"

// HandlePaymentWebhook receives provider events. The provider only needs to
// know whether to redeliver: a bad signature gets a 400 so a misconfigured
// secret surfaces on their side, everything else is acknowledged with 200
// even when processing will happen later or not at all.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get(WebhookSignatureHeader)

	event, created, err := webhookService.Ingest(c.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "signature_error", "message": "Webhook signature verification failed"})
		}
		// Storage trouble is ours, not the provider's; let them redeliver.
		log.Errorf("[Webhook] Ingest failed: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": false})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received":  true,
		"duplicate": !created,
		"event_id":  event.ProviderEventID,
	})
}
