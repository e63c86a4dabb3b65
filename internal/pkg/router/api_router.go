package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/payflowhq/payflow/app/controllers"
	"github.com/payflowhq/payflow/internal/pkg/env"
	"github.com/payflowhq/payflow/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api/v1")

	// The webhook receiver authenticates by signature, not API key, and
	// must never be rate limited away from the provider.
	api.Post("/webhooks/payment", controllers.HandlePaymentWebhook)

	rateMax := env.GetEnvInt("API_RATE_LIMIT", 120)
	authed := api.Group("",
		middleware.APIKeyAuthMiddleware(),
		middleware.RateLimiter(rateMax, time.Minute),
	)

	payments := authed.Group("/payments", middleware.ValidateIdempotencyKey())
	payments.Post("/", controllers.HandleCreatePayment)
	payments.Get("/", controllers.HandleListPayments)
	payments.Get("/:id", controllers.HandleGetPayment)
	payments.Post("/:id/confirm", controllers.HandleConfirmPayment)
	payments.Post("/:id/refund", controllers.HandleRefundPayment)

	admin := authed.Group("/admin", middleware.AdminOnlyMiddleware())
	admin.Get("/queue/stats", controllers.HandleAdminQueueStats)
	admin.Get("/webhooks/failed", controllers.HandleAdminFailedWebhooks)
	admin.Post("/webhooks/:id/retry", controllers.HandleAdminRetryWebhook)
}
