package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/gateway"
	"github.com/payflowhq/payflow/internal/pkg/idempotency"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/webhook"
)

// Services the handlers dispatch into, wired once at startup.
var (
	ledgerService      *ledger.Service
	webhookService     *webhook.Service
	idempotencyService *idempotency.Service
)

// Setup attaches the services to the handler package. Must run before the
// router installs any route.
func Setup(ldg *ledger.Service, wh *webhook.Service, idem *idempotency.Service) {
	ledgerService = ldg
	webhookService = wh
	idempotencyService = idem
}

// errorResponse maps the internal error taxonomy onto HTTP. The webhook
// receiver does not use this; it never surfaces internals to the provider.
func errorResponse(c *fiber.Ctx, err error) error {
	status, code := errorStatus(err)
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return fiber.StatusBadRequest, "validation_error"
	case errors.Is(err, ledger.ErrInvalidStateTransition):
		return fiber.StatusConflict, "state_conflict"
	case errors.Is(err, ledger.ErrRefundExceedsBalance):
		return fiber.StatusConflict, "refund_exceeds_balance"
	case errors.Is(err, ledger.ErrFraudBlocked):
		return fiber.StatusUnprocessableEntity, "fraud_blocked"
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, gateway.ErrDeclined):
		return fiber.StatusPaymentRequired, "payment_declined"
	case errors.Is(err, gateway.ErrTransient), errors.Is(err, gateway.ErrTimeout):
		return fiber.StatusBadGateway, "gateway_error"
	default:
		return fiber.StatusInternalServerError, "internal_server_error"
	}
}

// transactionResponse is the external shape of a transaction.
func transactionResponse(tx *models.Transaction) fiber.Map {
	resp := fiber.Map{
		"id":              tx.PublicID,
		"type":            tx.Type,
		"status":          tx.Status,
		"amount":          tx.Amount.StringFixed(2),
		"refunded_amount": tx.RefundedAmount.StringFixed(2),
		"currency":        tx.Currency,
		"flagged":         tx.Flagged,
		"created_at":      tx.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":      tx.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if meta := tx.Metadata(); len(meta) > 0 {
		resp["metadata"] = meta
	}
	if tx.ProcessedAt != nil {
		resp["processed_at"] = tx.ProcessedAt.UTC().Format(time.RFC3339)
	}
	if tx.FailureCode != "" {
		resp["failure_code"] = tx.FailureCode
		resp["failure_reason"] = tx.FailureReason
	}
	if len(tx.AuditEntries) > 0 {
		entries := make([]fiber.Map, 0, len(tx.AuditEntries))
		for _, e := range tx.AuditEntries {
			entries = append(entries, fiber.Map{
				"action":       e.Action,
				"actor":        e.Actor,
				"prior_status": e.PriorStatus,
				"new_status":   e.NewStatus,
				"note":         e.Note,
				"created_at":   e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		resp["audit"] = entries
	}
	return resp
}

// ownsTransaction checks whether the calling account owns the transaction.
func ownsTransaction(accountID string, tx *models.Transaction) bool {
	if tx.CustomerID == nil {
		return false
	}
	customer, err := repository.GetGlobalFactory().GetCustomerRepository().GetByID(*tx.CustomerID)
	if err != nil {
		return false
	}
	return customer.AccountID == accountID
}
