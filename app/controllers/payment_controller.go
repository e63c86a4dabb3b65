package controllers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/accountcontext"
	"github.com/payflowhq/payflow/internal/pkg/idempotency"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/middleware"
)

type createPaymentRequest struct {
	Amount            string                 `json:"amount"`
	Currency          string                 `json:"currency"`
	Email             string                 `json:"email"`
	Description       string                 `json:"description"`
	Metadata          map[string]interface{} `json:"metadata"`
	DeviceFingerprint string                 `json:"device_fingerprint"`
}

type confirmPaymentRequest struct {
	PaymentMethodRef string `json:"payment_method_ref"`
}

type refundPaymentRequest struct {
	Amount string `json:"amount"` // empty = refund remaining balance
	Reason string `json:"reason"`
}

// HandleCreatePayment creates a new payment intent. A client retrying with
// the same Idempotency-Key gets the original response back instead of a
// second charge.
func HandleCreatePayment(c *fiber.Ctx) error {
	account := accountcontext.Get(c)

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "Malformed request body"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "amount must be a decimal string"})
	}

	key := c.Get(middleware.IdempotencyKeyHeader)
	if key != "" {
		decision, err := idempotencyService.Begin(c.Context(), key, account.AccountID, "create_payment", createPaymentFingerprint(account.AccountID, &req))
		if err != nil {
			log.Errorf("[API] Idempotency claim failed for key %s: %v", key, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Idempotency check failed"})
		}
		switch decision.Kind {
		case idempotency.DecisionReplay:
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(decision.ResponseStatus).Send(decision.ResponseBody)
		case idempotency.DecisionConflict:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "idempotency_conflict", "message": decision.Reason})
		}
	}

	tx, err := ledgerService.CreateIntent(c.Context(), ledger.CreateIntentInput{
		AccountID:         account.AccountID,
		Email:             req.Email,
		Amount:            amount,
		Currency:          req.Currency,
		Description:       req.Description,
		Metadata:          req.Metadata,
		DeviceFingerprint: req.DeviceFingerprint,
		IPAddress:         c.IP(),
	})
	if err != nil {
		status, code := errorStatus(err)
		body, _ := json.Marshal(fiber.Map{"error": code, "message": err.Error()})
		finalizeIdempotency(c, key, models.IdempotencyStatusFailed, status, body)
		return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
	}

	response := transactionResponse(tx)
	body, _ := json.Marshal(response)
	finalizeIdempotency(c, key, models.IdempotencyStatusCompleted, fiber.StatusCreated, body)
	return c.Status(fiber.StatusCreated).JSON(response)
}

// HandleConfirmPayment requests asynchronous confirmation of a pending
// payment.
func HandleConfirmPayment(c *fiber.Ctx) error {
	account := accountcontext.Get(c)
	publicID := c.Params("id")

	var req confirmPaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "Malformed request body"})
		}
	}

	existing, err := ledgerService.GetByPublicID(publicID, false)
	if err != nil {
		return errorResponse(c, err)
	}
	if !account.IsAdmin && !ownsTransaction(account.AccountID, existing) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Transaction not found"})
	}

	tx, err := ledgerService.RequestConfirmation(c.Context(), publicID, req.PaymentMethodRef)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(transactionResponse(tx))
}

// HandleRefundPayment refunds a settled payment, fully or partially.
func HandleRefundPayment(c *fiber.Ctx) error {
	account := accountcontext.Get(c)
	publicID := c.Params("id")

	var req refundPaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "Malformed request body"})
		}
	}

	existing, err := ledgerService.GetByPublicID(publicID, false)
	if err != nil {
		return errorResponse(c, err)
	}
	if !account.IsAdmin && !ownsTransaction(account.AccountID, existing) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Transaction not found"})
	}

	input := ledger.RefundInput{Reason: req.Reason, Actor: ledger.ActorAPI}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "amount must be a decimal string"})
		}
		input.Amount = &amount
	}

	key := c.Get(middleware.IdempotencyKeyHeader)
	if key != "" {
		fingerprint := idempotency.Fingerprint("refund_payment", account.AccountID, publicID, req.Amount, req.Reason)
		decision, err := idempotencyService.Begin(c.Context(), key, account.AccountID, "refund_payment", fingerprint)
		if err != nil {
			log.Errorf("[API] Idempotency claim failed for key %s: %v", key, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Idempotency check failed"})
		}
		switch decision.Kind {
		case idempotency.DecisionReplay:
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(decision.ResponseStatus).Send(decision.ResponseBody)
		case idempotency.DecisionConflict:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "idempotency_conflict", "message": decision.Reason})
		}
	}

	tx, err := ledgerService.Refund(c.Context(), publicID, input)
	if err != nil {
		status, code := errorStatus(err)
		body, _ := json.Marshal(fiber.Map{"error": code, "message": err.Error()})
		finalizeIdempotency(c, key, models.IdempotencyStatusFailed, status, body)
		return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
	}

	response := transactionResponse(tx)
	body, _ := json.Marshal(response)
	finalizeIdempotency(c, key, models.IdempotencyStatusCompleted, fiber.StatusOK, body)
	return c.Status(fiber.StatusOK).JSON(response)
}

// HandleGetPayment returns one transaction with its audit history.
func HandleGetPayment(c *fiber.Ctx) error {
	account := accountcontext.Get(c)
	publicID := c.Params("id")

	tx, err := ledgerService.GetByPublicID(publicID, true)
	if err != nil {
		return errorResponse(c, err)
	}
	if !account.IsAdmin && !ownsTransaction(account.AccountID, tx) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Transaction not found"})
	}
	return c.JSON(transactionResponse(tx))
}

// HandleListPayments returns the caller's transactions, newest first.
func HandleListPayments(c *fiber.Ctx) error {
	account := accountcontext.Get(c)

	customer, err := repository.GetGlobalFactory().GetCustomerRepository().GetByAccountID(account.AccountID)
	if err != nil {
		// No customer yet means no transactions yet.
		return c.JSON(fiber.Map{"transactions": []fiber.Map{}})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	txs, err := ledgerService.ListByCustomer(customer.ID, offset, limit)
	if err != nil {
		return errorResponse(c, err)
	}

	out := make([]fiber.Map, 0, len(txs))
	for i := range txs {
		out = append(out, transactionResponse(&txs[i]))
	}
	return c.JSON(fiber.Map{"transactions": out, "offset": offset, "limit": limit})
}

// createPaymentFingerprint hashes the full request payload so a reused key
// with any field changed, metadata and email included, is detected as a
// conflict. Metadata is canonicalized through json.Marshal, which sorts map
// keys.
func createPaymentFingerprint(accountID string, req *createPaymentRequest) string {
	metadata := ""
	if len(req.Metadata) > 0 {
		if data, err := json.Marshal(req.Metadata); err == nil {
			metadata = string(data)
		}
	}
	return idempotency.Fingerprint("create_payment", accountID,
		req.Amount, req.Currency, req.Email, req.Description, metadata, req.DeviceFingerprint)
}

// finalizeIdempotency stores the response under the claimed key; no-op when
// the request carried no key.
func finalizeIdempotency(c *fiber.Ctx, key, status string, responseStatus int, responseBody []byte) {
	if key == "" {
		return
	}
	if err := idempotencyService.Complete(c.Context(), key, status, responseStatus, responseBody); err != nil {
		log.Errorf("[API] Failed to finalize idempotency key %s: %v", key, err)
	}
}
