package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"github.com/payflowhq/payflow/internal/pkg/env"
)

// payPalAdapter implements Adapter on top of the PayPal Orders API. An order
// with intent CAPTURE plays the role of a payment intent: created remotely,
// confirmed/captured asynchronously, refundable per capture.
type payPalAdapter struct {
	client        *paypal.Client
	webhookSecret string
	callTimeout   time.Duration
}

// NewPayPalAdapterFromEnv builds the adapter from PAYPAL_* environment
// configuration and fetches an initial access token.
func NewPayPalAdapterFromEnv() (Adapter, error) {
	apiBase := env.GetEnv("PAYPAL_API_BASE", paypal.APIBaseSandBox)
	client, err := paypal.NewClient(
		env.GetEnv("PAYPAL_CLIENT_ID", ""),
		env.GetEnv("PAYPAL_CLIENT_SECRET", ""),
		apiBase,
	)
	if err != nil {
		return nil, fmt.Errorf("paypal client init: %w", err)
	}
	if _, err := client.GetAccessToken(context.Background()); err != nil {
		return nil, fmt.Errorf("paypal access token: %w", err)
	}
	log.Info("[Gateway] PayPal adapter initialized")
	return &payPalAdapter{
		client:        client,
		webhookSecret: env.GetEnv("GATEWAY_WEBHOOK_SECRET", ""),
		callTimeout:   env.GetEnvDuration("GATEWAY_CALL_TIMEOUT", 15*time.Second),
	}, nil
}

func (g *payPalAdapter) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	units := []paypal.PurchaseUnitRequest{
		{
			ReferenceID: req.Reference,
			CustomID:    req.Reference,
			Description: req.Description,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: strings.ToUpper(req.Currency),
				Value:    req.Amount.StringFixed(2),
			},
		},
	}

	order, err := g.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, nil)
	if err != nil {
		return nil, g.mapError("create order", err)
	}

	return &Intent{
		ProviderID:  order.ID,
		Status:      mapOrderStatus(order.Status),
		ClientToken: approveLink(order.Links),
	}, nil
}

func (g *payPalAdapter) ConfirmIntent(ctx context.Context, providerID string, paymentMethodRef string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	// paymentMethodRef is carried in the client approval flow; the capture
	// call itself only needs the order id.
	res, err := g.client.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, g.mapError("capture order", err)
	}

	return &Intent{
		ProviderID: res.ID,
		Status:     mapOrderStatus(string(res.Status)),
	}, nil
}

func (g *payPalAdapter) CreateRefund(ctx context.Context, providerID string, amount decimal.Decimal, currency, reason string) (*Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	captureID, err := g.captureIDForOrder(ctx, providerID)
	if err != nil {
		return nil, err
	}

	res, err := g.client.RefundCapture(ctx, captureID, paypal.RefundCaptureRequest{
		Amount: &paypal.Money{
			Currency: strings.ToUpper(currency),
			Value:    amount.StringFixed(2),
		},
		NoteToPayer: reason,
	})
	if err != nil {
		return nil, g.mapError("refund capture", err)
	}

	status := IntentStatusSucceeded
	if strings.EqualFold(res.Status, "PENDING") {
		status = IntentStatusProcessing
	}
	return &Refund{ProviderRefundID: res.ID, Status: status}, nil
}

func (g *payPalAdapter) GetStatus(ctx context.Context, providerID string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	order, err := g.client.GetOrder(ctx, providerID)
	if err != nil {
		return nil, g.mapError("get order", err)
	}
	return &Intent{
		ProviderID: order.ID,
		Status:     mapOrderStatus(order.Status),
	}, nil
}

func (g *payPalAdapter) VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error) {
	if !VerifyWebhookHMAC(payload, signatureHeader, g.webhookSecret) {
		return nil, ErrInvalidSignature
	}
	return parseEvent(payload)
}

// captureIDForOrder resolves the capture behind a completed order; refunds
// execute against the capture, not the order.
func (g *payPalAdapter) captureIDForOrder(ctx context.Context, orderID string) (string, error) {
	order, err := g.client.GetOrder(ctx, orderID)
	if err != nil {
		return "", g.mapError("get order", err)
	}
	for _, pu := range order.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, capture := range pu.Payments.Captures {
			if capture.ID != "" {
				return capture.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: order %s has no capture", ErrNotFound, orderID)
}

// mapError folds provider-specific failures into the internal taxonomy.
// Deadline expiry means the remote outcome is unknown and must go through
// reconciliation instead of being retried blindly.
func (g *payPalAdapter) mapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}

	var provider *paypal.ErrorResponse
	if errors.As(err, &provider) {
		if provider.Response != nil {
			code := provider.Response.StatusCode
			switch {
			case code == 404:
				return fmt.Errorf("%w: %s: %s", ErrNotFound, op, provider.Message)
			case code == 429 || code >= 500:
				return fmt.Errorf("%w: %s: %s", ErrTransient, op, provider.Message)
			default:
				return fmt.Errorf("%w: %s: %s", ErrDeclined, op, provider.Message)
			}
		}
		return fmt.Errorf("%w: %s: %s", ErrDeclined, op, provider.Message)
	}

	// Network-level failure before any provider response.
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

func mapOrderStatus(status string) IntentStatus {
	switch strings.ToUpper(status) {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return IntentStatusPending
	case "APPROVED", "PENDING":
		return IntentStatusProcessing
	case "COMPLETED":
		return IntentStatusSucceeded
	case "VOIDED":
		return IntentStatusCancelled
	default:
		return IntentStatusFailed
	}
}

func approveLink(links []paypal.Link) string {
	for _, l := range links {
		if strings.EqualFold(l.Rel, "approve") {
			return l.Href
		}
	}
	return ""
}
