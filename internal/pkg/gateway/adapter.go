package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the small internal taxonomy every provider error maps
// into. ErrTimeout means "outcome unknown" and must never be treated as a
// definitive failure; it routes to reconciliation.
var (
	ErrTransient        = errors.New("gateway: transient provider failure")
	ErrTimeout          = errors.New("gateway: outcome unknown (timeout)")
	ErrDeclined         = errors.New("gateway: request declined by provider")
	ErrNotFound         = errors.New("gateway: remote object not found")
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")
)

// IntentStatus is the provider-neutral view of a remote charge.
type IntentStatus string

const (
	IntentStatusPending    IntentStatus = "pending"
	IntentStatusProcessing IntentStatus = "processing"
	IntentStatusSucceeded  IntentStatus = "succeeded"
	IntentStatusFailed     IntentStatus = "failed"
	IntentStatusCancelled  IntentStatus = "cancelled"
)

// CreateIntentRequest describes a charge to authorize on the provider side.
type CreateIntentRequest struct {
	Reference   string // our public transaction id
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Intent is the provider-side record of an authorized-but-not-settled charge.
type Intent struct {
	ProviderID  string
	Status      IntentStatus
	ClientToken string // confirmation token handed to the client
}

// Refund is the provider-side result of a refund execution.
type Refund struct {
	ProviderRefundID string
	Status           IntentStatus
}

// Event is a verified, normalized webhook event.
type Event struct {
	ProviderEventID       string          `json:"id"`
	Type                  string          `json:"type"`
	ProviderTransactionID string          `json:"transaction_id"`
	ProviderRefundID      string          `json:"refund_id,omitempty"`
	FailureCode           string          `json:"failure_code,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency,omitempty"`
	OccurredAt            time.Time       `json:"occurred_at"`
	Raw                   []byte          `json:"-"`
}

// Normalized event types delivered by the provider.
const (
	EventPaymentSucceeded  = "payment.succeeded"
	EventPaymentFailed     = "payment.failed"
	EventPaymentCancelled  = "payment.cancelled"
	EventRefundSucceeded   = "refund.succeeded"
	EventRefundFailed      = "refund.failed"
	EventChargebackCreated = "chargeback.created"
)

// Adapter wraps outbound calls to the external payment provider. It holds no
// business state; the ledger is the system of record and the adapter is only
// the source of truth for "did the remote side actually do it".
type Adapter interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	ConfirmIntent(ctx context.Context, providerID string, paymentMethodRef string) (*Intent, error)
	CreateRefund(ctx context.Context, providerID string, amount decimal.Decimal, currency, reason string) (*Refund, error)
	GetStatus(ctx context.Context, providerID string) (*Intent, error)
	VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error)
}

// Retryable reports whether the job processor may retry the failed call.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// OutcomeUnknown reports whether the call may have succeeded remotely even
// though it returned an error locally.
func OutcomeUnknown(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func parseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("gateway: malformed event payload: %w", err)
	}
	if ev.ProviderEventID == "" || ev.Type == "" {
		return nil, fmt.Errorf("gateway: event payload missing id or type")
	}
	ev.Raw = payload
	return &ev, nil
}
