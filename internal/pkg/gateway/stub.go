package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// StubAdapter is an in-memory Adapter used by tests and local development.
// Behavior is steered through the error fields; call counts expose how often
// each remote mutation was attempted.
type StubAdapter struct {
	mu sync.Mutex

	WebhookSecret string

	CreateIntentErr  error
	ConfirmIntentErr error
	CreateRefundErr  error
	GetStatusErr     error

	// StatusByProviderID overrides GetStatus responses per provider id.
	StatusByProviderID map[string]IntentStatus

	CreateIntentCalls  int
	ConfirmIntentCalls int
	CreateRefundCalls  int
	GetStatusCalls     int

	seq int
}

// NewStubAdapter creates a stub with a fixed webhook secret.
func NewStubAdapter() *StubAdapter {
	return &StubAdapter{
		WebhookSecret:      "test-webhook-secret",
		StatusByProviderID: make(map[string]IntentStatus),
	}
}

func (s *StubAdapter) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateIntentCalls++
	if s.CreateIntentErr != nil {
		return nil, s.CreateIntentErr
	}
	s.seq++
	id := fmt.Sprintf("pi_stub_%06d", s.seq)
	s.StatusByProviderID[id] = IntentStatusPending
	return &Intent{
		ProviderID:  id,
		Status:      IntentStatusPending,
		ClientToken: "tok_" + id,
	}, nil
}

func (s *StubAdapter) ConfirmIntent(ctx context.Context, providerID string, paymentMethodRef string) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConfirmIntentCalls++
	if s.ConfirmIntentErr != nil {
		return nil, s.ConfirmIntentErr
	}
	s.StatusByProviderID[providerID] = IntentStatusProcessing
	return &Intent{ProviderID: providerID, Status: IntentStatusProcessing}, nil
}

func (s *StubAdapter) CreateRefund(ctx context.Context, providerID string, amount decimal.Decimal, currency, reason string) (*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateRefundCalls++
	if s.CreateRefundErr != nil {
		return nil, s.CreateRefundErr
	}
	s.seq++
	return &Refund{
		ProviderRefundID: fmt.Sprintf("re_stub_%06d", s.seq),
		Status:           IntentStatusSucceeded,
	}, nil
}

func (s *StubAdapter) GetStatus(ctx context.Context, providerID string) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetStatusCalls++
	if s.GetStatusErr != nil {
		return nil, s.GetStatusErr
	}
	status, ok := s.StatusByProviderID[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, providerID)
	}
	return &Intent{ProviderID: providerID, Status: status}, nil
}

func (s *StubAdapter) VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error) {
	if !VerifyWebhookHMAC(payload, signatureHeader, s.WebhookSecret) {
		return nil, ErrInvalidSignature
	}
	return parseEvent(payload)
}

// SetRemoteStatus lets tests steer what reconciliation observes.
func (s *StubAdapter) SetRemoteStatus(providerID string, status IntentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusByProviderID[providerID] = status
}
