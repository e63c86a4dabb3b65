package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookHMAC(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment.succeeded"}`)
	secret := "test-webhook-secret"
	valid := signPayload(payload, secret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		want      bool
	}{
		{"valid signature", payload, valid, secret, true},
		{"uppercase hex accepted", payload, strings.ToUpper(valid), secret, true},
		{"surrounding whitespace accepted", payload, "  " + valid + "  ", secret, true},
		{"wrong secret", payload, valid, "other-secret", false},
		{"tampered payload", []byte(`{"id":"evt_2"}`), valid, secret, false},
		{"empty signature", payload, "", secret, false},
		{"empty secret", payload, valid, "", false},
		{"not hex", payload, "zz" + valid[2:], secret, false},
		{"truncated signature", payload, valid[:32], secret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyWebhookHMAC(tt.payload, tt.signature, tt.secret))
		})
	}
}

func TestParseEvent(t *testing.T) {
	t.Run("complete event", func(t *testing.T) {
		payload := []byte(`{
			"id": "evt_123",
			"type": "payment.failed",
			"transaction_id": "pi_9",
			"failure_code": "card_declined",
			"failure_reason": "Insufficient funds",
			"amount": "50.00",
			"currency": "USD",
			"occurred_at": "2026-08-30T12:00:00Z"
		}`)

		ev, err := parseEvent(payload)
		assert.NoError(t, err)
		assert.Equal(t, "evt_123", ev.ProviderEventID)
		assert.Equal(t, EventPaymentFailed, ev.Type)
		assert.Equal(t, "pi_9", ev.ProviderTransactionID)
		assert.Equal(t, "card_declined", ev.FailureCode)
		assert.Equal(t, "50.00", ev.Amount.StringFixed(2))
		assert.Equal(t, payload, []byte(ev.Raw))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseEvent([]byte(`{"id":`))
		assert.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := parseEvent([]byte(`{"type":"payment.succeeded"}`))
		assert.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := parseEvent([]byte(`{"id":"evt_1"}`))
		assert.Error(t, err)
	})
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, Retryable(ErrTransient))
	assert.False(t, Retryable(ErrTimeout))
	assert.False(t, Retryable(ErrDeclined))

	assert.True(t, OutcomeUnknown(ErrTimeout))
	assert.False(t, OutcomeUnknown(ErrTransient))
	assert.False(t, OutcomeUnknown(ErrDeclined))
}
