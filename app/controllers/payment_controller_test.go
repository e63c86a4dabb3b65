package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreatePaymentFingerprint(t *testing.T) {
	base := func() *createPaymentRequest {
		return &createPaymentRequest{
			Amount:            "50.00",
			Currency:          "USD",
			Email:             "user@example.com",
			Description:       "order 42",
			Metadata:          map[string]interface{}{"order_id": "42", "channel": "web"},
			DeviceFingerprint: "dev_1",
		}
	}

	reference := createPaymentFingerprint("acct_100", base())

	t.Run("stable for identical requests", func(t *testing.T) {
		assert.Equal(t, reference, createPaymentFingerprint("acct_100", base()))
	})

	t.Run("every field participates", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*createPaymentRequest)
		}{
			{"amount", func(r *createPaymentRequest) { r.Amount = "51.00" }},
			{"currency", func(r *createPaymentRequest) { r.Currency = "EUR" }},
			{"email", func(r *createPaymentRequest) { r.Email = "other@example.com" }},
			{"description", func(r *createPaymentRequest) { r.Description = "order 43" }},
			{"metadata value", func(r *createPaymentRequest) { r.Metadata["order_id"] = "43" }},
			{"metadata key", func(r *createPaymentRequest) { r.Metadata["extra"] = true }},
			{"device fingerprint", func(r *createPaymentRequest) { r.DeviceFingerprint = "dev_2" }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := base()
				tt.mutate(req)
				assert.NotEqual(t, reference, createPaymentFingerprint("acct_100", req))
			})
		}
	})

	t.Run("account scoped", func(t *testing.T) {
		assert.NotEqual(t, reference, createPaymentFingerprint("acct_200", base()))
	})

	t.Run("nil and empty metadata are equivalent", func(t *testing.T) {
		withNil := base()
		withNil.Metadata = nil
		withEmpty := base()
		withEmpty.Metadata = map[string]interface{}{}
		assert.Equal(t, createPaymentFingerprint("acct_100", withNil), createPaymentFingerprint("acct_100", withEmpty))
	})
}
