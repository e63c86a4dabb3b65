package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	job := &Job{
		ID:         "job-1",
		Type:       JobTypeConfirmPayment,
		Status:     JobStatusPending,
		Payload:    ConfirmPaymentJobPayload{TransactionPublicID: "tx-1"}.ToMap(),
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("gateway unreachable")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "gateway unreachable", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestIsRetryableExhaustion(t *testing.T) {
	job := &Job{Status: JobStatusFailed, RetryCount: 0, MaxRetries: 2}

	assert.True(t, job.IsRetryable())

	job.MarkAsFailed("again")
	assert.True(t, job.IsRetryable(), "one retry left")

	job.MarkAsFailed("and again")
	assert.False(t, job.IsRetryable(), "retry budget used up")

	completed := &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 2}
	assert.False(t, completed.IsRetryable(), "only failed jobs retry")
}

func TestProcessRefundPayloadRoundTrip(t *testing.T) {
	payload := ProcessRefundJobPayload{RefundPublicID: "re-1", PaymentPublicID: "tx-1"}

	restored, err := ProcessRefundJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestApplyWebhookPayloadRoundTrip(t *testing.T) {
	payload := ApplyWebhookJobPayload{EventID: 42}

	restored, err := ApplyWebhookJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, uint(42), restored.EventID)
}

func TestPayloadFromMapIgnoresUnknownFields(t *testing.T) {
	restored, err := ConfirmPaymentJobPayloadFromMap(map[string]interface{}{
		"transaction_public_id": "tx-1",
		"legacy_field":          true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", restored.TransactionPublicID)
}
