package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeConfirmPayment JobType = "confirm_payment"
	JobTypeApplyWebhook   JobType = "apply_webhook"
	JobTypeProcessRefund  JobType = "process_refund"
	JobTypeCleanupIntents JobType = "cleanup_expired_intents"
	JobTypeFraudAnalysis  JobType = "fraud_analysis"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ConfirmPaymentJobPayload contains the payload for payment confirmation jobs
type ConfirmPaymentJobPayload struct {
	TransactionPublicID string `json:"transaction_public_id"`
}

// ToMap converts the payload to a map for storage
func (p ConfirmPaymentJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction_public_id": p.TransactionPublicID,
	}
}

// FromMap creates a payload from a map
func ConfirmPaymentJobPayloadFromMap(data map[string]interface{}) (*ConfirmPaymentJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ConfirmPaymentJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// ApplyWebhookJobPayload contains the payload for webhook apply jobs
type ApplyWebhookJobPayload struct {
	EventID uint `json:"event_id"`
}

// ToMap converts the payload to a map for storage
func (p ApplyWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id": p.EventID,
	}
}

// FromMap creates a payload from a map
func ApplyWebhookJobPayloadFromMap(data map[string]interface{}) (*ApplyWebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ApplyWebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// ProcessRefundJobPayload contains the payload for refund settlement jobs
type ProcessRefundJobPayload struct {
	RefundPublicID  string `json:"refund_public_id"`
	PaymentPublicID string `json:"payment_public_id"`
}

// ToMap converts the payload to a map for storage
func (p ProcessRefundJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"refund_public_id":  p.RefundPublicID,
		"payment_public_id": p.PaymentPublicID,
	}
}

// FromMap creates a payload from a map
func ProcessRefundJobPayloadFromMap(data map[string]interface{}) (*ProcessRefundJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ProcessRefundJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// CleanupIntentsJobPayload contains the payload for expired intent sweeps
type CleanupIntentsJobPayload struct {
	BatchSize int `json:"batch_size"`
}

func (p CleanupIntentsJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"batch_size": p.BatchSize,
	}
}

func CleanupIntentsJobPayloadFromMap(data map[string]interface{}) (*CleanupIntentsJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload CleanupIntentsJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// FraudAnalysisJobPayload contains the payload for post-hoc fraud analysis jobs
type FraudAnalysisJobPayload struct {
	TransactionPublicID string `json:"transaction_public_id"`
}

func (p FraudAnalysisJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction_public_id": p.TransactionPublicID,
	}
}

func FraudAnalysisJobPayloadFromMap(data map[string]interface{}) (*FraudAnalysisJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload FraudAnalysisJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
