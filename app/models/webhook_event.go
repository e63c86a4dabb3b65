package models

import "time"

const (
	WebhookStatusPending    = "pending"
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
	WebhookStatusSkipped    = "skipped"
)

// DefaultWebhookMaxRetries bounds the event's own retry loop, which is
// independent of the job queue's retry counter.
const DefaultWebhookMaxRetries = 5

// WebhookEvent stores inbound provider events with deduplication metadata.
// The provider event id is the dedup key; a redelivered event is acknowledged
// without reprocessing.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Status          string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Payload         string     `gorm:"type:longtext;not null" json:"-"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	RetryCount      int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries      int        `gorm:"not null;default:5" json:"max_retries"`
	NextRetryAt     *time.Time `gorm:"type:timestamp;default:null;index" json:"next_retry_at,omitempty"`
	LastError       string     `gorm:"type:text" json:"last_error,omitempty"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Terminal reports whether the event has reached a final state.
func (e *WebhookEvent) Terminal() bool {
	return e.Status == WebhookStatusProcessed || e.Status == WebhookStatusFailed || e.Status == WebhookStatusSkipped
}

// RetriesExhausted reports whether the event has used up its retry budget.
func (e *WebhookEvent) RetriesExhausted() bool {
	return e.RetryCount >= e.MaxRetries
}
