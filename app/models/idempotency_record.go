package models

import (
	"regexp"
	"time"
)

const (
	IdempotencyStatusProcessing = "processing"
	IdempotencyStatusCompleted  = "completed"
	IdempotencyStatusFailed     = "failed"
)

// DefaultIdempotencyTTL is how long a record answers client retries before
// it is garbage-collected.
const DefaultIdempotencyTTL = 24 * time.Hour

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)

// IdempotencyRecord deduplicates client-initiated mutating requests. The
// fingerprint is immutable once stored: the same key with a different payload
// is a hard conflict, never a cache hit.
type IdempotencyRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Key            string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"key"`
	AccountID      string    `gorm:"type:varchar(191);not null;index" json:"account_id"`
	Operation      string    `gorm:"type:varchar(64);not null" json:"operation"`
	Fingerprint    string    `gorm:"type:varchar(64);not null" json:"-"`
	Status         string    `gorm:"type:varchar(16);not null;default:'processing';index" json:"status"`
	ResponseStatus int       `gorm:"default:0" json:"response_status"`
	ResponseBody   []byte    `gorm:"type:mediumblob" json:"-"`
	ExpiresAt      time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidIdempotencyKey reports whether the client-supplied key matches the
// allowed syntax (alphanumeric, hyphen, underscore; 1-255 chars).
func ValidIdempotencyKey(key string) bool {
	return idempotencyKeyPattern.MatchString(key)
}

// Expired reports whether the record is past its TTL.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
