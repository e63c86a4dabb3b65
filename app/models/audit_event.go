package models

import "time"

const (
	AuditCategoryTransaction = "transaction"
	AuditCategoryFraud       = "fraud"
	AuditCategoryWebhook     = "webhook"
	AuditCategoryAccess      = "access"
)

// AuditEvent is the global append-only audit trail. Writes are best-effort
// and must never abort the caller's operation.
type AuditEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EventID     string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"event_id"`
	Category    string     `gorm:"type:varchar(20);not null;index:idx_audit_events_cat_created,priority:1" json:"category"`
	Action      string     `gorm:"type:varchar(64);not null" json:"action"`
	Actor       string     `gorm:"type:varchar(128);not null" json:"actor"`
	SubjectType string     `gorm:"type:varchar(64)" json:"subject_type,omitempty"`
	SubjectID   string     `gorm:"type:varchar(191);index" json:"subject_id,omitempty"`
	DetailJSON  string     `gorm:"type:longtext" json:"detail_json,omitempty"`
	ArchivedAt  *time.Time `gorm:"type:timestamp;default:null;index" json:"archived_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index:idx_audit_events_cat_created,priority:2" json:"created_at"`
}
