package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/payflowhq/payflow/app/models"
)

// auditRepository implements the AuditRepository interface
type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository instance
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(event *models.AuditEvent) error {
	return r.db.Create(event).Error
}

func (r *auditRepository) ListBySubject(subjectType, subjectID string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *auditRepository) ListUnarchivedBefore(cutoff time.Time, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.Where("archived_at IS NULL AND created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *auditRepository) MarkArchived(ids []uint, archivedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.AuditEvent{}).
		Where("id IN ?", ids).
		Update("archived_at", archivedAt).Error
}
