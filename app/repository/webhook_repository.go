package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/payflowhq/payflow/app/models"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists is the primary defense against at-least-once provider
// delivery: the unique provider event id plus an insert-or-ignore makes a
// redelivered event a no-op.
func (r *webhookEventRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider_event_id = ?", event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookEventRepository) GetByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepository) GetByProviderEventID(providerEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.Where("provider_event_id = ?", providerEventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepository) Update(event *models.WebhookEvent) error {
	return r.db.Save(event).Error
}

func (r *webhookEventRepository) ListByStatus(status string, offset, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Where("status = ?", status).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, err
}

// strandedEventAge is how long an event may sit without a scheduled retry
// before the rescue sweep claims it. Covers pending events whose enqueue
// failed and processing events whose worker died.
const strandedEventAge = 5 * time.Minute

// ListDueForRetry returns events the rescue ticker should requeue: pending
// events whose scheduled retry time has passed, pending events that never
// got a schedule (the enqueue after ingest failed), and processing events
// abandoned by a crashed worker.
func (r *webhookEventRepository) ListDueForRetry(now time.Time, limit int) ([]models.WebhookEvent, error) {
	cutoff := now.Add(-strandedEventAge)
	var events []models.WebhookEvent
	err := r.db.Where(
		"(status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)"+
			" OR (status = ? AND next_retry_at IS NULL AND updated_at <= ?)"+
			" OR (status = ? AND updated_at <= ?)",
		models.WebhookStatusPending, now,
		models.WebhookStatusPending, cutoff,
		models.WebhookStatusProcessing, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
