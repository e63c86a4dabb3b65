package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/payflowhq/payflow/app/models"
)

// idempotencyRepository implements the IdempotencyRepository interface
type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository creates a new idempotency repository instance
func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

// InsertIfAbsent claims the key with an insert-or-ignore on the unique key
// column. When N callers race on one key, exactly one insert lands; everyone
// reads back the same stored row.
func (r *idempotencyRepository) InsertIfAbsent(record *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(record)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.IdempotencyRecord
	if err := r.db.Where("`key` = ?", record.Key).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *idempotencyRepository) GetByKey(key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	if err := r.db.Where("`key` = ?", key).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *idempotencyRepository) Finalize(key, status string, responseStatus int, responseBody []byte) error {
	return r.db.Model(&models.IdempotencyRecord{}).
		Where("`key` = ?", key).
		Updates(map[string]interface{}{
			"status":          status,
			"response_status": responseStatus,
			"response_body":   responseBody,
		}).Error
}

func (r *idempotencyRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", now).Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
