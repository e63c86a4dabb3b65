package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/payflowhq/payflow/app/models"
)

// credentialRepository implements the CredentialRepository interface
type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new credential repository instance
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(credential *models.APICredential) error {
	return r.db.Create(credential).Error
}

// GetByKeyHash resolves an active API key hash to its credential.
func (r *credentialRepository) GetByKeyHash(hash string) (*models.APICredential, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var credential models.APICredential
	err := r.db.Where("key_hash = ? AND active = ?", trimmed, true).First(&credential).Error
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

// TouchUsage refreshes the last-used timestamp best-effort.
func (r *credentialRepository) TouchUsage(id uint) error {
	now := time.Now()
	return r.db.Model(&models.APICredential{}).
		Where("id = ?", id).
		Update("last_used_at", now).Error
}
