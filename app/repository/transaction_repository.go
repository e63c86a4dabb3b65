package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/payflowhq/payflow/app/models"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(tx *models.Transaction) error {
	return r.db.Create(tx).Error
}

func (r *transactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.First(&tx, id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) GetByPublicID(publicID string, includeAudit bool) (*models.Transaction, error) {
	var tx models.Transaction
	query := r.db.Where("public_id = ?", publicID)
	if includeAudit {
		query = query.Preload("AuditEntries", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
	}
	if err := query.First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) GetByProviderID(providerID string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Where("provider_id = ?", providerID).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) ListByCustomer(customerID uint, offset, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&txs).Error
	return txs, err
}

// gormTxWriter exposes the in-flight DB transaction to UpdateWithLock
// closures through the narrow TxWriter interface.
type gormTxWriter struct {
	db *gorm.DB
}

func (w gormTxWriter) AppendAudit(entry *models.TransactionAudit) error {
	return w.db.Create(entry).Error
}

func (w gormTxWriter) CreateTransaction(tx *models.Transaction) error {
	return w.db.Create(tx).Error
}

// UpdateWithLock serializes concurrent status mutations on one transaction
// row. The row is loaded FOR UPDATE, fn mutates it in memory, and the save
// bumps the version column. The whole sequence runs inside one DB
// transaction, so the second writer observes the first writer's result.
func (r *transactionRepository) UpdateWithLock(publicID string, fn func(dbtx TxWriter, t *models.Transaction) error) (*models.Transaction, error) {
	var result *models.Transaction
	err := r.db.Transaction(func(dbtx *gorm.DB) error {
		var tx models.Transaction
		if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("public_id = ?", publicID).
			First(&tx).Error; err != nil {
			return err
		}
		if err := fn(gormTxWriter{db: dbtx}, &tx); err != nil {
			return err
		}
		tx.Version++
		if err := dbtx.Save(&tx).Error; err != nil {
			return err
		}
		result = &tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetProviderID enforces the write-once invariant: the update only applies
// while provider_id is NULL (or already equal, which is a no-op).
func (r *transactionRepository) SetProviderID(id uint, providerID string) error {
	res := r.db.Model(&models.Transaction{}).
		Where("id = ? AND (provider_id IS NULL OR provider_id = ?)", id, providerID).
		Update("provider_id", providerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var tx models.Transaction
		if err := r.db.First(&tx, id).Error; err != nil {
			return err
		}
		if tx.ProviderID != nil && *tx.ProviderID == providerID {
			return nil
		}
		return fmt.Errorf("transaction %d already has provider id %v", id, tx.ProviderID)
	}
	return nil
}

func (r *transactionRepository) AppendAudit(entry *models.TransactionAudit) error {
	return r.db.Create(entry).Error
}

func (r *transactionRepository) ListPendingOlderThan(age time.Duration, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	cutoff := time.Now().Add(-age)
	err := r.db.Where("status = ? AND type = ? AND created_at < ?",
		models.TransactionStatusPending, models.TransactionTypePayment, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *transactionRepository) CountByCustomerSince(customerID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Transaction{}).
		Where("customer_id = ? AND type = ? AND created_at >= ?",
			customerID, models.TransactionTypePayment, since).
		Count(&count).Error
	return count, err
}

// AverageSucceededAmount computes the customer's spending baseline from
// succeeded payments only. Failed and cancelled attempts do not shape what
// "normal" looks like for the account.
func (r *transactionRepository) AverageSucceededAmount(customerID uint) (decimal.Decimal, int64, error) {
	type row struct {
		Avg decimal.NullDecimal
		Cnt int64
	}
	var res row
	err := r.db.Model(&models.Transaction{}).
		Select("AVG(amount) AS avg, COUNT(*) AS cnt").
		Where("customer_id = ? AND type = ? AND status IN ?",
			customerID, models.TransactionTypePayment,
			[]string{models.TransactionStatusSucceeded, models.TransactionStatusRefunded, models.TransactionStatusPartiallyRefunded}).
		Scan(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, 0, nil
		}
		return decimal.Zero, 0, err
	}
	if !res.Avg.Valid || res.Cnt == 0 {
		return decimal.Zero, 0, nil
	}
	return res.Avg.Decimal, res.Cnt, nil
}

func (r *transactionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Transaction{}).Count(&count).Error
	return count, err
}
