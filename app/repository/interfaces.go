package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/payflowhq/payflow/app/models"
)

// TxWriter lets UpdateWithLock closures persist dependent rows inside the
// same DB transaction as the locked update, so the reservation and its
// linked rows commit or roll back together.
type TxWriter interface {
	AppendAudit(entry *models.TransactionAudit) error
	CreateTransaction(tx *models.Transaction) error
}

// TransactionRepository defines the interface for transaction persistence.
// Status mutations go through UpdateWithLock so that concurrent writers
// serialize on the row instead of overwriting each other blindly.
type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByID(id uint) (*models.Transaction, error)
	GetByPublicID(publicID string, includeAudit bool) (*models.Transaction, error)
	GetByProviderID(providerID string) (*models.Transaction, error)
	ListByCustomer(customerID uint, offset, limit int) ([]models.Transaction, error)
	// UpdateWithLock loads the row under SELECT ... FOR UPDATE inside a DB
	// transaction, applies fn, and saves the result. fn must not perform
	// network I/O.
	UpdateWithLock(publicID string, fn func(dbtx TxWriter, t *models.Transaction) error) (*models.Transaction, error)
	// SetProviderID assigns the write-once provider id; it fails if a
	// different id is already set.
	SetProviderID(id uint, providerID string) error
	AppendAudit(entry *models.TransactionAudit) error
	ListPendingOlderThan(age time.Duration, limit int) ([]models.Transaction, error)
	CountByCustomerSince(customerID uint, since time.Time) (int64, error)
	AverageSucceededAmount(customerID uint) (decimal.Decimal, int64, error)
	Count() (int64, error)
}

// CustomerRepository defines the interface for customer directory operations.
type CustomerRepository interface {
	Create(customer *models.Customer) error
	GetByID(id uint) (*models.Customer, error)
	GetByAccountID(accountID string) (*models.Customer, error)
	GetOrCreateByAccountID(accountID, email string) (*models.Customer, error)
	Deactivate(id uint) error
	Update(customer *models.Customer) error
}

// WebhookEventRepository defines the interface for webhook event persistence.
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless one with the same provider
	// event id is already stored. It reports whether the insert happened and
	// returns the stored row either way.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	GetByID(id uint) (*models.WebhookEvent, error)
	GetByProviderEventID(providerEventID string) (*models.WebhookEvent, error)
	Update(event *models.WebhookEvent) error
	ListByStatus(status string, offset, limit int) ([]models.WebhookEvent, error)
	ListDueForRetry(now time.Time, limit int) ([]models.WebhookEvent, error)
}

// IdempotencyRepository defines the interface for idempotency records.
type IdempotencyRepository interface {
	// InsertIfAbsent atomically claims the key. Exactly one concurrent caller
	// observes created == true.
	InsertIfAbsent(record *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error)
	GetByKey(key string) (*models.IdempotencyRecord, error)
	Finalize(key, status string, responseStatus int, responseBody []byte) error
	DeleteExpired(now time.Time) (int64, error)
}

// AuditRepository defines the interface for the global audit trail.
type AuditRepository interface {
	Create(event *models.AuditEvent) error
	ListBySubject(subjectType, subjectID string, limit int) ([]models.AuditEvent, error)
	ListUnarchivedBefore(cutoff time.Time, limit int) ([]models.AuditEvent, error)
	MarkArchived(ids []uint, archivedAt time.Time) error
}

// CredentialRepository defines the interface for API credential lookups.
type CredentialRepository interface {
	Create(credential *models.APICredential) error
	GetByKeyHash(hash string) (*models.APICredential, error)
	TouchUsage(id uint) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Transaction TransactionRepository
	Customer    CustomerRepository
	Webhook     WebhookEventRepository
	Idempotency IdempotencyRepository
	Audit       AuditRepository
	Credential  CredentialRepository
}

// NewRepositories creates all repository instances backed by the given DB
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Transaction: NewTransactionRepository(db),
		Customer:    NewCustomerRepository(db),
		Webhook:     NewWebhookEventRepository(db),
		Idempotency: NewIdempotencyRepository(db),
		Audit:       NewAuditRepository(db),
		Credential:  NewCredentialRepository(db),
	}
}
