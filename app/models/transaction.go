package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionStatusPending           = "pending"
	TransactionStatusProcessing        = "processing"
	TransactionStatusSucceeded         = "succeeded"
	TransactionStatusFailed            = "failed"
	TransactionStatusCancelled         = "cancelled"
	TransactionStatusRefunded          = "refunded"
	TransactionStatusPartiallyRefunded = "partially_refunded"
)

const (
	TransactionTypePayment      = "payment"
	TransactionTypeRefund       = "refund"
	TransactionTypeSubscription = "subscription"
	TransactionTypeChargeback   = "chargeback"
)

// Transaction is the system of record for every payment and refund. Rows are
// never deleted; failed and cancelled transactions remain for audit. All
// status changes go through the ledger's transition function, never through
// direct field writes.
type Transaction struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PublicID       string          `gorm:"type:varchar(36);not null;uniqueIndex" json:"public_id"`
	CustomerID     *uint           `gorm:"index;default:null" json:"customer_id,omitempty"`
	Type           string          `gorm:"type:varchar(20);not null;default:'payment';index" json:"type"`
	Status         string          `gorm:"type:varchar(32);not null;default:'pending';index:idx_transactions_status_created,priority:1" json:"status"`
	ProviderID     *string         `gorm:"type:varchar(191);default:null;uniqueIndex" json:"provider_id,omitempty"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	RefundedAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"refunded_amount"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	MetadataJSON   string          `gorm:"type:longtext" json:"-"`
	FraudScore     *int            `gorm:"default:null" json:"fraud_score,omitempty"`
	Flagged        bool            `gorm:"default:false;index" json:"flagged"`
	FailureCode    string          `gorm:"type:varchar(64)" json:"failure_code,omitempty"`
	FailureReason  string          `gorm:"type:text" json:"failure_reason,omitempty"`
	ProcessedAt    *time.Time      `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	Version        uint            `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index:idx_transactions_status_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	AuditEntries []TransactionAudit `gorm:"foreignKey:TransactionID" json:"audit_entries,omitempty"`
}

// TransactionAudit is the append-only per-transaction history. Entries are
// only ever inserted.
type TransactionAudit struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID uint      `gorm:"not null;index" json:"transaction_id"`
	Action        string    `gorm:"type:varchar(64);not null" json:"action"`
	Actor         string    `gorm:"type:varchar(128);not null" json:"actor"`
	PriorStatus   string    `gorm:"type:varchar(32)" json:"prior_status"`
	NewStatus     string    `gorm:"type:varchar(32)" json:"new_status"`
	Note          string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Metadata decodes the provider-opaque metadata blob. A missing or broken
// blob yields an empty map.
func (t *Transaction) Metadata() map[string]interface{} {
	m := map[string]interface{}{}
	if t.MetadataJSON == "" {
		return m
	}
	if err := json.Unmarshal([]byte(t.MetadataJSON), &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

// SetMetadata replaces the metadata blob.
func (t *Transaction) SetMetadata(m map[string]interface{}) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	t.MetadataJSON = string(data)
	return nil
}

// MergeMetadata adds the given keys to the existing blob.
func (t *Transaction) MergeMetadata(kv map[string]interface{}) error {
	m := t.Metadata()
	for k, v := range kv {
		m[k] = v
	}
	return t.SetMetadata(m)
}

// RemainingRefundable returns amount - refunded_amount for payment rows.
func (t *Transaction) RemainingRefundable() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}

// IsTerminal reports whether no further status transition is permitted.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}
