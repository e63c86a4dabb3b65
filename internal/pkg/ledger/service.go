package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/audit"
	"github.com/payflowhq/payflow/internal/pkg/env"
	"github.com/payflowhq/payflow/internal/pkg/fraud"
	"github.com/payflowhq/payflow/internal/pkg/gateway"
)

// Actors recorded on audit entries.
const (
	ActorAPI     = "api"
	ActorWebhook = "webhook"
	ActorJob     = "job"
	ActorSystem  = "system"
)

// JobEnqueuer decouples the ledger from the queue implementation. The queue
// package provides the concrete enqueuer.
type JobEnqueuer interface {
	EnqueueConfirmPayment(transactionPublicID string) error
	EnqueueProcessRefund(refundPublicID, paymentPublicID string) error
	EnqueueFraudAnalysis(transactionPublicID string) error
}

// Config bounds what the ledger accepts.
type Config struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// LoadConfigFromEnv reads the amount bounds from PAYMENT_MIN_AMOUNT and
// PAYMENT_MAX_AMOUNT.
func LoadConfigFromEnv() Config {
	min, err := decimal.NewFromString(env.GetEnv("PAYMENT_MIN_AMOUNT", "0.50"))
	if err != nil {
		min = decimal.NewFromFloat(0.50)
	}
	max, err := decimal.NewFromString(env.GetEnv("PAYMENT_MAX_AMOUNT", "10000.00"))
	if err != nil {
		max = decimal.NewFromInt(10000)
	}
	return Config{MinAmount: min, MaxAmount: max}
}

// Service is the transaction ledger: the state machine and system of record
// for every payment and refund. All mutations flow through here; both the
// job processor and the webhook path serialize on the transaction row via
// ApplyStatus.
type Service struct {
	transactions repository.TransactionRepository
	customers    repository.CustomerRepository
	gateway      gateway.Adapter
	scorer       *fraud.Scorer
	auditor      *audit.Logger
	jobs         JobEnqueuer
	config       Config
}

// NewService wires the ledger from its collaborators.
func NewService(
	transactions repository.TransactionRepository,
	customers repository.CustomerRepository,
	gw gateway.Adapter,
	scorer *fraud.Scorer,
	auditor *audit.Logger,
	jobs JobEnqueuer,
	config Config,
) *Service {
	return &Service{
		transactions: transactions,
		customers:    customers,
		gateway:      gw,
		scorer:       scorer,
		auditor:      auditor,
		jobs:         jobs,
		config:       config,
	}
}

// CreateIntentInput describes a new payment intent request.
type CreateIntentInput struct {
	AccountID         string
	Email             string
	Amount            decimal.Decimal
	Currency          string
	Description       string
	Metadata          map[string]interface{}
	DeviceFingerprint string
	IPAddress         string
}

// CreateIntent validates the request, scores it for fraud, creates the
// remote intent and persists the pending transaction. High fraud risk blocks
// before any gateway call: no remote side effect exists for blocked attempts.
func (s *Service) CreateIntent(ctx context.Context, in CreateIntentInput) (*models.Transaction, error) {
	if err := s.validateIntentInput(&in); err != nil {
		return nil, err
	}

	customer, err := s.customers.GetOrCreateByAccountID(in.AccountID, in.Email)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}
	if !customer.Active {
		return nil, fmt.Errorf("%w: customer account is deactivated", ErrValidation)
	}

	score, err := s.scorer.Score(ctx, fraud.Input{
		CustomerID:        customer.ID,
		AccountID:         in.AccountID,
		Amount:            in.Amount,
		Currency:          in.Currency,
		DeviceFingerprint: in.DeviceFingerprint,
		IPAddress:         in.IPAddress,
	})
	if err != nil {
		// Scoring is protective, not load-bearing: score the attempt as
		// unknown-low rather than refusing payment when history is
		// unreadable.
		log.Errorf("[Ledger] Fraud scoring failed for account %s: %v", in.AccountID, err)
		score = &fraud.Result{Score: 0, Tier: fraud.TierLow}
	}

	if score.Tier == fraud.TierHigh {
		s.auditor.Log(audit.Entry{
			Category:    models.AuditCategoryFraud,
			Action:      "intent_blocked",
			Actor:       ActorSystem,
			SubjectType: "account",
			SubjectID:   in.AccountID,
			Detail: map[string]interface{}{
				"score":   score.Score,
				"reasons": score.Reasons,
				"amount":  in.Amount.StringFixed(2),
			},
		})
		return nil, fmt.Errorf("%w: score %d", ErrFraudBlocked, score.Score)
	}

	publicID := uuid.New().String()
	tx := &models.Transaction{
		PublicID:       publicID,
		CustomerID:     &customer.ID,
		Type:           models.TransactionTypePayment,
		Status:         models.TransactionStatusPending,
		Amount:         in.Amount,
		RefundedAmount: decimal.Zero,
		Currency:       strings.ToUpper(in.Currency),
		FraudScore:     &score.Score,
		Flagged:        score.Tier == fraud.TierMedium,
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if score.Tier == fraud.TierMedium {
		metadata["fraud_advisory"] = score.Reasons
	}
	if err := tx.SetMetadata(metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata not serializable", ErrValidation)
	}

	intent, gwErr := s.gateway.CreateIntent(ctx, gateway.CreateIntentRequest{
		Reference:   publicID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Description: in.Description,
	})
	if gwErr != nil {
		if !gateway.OutcomeUnknown(gwErr) {
			// Definitive failure: nothing exists remotely, nothing is
			// persisted locally.
			return nil, gwErr
		}
		// Unknown outcome: persist without a provider id and let the
		// cleanup sweep reconcile against the gateway later.
		log.Warnf("[Ledger] Intent creation outcome unknown for %s, persisting for reconciliation: %v", publicID, gwErr)
	} else {
		tx.ProviderID = &intent.ProviderID
		_ = tx.MergeMetadata(map[string]interface{}{
			"client_confirmation_token": intent.ClientToken,
		})
	}

	if err := s.transactions.Create(tx); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	note := "intent created"
	if gwErr != nil {
		note = "intent created; gateway outcome unknown, awaiting reconciliation"
	}
	s.appendAudit(tx.ID, "created", ActorAPI, "", models.TransactionStatusPending, note)
	s.auditor.Log(audit.Entry{
		Category:    models.AuditCategoryTransaction,
		Action:      "created",
		Actor:       ActorAPI,
		SubjectType: "transaction",
		SubjectID:   tx.PublicID,
		Detail: map[string]interface{}{
			"amount":      tx.Amount.StringFixed(2),
			"currency":    tx.Currency,
			"fraud_score": score.Score,
		},
	})

	if err := s.jobs.EnqueueFraudAnalysis(tx.PublicID); err != nil {
		// Best-effort job; the synchronous score already gated the intent.
		log.Warnf("[Ledger] Failed to enqueue fraud analysis for %s: %v", tx.PublicID, err)
	}

	return tx, nil
}

// RequestConfirmation moves a pending transaction to processing and hands
// settlement to the job processor.
func (s *Service) RequestConfirmation(ctx context.Context, publicID, paymentMethodRef string) (*models.Transaction, error) {
	tx, err := s.transactions.UpdateWithLock(publicID, func(dbtx repository.TxWriter, t *models.Transaction) error {
		if t.Status != models.TransactionStatusPending {
			return fmt.Errorf("%w: confirmation requires pending, got %s", ErrInvalidStateTransition, t.Status)
		}
		if paymentMethodRef != "" {
			if err := t.MergeMetadata(map[string]interface{}{"payment_method_ref": paymentMethodRef}); err != nil {
				return err
			}
		}
		t.Status = models.TransactionStatusProcessing
		return dbtx.AppendAudit(&models.TransactionAudit{
			TransactionID: t.ID,
			Action:        "confirmation_requested",
			Actor:         ActorAPI,
			PriorStatus:   models.TransactionStatusPending,
			NewStatus:     models.TransactionStatusProcessing,
		})
	})
	if err != nil {
		return nil, s.mapRepoErr(err)
	}

	if err := s.jobs.EnqueueConfirmPayment(publicID); err != nil {
		// The transaction is already processing; the cleanup sweep will
		// reconcile it if the job never ran.
		log.Errorf("[Ledger] Failed to enqueue confirmation for %s: %v", publicID, err)
	}

	s.auditor.Log(audit.Entry{
		Category:    models.AuditCategoryTransaction,
		Action:      "confirmation_requested",
		Actor:       ActorAPI,
		SubjectType: "transaction",
		SubjectID:   publicID,
	})
	return tx, nil
}

// ApplyStatusInput describes one status transition request.
type ApplyStatusInput struct {
	Status        string
	Actor         string
	Note          string
	FailureCode   string
	FailureReason string
	ProcessedAt   *time.Time
}

// ApplyStatus is the single mutation primitive shared by the job processor
// and the webhook path. It serializes on the transaction row and is
// idempotent for same-status reapplication: redelivering a terminal
// notification is a no-op, not an error.
func (s *Service) ApplyStatus(ctx context.Context, publicID string, in ApplyStatusInput) (*models.Transaction, error) {
	var noop bool
	tx, err := s.transactions.UpdateWithLock(publicID, func(dbtx repository.TxWriter, t *models.Transaction) error {
		already, err := checkTransition(t.Status, in.Status)
		if err != nil {
			return err
		}
		if already {
			noop = true
			return nil
		}

		prior := t.Status
		t.Status = in.Status
		switch in.Status {
		case models.TransactionStatusSucceeded:
			processedAt := in.ProcessedAt
			if processedAt == nil {
				now := time.Now()
				processedAt = &now
			}
			t.ProcessedAt = processedAt
		case models.TransactionStatusFailed:
			t.FailureCode = in.FailureCode
			t.FailureReason = in.FailureReason
		}

		return dbtx.AppendAudit(&models.TransactionAudit{
			TransactionID: t.ID,
			Action:        "status_applied",
			Actor:         in.Actor,
			PriorStatus:   prior,
			NewStatus:     in.Status,
			Note:          in.Note,
		})
	})
	if err != nil {
		return nil, s.mapRepoErr(err)
	}

	if !noop {
		s.auditor.Log(audit.Entry{
			Category:    models.AuditCategoryTransaction,
			Action:      "status_" + in.Status,
			Actor:       in.Actor,
			SubjectType: "transaction",
			SubjectID:   publicID,
			Detail:      map[string]interface{}{"note": in.Note},
		})
	}
	return tx, nil
}

// RefundInput describes a refund request. Amount nil means "refund the
// remaining balance".
type RefundInput struct {
	Amount *decimal.Decimal
	Reason string
	Actor  string
}

// Refund executes a full or partial refund. The refundable balance is
// reserved and the refund row recorded as processing under the row lock,
// before the gateway call; a crash between the reservation and the gateway
// response leaves a processing refund row that the reconciliation job
// settles against the provider. The gateway call itself runs outside the
// lock.
func (s *Service) Refund(ctx context.Context, publicID string, in RefundInput) (*models.Transaction, error) {
	if in.Actor == "" {
		in.Actor = ActorAPI
	}

	var amount decimal.Decimal
	var currency string
	var paymentProviderID string
	var refundTx *models.Transaction

	// Phase 1: validate, reserve the balance and persist the refund row in
	// one DB transaction.
	_, err := s.transactions.UpdateWithLock(publicID, func(dbtx repository.TxWriter, t *models.Transaction) error {
		if t.Type != models.TransactionTypePayment {
			return fmt.Errorf("%w: only payments are refundable", ErrValidation)
		}
		if t.Status != models.TransactionStatusSucceeded && t.Status != models.TransactionStatusPartiallyRefunded {
			return fmt.Errorf("%w: refund requires succeeded or partially_refunded, got %s", ErrInvalidStateTransition, t.Status)
		}
		remaining := t.RemainingRefundable()
		if in.Amount != nil {
			amount = *in.Amount
		} else {
			amount = remaining
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: refund amount must be positive", ErrValidation)
		}
		if amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: requested %s, remaining %s", ErrRefundExceedsBalance, amount.StringFixed(2), remaining.StringFixed(2))
		}
		if t.ProviderID == nil {
			return fmt.Errorf("%w: transaction has no provider id", ErrValidation)
		}

		currency = t.Currency
		paymentProviderID = *t.ProviderID

		prior := t.Status
		t.RefundedAmount = t.RefundedAmount.Add(amount)
		if t.RefundedAmount.Equal(t.Amount) {
			t.Status = models.TransactionStatusRefunded
		} else {
			t.Status = models.TransactionStatusPartiallyRefunded
		}

		refundTx = &models.Transaction{
			PublicID:       uuid.New().String(),
			CustomerID:     t.CustomerID,
			Type:           models.TransactionTypeRefund,
			Status:         models.TransactionStatusProcessing,
			Amount:         amount,
			RefundedAmount: decimal.Zero,
			Currency:       currency,
		}
		_ = refundTx.SetMetadata(map[string]interface{}{
			"payment_public_id": publicID,
			"reason":            in.Reason,
		})
		if err := dbtx.CreateTransaction(refundTx); err != nil {
			return err
		}
		if err := dbtx.AppendAudit(&models.TransactionAudit{
			TransactionID: refundTx.ID,
			Action:        "created",
			Actor:         in.Actor,
			NewStatus:     models.TransactionStatusProcessing,
			Note:          fmt.Sprintf("refund of %s for payment %s", amount.StringFixed(2), publicID),
		}); err != nil {
			return err
		}
		return dbtx.AppendAudit(&models.TransactionAudit{
			TransactionID: t.ID,
			Action:        "refund_reserved",
			Actor:         in.Actor,
			PriorStatus:   prior,
			NewStatus:     t.Status,
			Note:          fmt.Sprintf("refund %s %s: %s", amount.StringFixed(2), currency, in.Reason),
		})
	})
	if err != nil {
		return nil, s.mapRepoErr(err)
	}

	// Safety net before touching the gateway: if this process dies mid
	// refund the job settles the processing row against the provider.
	if err := s.jobs.EnqueueProcessRefund(refundTx.PublicID, publicID); err != nil {
		log.Errorf("[Ledger] Failed to enqueue refund reconciliation for %s: %v", refundTx.PublicID, err)
	}

	// Phase 2: execute remotely, lock released.
	refund, gwErr := s.gateway.CreateRefund(ctx, paymentProviderID, amount, currency, in.Reason)
	switch {
	case gwErr == nil:
		if err := s.transactions.SetProviderID(refundTx.ID, refund.ProviderRefundID); err != nil {
			log.Errorf("[Ledger] Failed to record provider refund id on %s: %v", refundTx.PublicID, err)
		}
		if err := s.SettleRefund(ctx, refundTx.PublicID, true, "gateway accepted refund"); err != nil {
			return nil, err
		}
	case gateway.OutcomeUnknown(gwErr):
		// Leave the refund in processing; the reconciliation job settles it.
		log.Warnf("[Ledger] Refund outcome unknown for %s, awaiting reconciliation: %v", refundTx.PublicID, gwErr)
	default:
		// Definitive failure: settling as failed releases the reservation.
		if setErr := s.SettleRefund(ctx, refundTx.PublicID, false, "gateway refused refund: "+gwErr.Error()); setErr != nil {
			log.Errorf("[Ledger] Failed to settle refused refund %s: %v", refundTx.PublicID, setErr)
		}
		return nil, gwErr
	}

	s.auditor.Log(audit.Entry{
		Category:    models.AuditCategoryTransaction,
		Action:      "refund",
		Actor:       in.Actor,
		SubjectType: "transaction",
		SubjectID:   publicID,
		Detail: map[string]interface{}{
			"refund_public_id": refundTx.PublicID,
			"amount":           amount.StringFixed(2),
			"reason":           in.Reason,
		},
	})

	// Return the updated payment row.
	return s.transactions.GetByPublicID(publicID, false)
}

// ApplyProviderRefund accrues a provider-initiated refund (reported via
// webhook) onto the local payment row. The caller guarantees the event id
// was never applied before (webhook dedup).
func (s *Service) ApplyProviderRefund(ctx context.Context, providerID string, amount decimal.Decimal, eventID string) (*models.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: provider refund amount must be positive", ErrValidation)
	}

	payment, err := s.transactions.GetByProviderID(providerID)
	if err != nil {
		return nil, s.mapRepoErr(err)
	}

	return s.transactions.UpdateWithLock(payment.PublicID, func(dbtx repository.TxWriter, t *models.Transaction) error {
		if t.Status != models.TransactionStatusSucceeded && t.Status != models.TransactionStatusPartiallyRefunded {
			return fmt.Errorf("%w: provider refund against %s", ErrInvalidStateTransition, t.Status)
		}
		if amount.GreaterThan(t.RemainingRefundable()) {
			return fmt.Errorf("%w: provider refund %s exceeds remaining %s",
				ErrRefundExceedsBalance, amount.StringFixed(2), t.RemainingRefundable().StringFixed(2))
		}
		prior := t.Status
		t.RefundedAmount = t.RefundedAmount.Add(amount)
		if t.RefundedAmount.Equal(t.Amount) {
			t.Status = models.TransactionStatusRefunded
		} else {
			t.Status = models.TransactionStatusPartiallyRefunded
		}
		return dbtx.AppendAudit(&models.TransactionAudit{
			TransactionID: t.ID,
			Action:        "provider_refund_applied",
			Actor:         ActorWebhook,
			PriorStatus:   prior,
			NewStatus:     t.Status,
			Note:          fmt.Sprintf("provider event %s refunded %s", eventID, amount.StringFixed(2)),
		})
	})
}

// SettleRefund resolves a refund transaction left in processing after an
// unknown-outcome gateway call. On failure the reserved balance on the
// linked payment is released again.
func (s *Service) SettleRefund(ctx context.Context, refundPublicID string, succeeded bool, note string) error {
	refund, err := s.transactions.GetByPublicID(refundPublicID, false)
	if err != nil {
		return s.mapRepoErr(err)
	}
	if refund.Type != models.TransactionTypeRefund {
		return fmt.Errorf("%w: %s is not a refund", ErrValidation, refundPublicID)
	}
	if refund.Status != models.TransactionStatusProcessing {
		// Already settled, redelivery is a no-op.
		return nil
	}

	target := models.TransactionStatusSucceeded
	if !succeeded {
		target = models.TransactionStatusFailed
	}
	if _, err := s.ApplyStatus(ctx, refundPublicID, ApplyStatusInput{
		Status: target,
		Actor:  ActorSystem,
		Note:   note,
	}); err != nil {
		return err
	}
	if succeeded {
		return nil
	}

	// Release the reservation on the payment.
	meta := refund.Metadata()
	paymentPublicID, _ := meta["payment_public_id"].(string)
	if paymentPublicID == "" {
		return fmt.Errorf("%w: refund %s has no linked payment", ErrValidation, refundPublicID)
	}
	_, err = s.transactions.UpdateWithLock(paymentPublicID, func(dbtx repository.TxWriter, t *models.Transaction) error {
		prior := t.Status
		t.RefundedAmount = t.RefundedAmount.Sub(refund.Amount)
		if t.RefundedAmount.LessThan(decimal.Zero) {
			t.RefundedAmount = decimal.Zero
		}
		if t.RefundedAmount.IsZero() {
			t.Status = models.TransactionStatusSucceeded
		} else {
			t.Status = models.TransactionStatusPartiallyRefunded
		}
		return dbtx.AppendAudit(&models.TransactionAudit{
			TransactionID: t.ID,
			Action:        "refund_reverted",
			Actor:         ActorSystem,
			PriorStatus:   prior,
			NewStatus:     t.Status,
			Note:          "refund " + refundPublicID + " did not settle: " + note,
		})
	})
	return err
}

// RecordChargeback creates a chargeback transaction for a disputed payment
// and flags the original row.
func (s *Service) RecordChargeback(ctx context.Context, providerID string, amount decimal.Decimal, eventID string) (*models.Transaction, error) {
	payment, err := s.transactions.GetByProviderID(providerID)
	if err != nil {
		return nil, s.mapRepoErr(err)
	}

	chargeback := &models.Transaction{
		PublicID:   uuid.New().String(),
		CustomerID: payment.CustomerID,
		Type:       models.TransactionTypeChargeback,
		Status:     models.TransactionStatusSucceeded,
		Amount:     amount,
		Currency:   payment.Currency,
	}
	_ = chargeback.SetMetadata(map[string]interface{}{
		"payment_public_id": payment.PublicID,
		"provider_event_id": eventID,
	})
	if err := s.transactions.Create(chargeback); err != nil {
		return nil, fmt.Errorf("persist chargeback: %w", err)
	}

	if _, err := s.transactions.UpdateWithLock(payment.PublicID, func(dbtx repository.TxWriter, t *models.Transaction) error {
		t.Flagged = true
		return dbtx.AppendAudit(&models.TransactionAudit{
			TransactionID: t.ID,
			Action:        "chargeback_recorded",
			Actor:         ActorWebhook,
			PriorStatus:   t.Status,
			NewStatus:     t.Status,
			Note:          "provider event " + eventID,
		})
	}); err != nil {
		log.Errorf("[Ledger] Failed to flag charged-back payment %s: %v", payment.PublicID, err)
	}

	s.auditor.Log(audit.Entry{
		Category:    models.AuditCategoryTransaction,
		Action:      "chargeback",
		Actor:       ActorWebhook,
		SubjectType: "transaction",
		SubjectID:   payment.PublicID,
		Detail:      map[string]interface{}{"amount": amount.StringFixed(2)},
	})
	return chargeback, nil
}

// GetByPublicID returns one transaction, optionally with its audit entries.
func (s *Service) GetByPublicID(publicID string, includeAudit bool) (*models.Transaction, error) {
	tx, err := s.transactions.GetByPublicID(publicID, includeAudit)
	if err != nil {
		return nil, s.mapRepoErr(err)
	}
	return tx, nil
}

// ListByCustomer returns a customer's transactions, newest first.
func (s *Service) ListByCustomer(customerID uint, offset, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.transactions.ListByCustomer(customerID, offset, limit)
}

// Gateway exposes the adapter for processors that reconcile against the
// provider (cleanup, refund settlement).
func (s *Service) Gateway() gateway.Adapter {
	return s.gateway
}

// Transactions exposes the repository for read-mostly collaborators.
func (s *Service) Transactions() repository.TransactionRepository {
	return s.transactions
}

func (s *Service) validateIntentInput(in *CreateIntentInput) error {
	if in.AccountID == "" {
		return fmt.Errorf("%w: account reference is required", ErrValidation)
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Amount.LessThan(s.config.MinAmount) || in.Amount.GreaterThan(s.config.MaxAmount) {
		return fmt.Errorf("%w: amount %s outside limits [%s, %s]",
			ErrValidation, in.Amount.StringFixed(2),
			s.config.MinAmount.StringFixed(2), s.config.MaxAmount.StringFixed(2))
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(in.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}
	for _, r := range in.Currency {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
		}
	}
	return nil
}

func (s *Service) appendAudit(transactionID uint, action, actor, prior, next, note string) {
	if err := s.transactions.AppendAudit(&models.TransactionAudit{
		TransactionID: transactionID,
		Action:        action,
		Actor:         actor,
		PriorStatus:   prior,
		NewStatus:     next,
		Note:          note,
	}); err != nil {
		log.Errorf("[Ledger] Failed to append audit entry for transaction %d: %v", transactionID, err)
	}
}

func (s *Service) mapRepoErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
