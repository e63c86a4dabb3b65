package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/audit"
	"github.com/payflowhq/payflow/internal/pkg/gateway"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
)

// retryBaseDelay is doubled per attempt when an event apply fails.
const retryBaseDelay = 30 * time.Second

// JobEnqueuer hands accepted events to the queue for asynchronous apply.
type JobEnqueuer interface {
	EnqueueApplyWebhook(eventID uint) error
}

// Service ingests provider webhook events and applies them to the ledger.
// Ingestion is cheap and synchronous (verify, dedup, persist); the actual
// state transition runs on the job processor.
type Service struct {
	events  repository.WebhookEventRepository
	ledger  *ledger.Service
	adapter gateway.Adapter
	auditor *audit.Logger
	jobs    JobEnqueuer
}

func NewService(
	events repository.WebhookEventRepository,
	ldg *ledger.Service,
	adapter gateway.Adapter,
	auditor *audit.Logger,
	jobs JobEnqueuer,
) *Service {
	return &Service{events: events, ledger: ldg, adapter: adapter, auditor: auditor, jobs: jobs}
}

// Ingest verifies, deduplicates and stores one inbound event. The returned
// bool reports whether the event was newly accepted; a redelivered event is
// acknowledged without reprocessing. An invalid signature is recorded for
// the audit trail and returned as gateway.ErrInvalidSignature; the HTTP
// receiver decides what to tell the provider.
func (s *Service) Ingest(ctx context.Context, payload []byte, signatureHeader string) (*models.WebhookEvent, bool, error) {
	event, err := s.adapter.VerifyWebhookSignature(payload, signatureHeader)
	if err != nil {
		s.recordRejected(payload, err)
		return nil, false, err
	}

	row := &models.WebhookEvent{
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Status:          models.WebhookStatusPending,
		Payload:         string(event.Raw),
		SignatureValid:  true,
		MaxRetries:      models.DefaultWebhookMaxRetries,
	}
	created, stored, err := s.events.CreateIfNotExists(row)
	if err != nil {
		return nil, false, fmt.Errorf("store webhook event: %w", err)
	}
	if !created {
		log.Infof("[Webhook] Duplicate delivery of event %s, acknowledging without reprocess", event.ProviderEventID)
		return stored, false, nil
	}

	s.auditor.Log(audit.Entry{
		Category:    models.AuditCategoryWebhook,
		Action:      "event_accepted",
		Actor:       ledger.ActorWebhook,
		SubjectType: "webhook_event",
		SubjectID:   event.ProviderEventID,
		Detail:      map[string]interface{}{"type": event.Type},
	})

	if err := s.jobs.EnqueueApplyWebhook(stored.ID); err != nil {
		// Still pending in the database; the retry sweep picks it up.
		log.Errorf("[Webhook] Failed to enqueue apply for event %s: %v", event.ProviderEventID, err)
	}
	return stored, true, nil
}

// Apply loads a stored event and applies it to the ledger. Transition
// conflicts and unknown transactions are terminal for the event; transient
// errors reschedule it using the event's own retry counter.
func (s *Service) Apply(ctx context.Context, eventID uint) error {
	row, err := s.events.GetByID(eventID)
	if err != nil {
		return fmt.Errorf("load webhook event %d: %w", eventID, err)
	}
	if row.Terminal() {
		return nil
	}

	row.Status = models.WebhookStatusProcessing
	if err := s.events.Update(row); err != nil {
		return fmt.Errorf("mark webhook event processing: %w", err)
	}

	var event gateway.Event
	if err := json.Unmarshal([]byte(row.Payload), &event); err != nil {
		return s.finish(row, models.WebhookStatusFailed, fmt.Sprintf("malformed stored payload: %v", err))
	}

	applyErr := s.dispatch(ctx, &event)
	switch {
	case applyErr == nil:
		return s.finish(row, models.WebhookStatusProcessed, "")
	case errors.Is(applyErr, ledger.ErrInvalidStateTransition),
		errors.Is(applyErr, ledger.ErrRefundExceedsBalance),
		errors.Is(applyErr, ledger.ErrNotFound),
		errors.Is(applyErr, ledger.ErrValidation):
		// Retrying will not change the outcome.
		log.Warnf("[Webhook] Event %s not applicable: %v", row.ProviderEventID, applyErr)
		return s.finish(row, models.WebhookStatusFailed, applyErr.Error())
	default:
		return s.reschedule(row, applyErr)
	}
}

func (s *Service) dispatch(ctx context.Context, event *gateway.Event) error {
	switch event.Type {
	case gateway.EventPaymentSucceeded:
		return s.applyPaymentStatus(ctx, event, models.TransactionStatusSucceeded)
	case gateway.EventPaymentFailed:
		return s.applyPaymentStatus(ctx, event, models.TransactionStatusFailed)
	case gateway.EventPaymentCancelled:
		return s.applyPaymentStatus(ctx, event, models.TransactionStatusCancelled)
	case gateway.EventRefundSucceeded:
		return s.applyRefund(ctx, event, true)
	case gateway.EventRefundFailed:
		return s.applyRefund(ctx, event, false)
	case gateway.EventChargebackCreated:
		_, err := s.ledger.RecordChargeback(ctx, event.ProviderTransactionID, event.Amount, event.ProviderEventID)
		return err
	default:
		// Unknown types are acknowledged, not errors: the provider adds
		// event kinds faster than we consume them.
		log.Infof("[Webhook] Ignoring unhandled event type %s (%s)", event.Type, event.ProviderEventID)
		return nil
	}
}

func (s *Service) applyPaymentStatus(ctx context.Context, event *gateway.Event, status string) error {
	tx, err := s.ledger.Transactions().GetByProviderID(event.ProviderTransactionID)
	if err != nil {
		return fmt.Errorf("%w: no transaction for provider id %s", ledger.ErrNotFound, event.ProviderTransactionID)
	}
	in := ledger.ApplyStatusInput{
		Status: status,
		Actor:  ledger.ActorWebhook,
		Note:   "provider event " + event.ProviderEventID,
	}
	if status == models.TransactionStatusFailed {
		in.FailureCode = event.FailureCode
		in.FailureReason = event.FailureReason
	}
	if status == models.TransactionStatusSucceeded && !event.OccurredAt.IsZero() {
		occurred := event.OccurredAt
		in.ProcessedAt = &occurred
	}
	_, err = s.ledger.ApplyStatus(ctx, tx.PublicID, in)
	return err
}

// applyRefund distinguishes refunds we initiated (a local refund row carries
// the provider refund id, only its settlement is pending) from refunds the
// provider initiated on its own (no local row, the balance must be accrued
// here).
func (s *Service) applyRefund(ctx context.Context, event *gateway.Event, succeeded bool) error {
	if event.ProviderRefundID != "" {
		if local, err := s.ledger.Transactions().GetByProviderID(event.ProviderRefundID); err == nil {
			note := "provider event " + event.ProviderEventID
			if local.Status == models.TransactionStatusSucceeded && succeeded {
				return nil
			}
			return s.ledger.SettleRefund(ctx, local.PublicID, succeeded, note)
		}
	}
	if !succeeded {
		// A failed provider-side refund we never initiated leaves our
		// ledger untouched.
		return nil
	}
	_, err := s.ledger.ApplyProviderRefund(ctx, event.ProviderTransactionID, event.Amount, event.ProviderEventID)
	return err
}

// EnqueueDueRetries re-enqueues events whose backoff window has elapsed.
// Called from the periodic maintenance ticker.
func (s *Service) EnqueueDueRetries(ctx context.Context, limit int) (int, error) {
	due, err := s.events.ListDueForRetry(time.Now(), limit)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for i := range due {
		if err := s.jobs.EnqueueApplyWebhook(due[i].ID); err != nil {
			log.Errorf("[Webhook] Failed to re-enqueue event %d: %v", due[i].ID, err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// Retry resets a terminal event for another apply attempt. Admin-triggered.
func (s *Service) Retry(ctx context.Context, eventID uint) error {
	row, err := s.events.GetByID(eventID)
	if err != nil {
		return err
	}
	if !row.SignatureValid {
		return fmt.Errorf("%w: event was rejected at ingestion", ledger.ErrValidation)
	}
	row.Status = models.WebhookStatusPending
	row.RetryCount = 0
	row.NextRetryAt = nil
	row.LastError = ""
	if err := s.events.Update(row); err != nil {
		return err
	}
	return s.jobs.EnqueueApplyWebhook(row.ID)
}

// ListFailed returns events that exhausted their retries or were skipped.
func (s *Service) ListFailed(offset, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.events.ListByStatus(models.WebhookStatusFailed, offset, limit)
}

func (s *Service) finish(row *models.WebhookEvent, status, lastError string) error {
	now := time.Now()
	row.Status = status
	row.LastError = lastError
	row.NextRetryAt = nil
	if status == models.WebhookStatusProcessed {
		row.ProcessedAt = &now
	}
	return s.events.Update(row)
}

func (s *Service) reschedule(row *models.WebhookEvent, cause error) error {
	row.RetryCount++
	row.LastError = cause.Error()
	if row.RetriesExhausted() {
		log.Errorf("[Webhook] Event %s failed permanently after %d attempts: %v", row.ProviderEventID, row.RetryCount, cause)
		return s.finish(row, models.WebhookStatusFailed, cause.Error())
	}
	delay := time.Duration(math.Pow(2, float64(row.RetryCount-1))) * retryBaseDelay
	next := time.Now().Add(delay)
	row.Status = models.WebhookStatusPending
	row.NextRetryAt = &next
	log.Warnf("[Webhook] Event %s apply failed (attempt %d/%d), retrying at %s: %v",
		row.ProviderEventID, row.RetryCount, row.MaxRetries, next.Format(time.RFC3339), cause)
	return s.events.Update(row)
}

// recordRejected keeps a trace of signature failures without accepting the
// payload into the processing pipeline.
func (s *Service) recordRejected(payload []byte, cause error) {
	sum := sha256.Sum256(payload)
	id := "rejected-" + hex.EncodeToString(sum[:8])
	row := &models.WebhookEvent{
		ProviderEventID: id,
		EventType:       "unverified",
		Status:          models.WebhookStatusSkipped,
		Payload:         string(payload),
		SignatureValid:  false,
		LastError:       cause.Error(),
	}
	if _, _, err := s.events.CreateIfNotExists(row); err != nil {
		log.Errorf("[Webhook] Failed to record rejected delivery: %v", err)
	}
	s.auditor.Log(audit.Entry{
		Category:    models.AuditCategoryWebhook,
		Action:      "signature_rejected",
		Actor:       ledger.ActorWebhook,
		SubjectType: "webhook_event",
		SubjectID:   id,
	})
}
