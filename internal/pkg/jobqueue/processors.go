package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/env"
	"github.com/payflowhq/payflow/internal/pkg/fraud"
	"github.com/payflowhq/payflow/internal/pkg/gateway"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
)

// processConfirmPaymentJob settles a processing payment against the provider.
// It reconciles against the remote status first so a retried job never
// re-captures an already settled intent.
func (q *Queue) processConfirmPaymentJob(ctx context.Context, job *Job) error {
	payload, err := ConfirmPaymentJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: invalid confirm payload: %v", ErrNoRetry, err)
	}

	tx, err := q.ledger.GetByPublicID(payload.TransactionPublicID, false)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: transaction %s not found", ErrNoRetry, payload.TransactionPublicID)
		}
		return err
	}
	if tx.Status != models.TransactionStatusProcessing {
		// Settled by webhook or cleanup while the job sat in the queue.
		log.Infof("[JobQueue] Confirmation for %s skipped, status is %s", tx.PublicID, tx.Status)
		return nil
	}
	if tx.ProviderID == nil {
		return fmt.Errorf("%w: transaction %s has no provider intent", ErrNoRetry, tx.PublicID)
	}

	gw := q.ledger.Gateway()

	if remote, err := gw.GetStatus(ctx, *tx.ProviderID); err == nil {
		if done, applyErr := q.applyRemoteOutcome(ctx, tx.PublicID, remote.Status, "reconciled before capture"); done {
			return applyErr
		}
	}

	methodRef, _ := tx.Metadata()["payment_method_ref"].(string)
	intent, err := gw.ConfirmIntent(ctx, *tx.ProviderID, methodRef)
	switch {
	case err == nil:
		if intent.Status == gateway.IntentStatusSucceeded {
			_, applyErr := q.ledger.ApplyStatus(ctx, tx.PublicID, ledger.ApplyStatusInput{
				Status: models.TransactionStatusSucceeded,
				Actor:  ledger.ActorJob,
				Note:   "provider capture confirmed",
			})
			return applyErr
		}
		// Capture accepted but not final; the webhook finishes the story.
		log.Infof("[JobQueue] Capture for %s accepted, provider status %s", tx.PublicID, intent.Status)
		return nil
	case errors.Is(err, gateway.ErrDeclined):
		_, applyErr := q.ledger.ApplyStatus(ctx, tx.PublicID, ledger.ApplyStatusInput{
			Status:        models.TransactionStatusFailed,
			Actor:         ledger.ActorJob,
			FailureCode:   "provider_declined",
			FailureReason: err.Error(),
		})
		return applyErr
	case errors.Is(err, gateway.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNoRetry, err)
	default:
		// Transient or unknown outcome; the next attempt reconciles via
		// GetStatus before trying again.
		return err
	}
}

// applyRemoteOutcome maps a definitive remote status onto the local row.
// Returns false when the remote side is still in flight.
func (q *Queue) applyRemoteOutcome(ctx context.Context, publicID string, remote gateway.IntentStatus, note string) (bool, error) {
	var target string
	switch remote {
	case gateway.IntentStatusSucceeded:
		target = models.TransactionStatusSucceeded
	case gateway.IntentStatusFailed:
		target = models.TransactionStatusFailed
	case gateway.IntentStatusCancelled:
		target = models.TransactionStatusCancelled
	default:
		return false, nil
	}
	_, err := q.ledger.ApplyStatus(ctx, publicID, ledger.ApplyStatusInput{
		Status: target,
		Actor:  ledger.ActorJob,
		Note:   note,
	})
	return true, err
}

// processApplyWebhookJob hands a stored event to the webhook service.
func (q *Queue) processApplyWebhookJob(ctx context.Context, job *Job) error {
	payload, err := ApplyWebhookJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: invalid webhook payload: %v", ErrNoRetry, err)
	}
	// The event carries its own retry budget; a failed apply reschedules the
	// event, so the job itself never retries.
	if err := q.webhooks.Apply(ctx, payload.EventID); err != nil {
		return fmt.Errorf("%w: %v", ErrNoRetry, err)
	}
	return nil
}

// processRefundJob guards a refund row recorded before its gateway call.
// In the normal flow the request settles the refund itself and this job is
// a no-op. When the process died mid-refund or the outcome was unknown the
// row stays processing; the provider's webhook normally settles it, and if
// nothing arrives across the job's retry budget the refund is failed and
// the reservation released.
func (q *Queue) processRefundJob(ctx context.Context, job *Job) error {
	payload, err := ProcessRefundJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: invalid refund payload: %v", ErrNoRetry, err)
	}

	refund, err := q.ledger.GetByPublicID(payload.RefundPublicID, false)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: refund %s not found", ErrNoRetry, payload.RefundPublicID)
		}
		return err
	}
	if refund.Status != models.TransactionStatusProcessing {
		return nil
	}
	return fmt.Errorf("refund %s still awaiting provider settlement", payload.RefundPublicID)
}

// processCleanupIntentsJob sweeps stale pending intents and reconciles each
// against the provider before closing it out.
func (q *Queue) processCleanupIntentsJob(ctx context.Context, job *Job) error {
	payload, err := CleanupIntentsJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: invalid cleanup payload: %v", ErrNoRetry, err)
	}
	batch := payload.BatchSize
	if batch <= 0 {
		batch = 100
	}
	ttl := env.GetEnvDuration("PAYMENT_INTENT_TTL", 24*time.Hour)

	stale, err := q.ledger.Transactions().ListPendingOlderThan(ttl, batch)
	if err != nil {
		return fmt.Errorf("list stale intents: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	log.Infof("[JobQueue] Sweeping %d stale pending intents", len(stale))

	gw := q.ledger.Gateway()
	for i := range stale {
		tx := &stale[i]
		if tx.ProviderID == nil {
			// Never reached the provider; nothing remote to reconcile.
			if _, err := q.ledger.ApplyStatus(ctx, tx.PublicID, ledger.ApplyStatusInput{
				Status: models.TransactionStatusCancelled,
				Actor:  ledger.ActorSystem,
				Note:   "intent expired before reaching the provider",
			}); err != nil {
				log.Errorf("[JobQueue] Failed to cancel stale intent %s: %v", tx.PublicID, err)
			}
			continue
		}

		remote, err := gw.GetStatus(ctx, *tx.ProviderID)
		switch {
		case err == nil:
			if remote.Status == gateway.IntentStatusSucceeded {
				// The local row never left pending; walk it through the
				// machine the way the confirmation path would have.
				if _, err := q.ledger.ApplyStatus(ctx, tx.PublicID, ledger.ApplyStatusInput{
					Status: models.TransactionStatusProcessing,
					Actor:  ledger.ActorSystem,
					Note:   "reconciled from provider during expiry sweep",
				}); err != nil {
					log.Errorf("[JobQueue] Sweep reconcile %s: %v", tx.PublicID, err)
					continue
				}
			}
			if done, applyErr := q.applyRemoteOutcome(ctx, tx.PublicID, remote.Status, "reconciled from provider during expiry sweep"); done {
				if applyErr != nil {
					log.Errorf("[JobQueue] Sweep reconcile %s: %v", tx.PublicID, applyErr)
				}
				continue
			}
			// Remote still open; expire it locally.
			fallthrough
		case errors.Is(err, gateway.ErrNotFound):
			if _, err := q.ledger.ApplyStatus(ctx, tx.PublicID, ledger.ApplyStatusInput{
				Status: models.TransactionStatusCancelled,
				Actor:  ledger.ActorSystem,
				Note:   "intent expired without confirmation",
			}); err != nil {
				log.Errorf("[JobQueue] Failed to expire intent %s: %v", tx.PublicID, err)
			}
		default:
			// Provider unreachable; the next sweep picks it up again.
			log.Warnf("[JobQueue] Sweep could not reach provider for %s: %v", tx.PublicID, err)
		}
	}
	return nil
}

// processFraudAnalysisJob re-scores a transaction with the history available
// after creation and records the result. It never blocks a payment; the
// synchronous gate already ran.
func (q *Queue) processFraudAnalysisJob(ctx context.Context, job *Job) error {
	payload, err := FraudAnalysisJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: invalid fraud payload: %v", ErrNoRetry, err)
	}

	tx, err := q.ledger.GetByPublicID(payload.TransactionPublicID, false)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: transaction %s not found", ErrNoRetry, payload.TransactionPublicID)
		}
		return err
	}
	if tx.CustomerID == nil {
		return nil
	}

	result, err := q.scorer.Rescore(ctx, fraud.Input{
		CustomerID: *tx.CustomerID,
		Amount:     tx.Amount,
		Currency:   tx.Currency,
	})
	if err != nil {
		return fmt.Errorf("rescore %s: %w", tx.PublicID, err)
	}

	_, err = q.ledger.Transactions().UpdateWithLock(tx.PublicID, func(dbtx repository.TxWriter, t *models.Transaction) error {
		t.FraudScore = &result.Score
		if result.Tier != fraud.TierLow {
			t.Flagged = true
		}
		return nil
	})
	return err
}

// onPermanentFailure runs after a job exhausts its retries. Confirmation and
// refund jobs must not die silently: the transaction they own gets a
// definitive failed state first.
func (q *Queue) onPermanentFailure(ctx context.Context, job *Job, cause error) {
	switch job.Type {
	case JobTypeConfirmPayment:
		payload, err := ConfirmPaymentJobPayloadFromMap(job.Payload)
		if err != nil {
			return
		}
		if _, err := q.ledger.ApplyStatus(ctx, payload.TransactionPublicID, ledger.ApplyStatusInput{
			Status:        models.TransactionStatusFailed,
			Actor:         ledger.ActorJob,
			FailureCode:   "confirmation_failed",
			FailureReason: cause.Error(),
		}); err != nil {
			log.Errorf("[JobQueue] Failed to fail abandoned confirmation %s: %v", payload.TransactionPublicID, err)
		}
	case JobTypeProcessRefund:
		payload, err := ProcessRefundJobPayloadFromMap(job.Payload)
		if err != nil {
			return
		}
		if err := q.ledger.SettleRefund(ctx, payload.RefundPublicID, false, "no settlement confirmation from provider"); err != nil {
			log.Errorf("[JobQueue] Failed to close abandoned refund %s: %v", payload.RefundPublicID, err)
		}
	}
}
