package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/audit"
	"github.com/payflowhq/payflow/internal/pkg/fraud"
	"github.com/payflowhq/payflow/internal/pkg/gateway"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
)

type fakeEventRepo struct {
	mu         sync.Mutex
	nextID     uint
	byID       map[uint]*models.WebhookEvent
	byProvider map[string]uint
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{byID: make(map[uint]*models.WebhookEvent), byProvider: make(map[string]uint)}
}

func (f *fakeEventRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byProvider[event.ProviderEventID]; ok {
		copied := *f.byID[id]
		return false, &copied, nil
	}
	f.nextID++
	event.ID = f.nextID
	copied := *event
	f.byID[event.ID] = &copied
	f.byProvider[event.ProviderEventID] = event.ID
	return true, event, nil
}

func (f *fakeEventRepo) GetByID(id uint) (*models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *event
	return &copied, nil
}

func (f *fakeEventRepo) GetByProviderEventID(providerEventID string) (*models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byProvider[providerEventID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.byID[id]
	return &copied, nil
}

func (f *fakeEventRepo) Update(event *models.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *event
	f.byID[event.ID] = &copied
	return nil
}

func (f *fakeEventRepo) ListByStatus(status string, offset, limit int) ([]models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WebhookEvent
	for _, event := range f.byID {
		if event.Status == status {
			out = append(out, *event)
		}
	}
	return out, nil
}

// ListDueForRetry mirrors the production query: scheduled pending retries
// that are due, pending events that never got a schedule, and processing
// events abandoned by a crashed worker.
func (f *fakeEventRepo) ListDueForRetry(now time.Time, limit int) ([]models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := now.Add(-5 * time.Minute)
	var out []models.WebhookEvent
	for _, event := range f.byID {
		switch {
		case event.Status == models.WebhookStatusPending && event.NextRetryAt != nil && !event.NextRetryAt.After(now):
		case event.Status == models.WebhookStatusPending && event.NextRetryAt == nil && !event.UpdatedAt.After(cutoff):
		case event.Status == models.WebhookStatusProcessing && !event.UpdatedAt.After(cutoff):
		default:
			continue
		}
		out = append(out, *event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeJobs struct {
	mu      sync.Mutex
	applied []uint
}

func (f *fakeJobs) EnqueueApplyWebhook(eventID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, eventID)
	return nil
}

type fakeAuditRepo struct{}

func (f *fakeAuditRepo) Create(event *models.AuditEvent) error { return nil }
func (f *fakeAuditRepo) ListBySubject(st, si string, limit int) ([]models.AuditEvent, error) {
	return nil, nil
}
func (f *fakeAuditRepo) ListUnarchivedBefore(cutoff time.Time, limit int) ([]models.AuditEvent, error) {
	return nil, nil
}
func (f *fakeAuditRepo) MarkArchived(ids []uint, archivedAt time.Time) error { return nil }

type emptyTxRepo struct{}

func (emptyTxRepo) Create(tx *models.Transaction) error      { return nil }
func (emptyTxRepo) GetByID(id uint) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (emptyTxRepo) GetByPublicID(publicID string, includeAudit bool) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (emptyTxRepo) GetByProviderID(providerID string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (emptyTxRepo) ListByCustomer(customerID uint, offset, limit int) ([]models.Transaction, error) {
	return nil, nil
}
func (emptyTxRepo) UpdateWithLock(publicID string, fn func(dbtx repository.TxWriter, t *models.Transaction) error) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (emptyTxRepo) SetProviderID(id uint, providerID string) error    { return nil }
func (emptyTxRepo) AppendAudit(entry *models.TransactionAudit) error  { return nil }
func (emptyTxRepo) ListPendingOlderThan(age time.Duration, limit int) ([]models.Transaction, error) {
	return nil, nil
}
func (emptyTxRepo) CountByCustomerSince(customerID uint, since time.Time) (int64, error) {
	return 0, nil
}
func (emptyTxRepo) AverageSucceededAmount(customerID uint) (decimal.Decimal, int64, error) {
	return decimal.Zero, 0, nil
}
func (emptyTxRepo) Count() (int64, error) { return 0, nil }

type emptyCustomerRepo struct{}

func (emptyCustomerRepo) Create(customer *models.Customer) error { return nil }
func (emptyCustomerRepo) GetByID(id uint) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}
func (emptyCustomerRepo) GetByAccountID(accountID string) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}
func (emptyCustomerRepo) GetOrCreateByAccountID(accountID, email string) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}
func (emptyCustomerRepo) Deactivate(id uint) error               { return nil }
func (emptyCustomerRepo) Update(customer *models.Customer) error { return nil }

type noopLedgerJobs struct{}

func (noopLedgerJobs) EnqueueConfirmPayment(id string) error              { return nil }
func (noopLedgerJobs) EnqueueProcessRefund(refundID, paymentID string) error { return nil }
func (noopLedgerJobs) EnqueueFraudAnalysis(id string) error               { return nil }

type webhookFixture struct {
	service *Service
	events  *fakeEventRepo
	jobs    *fakeJobs
	stub    *gateway.StubAdapter
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	stub := gateway.NewStubAdapter()
	auditor := audit.NewLogger(&fakeAuditRepo{}, 16)
	auditor.Start()
	t.Cleanup(auditor.Stop)

	ldg := ledger.NewService(
		emptyTxRepo{},
		emptyCustomerRepo{},
		stub,
		fraud.NewScorer(emptyTxRepo{}, nil, nil),
		auditor,
		noopLedgerJobs{},
		ledger.Config{MinAmount: decimal.NewFromFloat(0.50), MaxAmount: decimal.NewFromInt(10000)},
	)

	events := newFakeEventRepo()
	jobs := &fakeJobs{}
	return &webhookFixture{
		service: NewService(events, ldg, stub, auditor, jobs),
		events:  events,
		jobs:    jobs,
		stub:    stub,
	}
}

func signedPayload(t *testing.T, stub *gateway.StubAdapter, body string) ([]byte, string) {
	t.Helper()
	payload := []byte(body)
	mac := hmac.New(sha256.New, []byte(stub.WebhookSecret))
	mac.Write(payload)
	return payload, hex.EncodeToString(mac.Sum(nil))
}

func TestIngestRejectsBadSignature(t *testing.T) {
	fx := newWebhookFixture(t)
	payload := []byte(`{"id":"evt_1","type":"payment.succeeded","transaction_id":"pi_1"}`)

	_, created, err := fx.service.Ingest(context.Background(), payload, "deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrInvalidSignature))
	assert.False(t, created)
	assert.Empty(t, fx.jobs.applied, "rejected deliveries are never enqueued")

	// The rejection leaves a skipped trace row.
	require.Len(t, fx.events.byID, 1)
	for _, row := range fx.events.byID {
		assert.Equal(t, models.WebhookStatusSkipped, row.Status)
		assert.False(t, row.SignatureValid)
		assert.Equal(t, "unverified", row.EventType)
	}
}

func TestIngestAcceptsAndEnqueues(t *testing.T) {
	fx := newWebhookFixture(t)
	payload, sig := signedPayload(t, fx.stub, `{"id":"evt_1","type":"payment.succeeded","transaction_id":"pi_1","amount":"50.00"}`)

	stored, created, err := fx.service.Ingest(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.WebhookStatusPending, stored.Status)
	assert.True(t, stored.SignatureValid)
	assert.Equal(t, models.DefaultWebhookMaxRetries, stored.MaxRetries)
	assert.Equal(t, []uint{stored.ID}, fx.jobs.applied)
}

func TestIngestDeduplicatesRedelivery(t *testing.T) {
	fx := newWebhookFixture(t)
	payload, sig := signedPayload(t, fx.stub, `{"id":"evt_1","type":"payment.succeeded","transaction_id":"pi_1"}`)

	first, created, err := fx.service.Ingest(context.Background(), payload, sig)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := fx.service.Ingest(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fx.jobs.applied, 1, "redelivery must not enqueue a second apply")
}

func TestApplyUnknownEventTypeIsProcessed(t *testing.T) {
	fx := newWebhookFixture(t)
	payload, sig := signedPayload(t, fx.stub, `{"id":"evt_1","type":"payout.created","transaction_id":"pi_1"}`)
	stored, _, err := fx.service.Ingest(context.Background(), payload, sig)
	require.NoError(t, err)

	require.NoError(t, fx.service.Apply(context.Background(), stored.ID))

	row, err := fx.events.GetByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessed, row.Status)
	assert.NotNil(t, row.ProcessedAt)
}

func TestApplyUnknownTransactionFailsTerminally(t *testing.T) {
	fx := newWebhookFixture(t)
	payload, sig := signedPayload(t, fx.stub, `{"id":"evt_1","type":"payment.succeeded","transaction_id":"pi_unknown"}`)
	stored, _, err := fx.service.Ingest(context.Background(), payload, sig)
	require.NoError(t, err)

	require.NoError(t, fx.service.Apply(context.Background(), stored.ID))

	row, err := fx.events.GetByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusFailed, row.Status)
	assert.Zero(t, row.RetryCount, "a not-applicable event is terminal, not retried")
	assert.Contains(t, row.LastError, "pi_unknown")
}

func TestApplyMalformedStoredPayloadFails(t *testing.T) {
	fx := newWebhookFixture(t)
	row := &models.WebhookEvent{
		ProviderEventID: "evt_broken",
		EventType:       "payment.succeeded",
		Status:          models.WebhookStatusPending,
		Payload:         `{"id":`,
		SignatureValid:  true,
		MaxRetries:      models.DefaultWebhookMaxRetries,
	}
	_, stored, err := fx.events.CreateIfNotExists(row)
	require.NoError(t, err)

	require.NoError(t, fx.service.Apply(context.Background(), stored.ID))

	got, err := fx.events.GetByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusFailed, got.Status)
}

func TestApplyTerminalEventIsNoop(t *testing.T) {
	fx := newWebhookFixture(t)
	row := &models.WebhookEvent{
		ProviderEventID: "evt_done",
		EventType:       "payment.succeeded",
		Status:          models.WebhookStatusProcessed,
		Payload:         `{"id":"evt_done","type":"payment.succeeded"}`,
		SignatureValid:  true,
	}
	_, stored, err := fx.events.CreateIfNotExists(row)
	require.NoError(t, err)

	require.NoError(t, fx.service.Apply(context.Background(), stored.ID))

	got, err := fx.events.GetByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessed, got.Status)
}

func TestRetry(t *testing.T) {
	t.Run("resets a failed event", func(t *testing.T) {
		fx := newWebhookFixture(t)
		next := time.Now().Add(time.Minute)
		row := &models.WebhookEvent{
			ProviderEventID: "evt_failed",
			EventType:       "payment.succeeded",
			Status:          models.WebhookStatusFailed,
			Payload:         `{"id":"evt_failed","type":"payout.created"}`,
			SignatureValid:  true,
			RetryCount:      5,
			MaxRetries:      5,
			NextRetryAt:     &next,
			LastError:       "boom",
		}
		_, stored, err := fx.events.CreateIfNotExists(row)
		require.NoError(t, err)

		require.NoError(t, fx.service.Retry(context.Background(), stored.ID))

		got, err := fx.events.GetByID(stored.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WebhookStatusPending, got.Status)
		assert.Zero(t, got.RetryCount)
		assert.Nil(t, got.NextRetryAt)
		assert.Empty(t, got.LastError)
		assert.Equal(t, []uint{stored.ID}, fx.jobs.applied)
	})

	t.Run("refuses unverified events", func(t *testing.T) {
		fx := newWebhookFixture(t)
		row := &models.WebhookEvent{
			ProviderEventID: "rejected-abc",
			EventType:       "unverified",
			Status:          models.WebhookStatusSkipped,
			SignatureValid:  false,
		}
		_, stored, err := fx.events.CreateIfNotExists(row)
		require.NoError(t, err)

		err = fx.service.Retry(context.Background(), stored.ID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ledger.ErrValidation))
		assert.Empty(t, fx.jobs.applied)
	})
}

func TestEnqueueDueRetries(t *testing.T) {
	fx := newWebhookFixture(t)
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &models.WebhookEvent{ProviderEventID: "evt_due", Status: models.WebhookStatusPending, NextRetryAt: &past, UpdatedAt: now}
	notYet := &models.WebhookEvent{ProviderEventID: "evt_later", Status: models.WebhookStatusPending, NextRetryAt: &future, UpdatedAt: now}
	done := &models.WebhookEvent{ProviderEventID: "evt_done", Status: models.WebhookStatusProcessed, UpdatedAt: now}
	for _, row := range []*models.WebhookEvent{due, notYet, done} {
		_, _, err := fx.events.CreateIfNotExists(row)
		require.NoError(t, err)
	}

	enqueued, err := fx.service.EnqueueDueRetries(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
	assert.Equal(t, []uint{due.ID}, fx.jobs.applied)
}

func TestEnqueueDueRetriesRescuesStrandedEvents(t *testing.T) {
	fx := newWebhookFixture(t)
	now := time.Now()
	stale := now.Add(-10 * time.Minute)

	// Pending without a schedule: the enqueue after ingest was lost.
	stranded := &models.WebhookEvent{ProviderEventID: "evt_stranded", Status: models.WebhookStatusPending, UpdatedAt: stale}
	// Processing and stale: the worker died mid-apply.
	abandoned := &models.WebhookEvent{ProviderEventID: "evt_abandoned", Status: models.WebhookStatusProcessing, UpdatedAt: stale}
	// Fresh pending rows are left for the normal enqueue path.
	fresh := &models.WebhookEvent{ProviderEventID: "evt_fresh", Status: models.WebhookStatusPending, UpdatedAt: now}
	for _, row := range []*models.WebhookEvent{stranded, abandoned, fresh} {
		_, _, err := fx.events.CreateIfNotExists(row)
		require.NoError(t, err)
	}

	enqueued, err := fx.service.EnqueueDueRetries(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, enqueued)
	assert.ElementsMatch(t, []uint{stranded.ID, abandoned.ID}, fx.jobs.applied)
}
