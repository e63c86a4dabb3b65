package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflowhq/payflow/app/models"
)

type recordingAuditRepo struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *recordingAuditRepo) Create(event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *recordingAuditRepo) ListBySubject(st, si string, limit int) ([]models.AuditEvent, error) {
	return nil, nil
}

func (r *recordingAuditRepo) ListUnarchivedBefore(cutoff time.Time, limit int) ([]models.AuditEvent, error) {
	return nil, nil
}

func (r *recordingAuditRepo) MarkArchived(ids []uint, archivedAt time.Time) error { return nil }

func (r *recordingAuditRepo) all() []models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestLoggerPersistsEntries(t *testing.T) {
	repo := &recordingAuditRepo{}
	logger := NewLogger(repo, 16)
	logger.Start()

	logger.Log(Entry{
		Category:    models.AuditCategoryTransaction,
		Action:      "created",
		Actor:       "api",
		SubjectType: "transaction",
		SubjectID:   "tx-1",
		Detail:      map[string]interface{}{"amount": "50.00"},
	})
	logger.Log(Entry{
		Category:    models.AuditCategoryWebhook,
		Action:      "event_accepted",
		Actor:       "webhook",
		SubjectType: "webhook_event",
		SubjectID:   "evt-1",
	})

	// Stop drains the buffer before returning.
	logger.Stop()

	events := repo.all()
	require.Len(t, events, 2)
	assert.Equal(t, "created", events[0].Action)
	assert.NotEmpty(t, events[0].EventID)
	assert.Contains(t, events[0].DetailJSON, "50.00")
	assert.Equal(t, "event_accepted", events[1].Action)
	assert.Empty(t, events[1].DetailJSON)
}

func TestLoggerDropsWhenBufferFull(t *testing.T) {
	repo := &recordingAuditRepo{}
	logger := NewLogger(repo, 2)
	// Writer not started: the buffer fills and the overflow is dropped
	// instead of blocking.
	for i := 0; i < 10; i++ {
		logger.Log(Entry{Category: models.AuditCategoryTransaction, Action: "created"})
	}

	logger.Start()
	logger.Stop()

	assert.Len(t, repo.all(), 2)
}

func TestStartStopIdempotent(t *testing.T) {
	logger := NewLogger(&recordingAuditRepo{}, 4)
	logger.Start()
	logger.Start()
	logger.Stop()
	logger.Stop()
}
