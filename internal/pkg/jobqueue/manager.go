package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/payflowhq/payflow/internal/pkg/audit"
	"github.com/payflowhq/payflow/internal/pkg/env"
	"github.com/payflowhq/payflow/internal/pkg/idempotency"
	"github.com/payflowhq/payflow/internal/pkg/webhook"
)

// Manager manages the global job queue and background maintenance tasks
type Manager struct {
	queue              *Queue
	webhookRetryTicker *time.Ticker
	cleanupTicker      *time.Ticker
	idempotencyTicker  *time.Ticker
	archiveTicker      *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool

	webhooks    *webhook.Service
	idempotency *idempotency.Service
	archiver    *audit.Archiver
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := env.GetEnvInt("JOBQUEUE_WORKER_COUNT", 5)

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Bind attaches the services the maintenance tickers drive. The archiver may
// be nil when archiving is disabled.
func (m *Manager) Bind(webhooks *webhook.Service, idem *idempotency.Service, archiver *audit.Archiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = webhooks
	m.idempotency = idem
	m.archiver = archiver
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	retryInterval := env.GetEnvDuration("WEBHOOK_RETRY_INTERVAL", 1*time.Minute)
	cleanupInterval := env.GetEnvDuration("INTENT_CLEANUP_INTERVAL", 15*time.Minute)
	gcInterval := env.GetEnvDuration("IDEMPOTENCY_GC_INTERVAL", 1*time.Hour)
	archiveInterval := env.GetEnvDuration("AUDIT_ARCHIVE_INTERVAL", 6*time.Hour)

	m.webhookRetryTicker = time.NewTicker(retryInterval)
	m.wg.Add(1)
	go m.webhookRetryWorker()

	m.cleanupTicker = time.NewTicker(cleanupInterval)
	m.wg.Add(1)
	go m.cleanupWorker()

	m.idempotencyTicker = time.NewTicker(gcInterval)
	m.wg.Add(1)
	go m.idempotencyGCWorker()

	if m.archiver != nil {
		m.archiveTicker = time.NewTicker(archiveInterval)
		m.wg.Add(1)
		go m.archiveWorker()
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.webhookRetryTicker != nil {
		m.webhookRetryTicker.Stop()
	}
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	if m.idempotencyTicker != nil {
		m.idempotencyTicker.Stop()
	}
	if m.archiveTicker != nil {
		m.archiveTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// webhookRetryWorker re-enqueues webhook events whose backoff has elapsed
func (m *Manager) webhookRetryWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Webhook retry worker stopping")
			return
		case <-m.webhookRetryTicker.C:
			if m.webhooks == nil {
				continue
			}
			n, err := m.webhooks.EnqueueDueRetries(context.Background(), 100)
			if err != nil {
				log.Errorf("[JobQueue Manager] Webhook retry sweep error: %v", err)
			} else if n > 0 {
				log.Infof("[JobQueue Manager] Re-enqueued %d webhook events", n)
			}
		}
	}
}

// cleanupWorker periodically enqueues an expired-intent sweep
func (m *Manager) cleanupWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Cleanup worker stopping")
			return
		case <-m.cleanupTicker.C:
			if err := m.queue.EnqueueCleanupIntents(100); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue intent cleanup: %v", err)
			}
		}
	}
}

// idempotencyGCWorker deletes idempotency records past their retention window
func (m *Manager) idempotencyGCWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Idempotency GC worker stopping")
			return
		case <-m.idempotencyTicker.C:
			if m.idempotency == nil {
				continue
			}
			n, err := m.idempotency.GC(time.Now())
			if err != nil {
				log.Errorf("[JobQueue Manager] Idempotency GC error: %v", err)
			} else if n > 0 {
				log.Infof("[JobQueue Manager] Removed %d expired idempotency records", n)
			}
		}
	}
}

// archiveWorker ships old audit rows to object storage
func (m *Manager) archiveWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Audit archive worker stopping")
			return
		case <-m.archiveTicker.C:
			n, err := m.archiver.ArchiveOnce(context.Background())
			if err != nil {
				log.Errorf("[JobQueue Manager] Audit archive error: %v", err)
			} else if n > 0 {
				log.Infof("[JobQueue Manager] Archived %d audit events", n)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
