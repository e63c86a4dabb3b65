package audit

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
)

// Entry is one audit observation: a ledger transition, a fraud decision, a
// webhook outcome, or a denied access attempt.
type Entry struct {
	Category    string
	Action      string
	Actor       string
	SubjectType string
	SubjectID   string
	Detail      map[string]interface{}
}

// Logger is the append-only, best-effort audit sink. Log never blocks the
// caller and never returns an error; persistence failures are logged locally
// and swallowed.
type Logger struct {
	repo   repository.AuditRepository
	ch     chan models.AuditEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	running bool
}

// NewLogger creates an audit logger with the given channel buffer size.
func NewLogger(repo repository.AuditRepository, buffer int) *Logger {
	if buffer <= 0 {
		buffer = 256
	}
	return &Logger{
		repo:   repo,
		ch:     make(chan models.AuditEvent, buffer),
		stopCh: make(chan struct{}),
	}
}

// Start launches the background writer.
func (l *Logger) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.wg.Add(1)
	go l.writer()
	log.Info("[Audit] Writer started")
}

// Stop drains the buffer and stops the writer.
func (l *Logger) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	close(l.stopCh)
	l.wg.Wait()
	log.Info("[Audit] Writer stopped")
}

// Log records an entry. It is fire-and-forget: when the buffer is full the
// entry is dropped with a local warning rather than blocking the caller.
func (l *Logger) Log(entry Entry) {
	event := models.AuditEvent{
		EventID:     uuid.New().String(),
		Category:    entry.Category,
		Action:      entry.Action,
		Actor:       entry.Actor,
		SubjectType: entry.SubjectType,
		SubjectID:   entry.SubjectID,
	}
	if len(entry.Detail) > 0 {
		if data, err := json.Marshal(entry.Detail); err == nil {
			event.DetailJSON = string(data)
		} else {
			log.Errorf("[Audit] Failed to encode detail for %s/%s: %v", entry.Category, entry.Action, err)
		}
	}

	select {
	case l.ch <- event:
	default:
		log.Warnf("[Audit] Buffer full, dropping entry %s/%s subject=%s", entry.Category, entry.Action, entry.SubjectID)
	}
}

func (l *Logger) writer() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.ch:
			l.persist(event)
		case <-l.stopCh:
			// Drain whatever is buffered before exiting.
			for {
				select {
				case event := <-l.ch:
					l.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) persist(event models.AuditEvent) {
	if err := l.repo.Create(&event); err != nil {
		log.Errorf("[Audit] Failed to persist event %s (%s/%s): %v", event.EventID, event.Category, event.Action, err)
	}
}
