package middleware

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/accountcontext"
	"github.com/payflowhq/payflow/internal/pkg/audit"
)

type recordingAuditRepo struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (r *recordingAuditRepo) Create(event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditRepo) ListBySubject(st, si string, limit int) ([]models.AuditEvent, error) {
	return nil, nil
}

func (r *recordingAuditRepo) ListUnarchivedBefore(cutoff time.Time, limit int) ([]models.AuditEvent, error) {
	return nil, nil
}

func (r *recordingAuditRepo) MarkArchived(ids []uint, archivedAt time.Time) error { return nil }

func setupRecordingAuditor(t *testing.T) (*recordingAuditRepo, *audit.Logger) {
	t.Helper()
	repo := &recordingAuditRepo{}
	logger := audit.NewLogger(repo, 16)
	logger.Start()
	Setup(logger)
	t.Cleanup(func() {
		Setup(nil)
		logger.Stop()
	})
	return repo, logger
}

func TestMissingAPIKeyDenialIsAudited(t *testing.T) {
	repo, logger := setupRecordingAuditor(t)

	app := fiber.New()
	app.Get("/payments", APIKeyAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/payments", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	logger.Stop()
	require.Len(t, repo.events, 1)
	event := repo.events[0]
	assert.Equal(t, models.AuditCategoryAccess, event.Category)
	assert.Equal(t, "auth_denied", event.Action)
	assert.Equal(t, "ip", event.SubjectType)
	assert.Contains(t, event.DetailJSON, "missing api key")
}

func TestAdminDenialIsAudited(t *testing.T) {
	repo, logger := setupRecordingAuditor(t)

	app := fiber.New()
	app.Get("/admin", func(c *fiber.Ctx) error {
		accountcontext.Set(c, accountcontext.AccountContext{
			AccountID:     "acct_100",
			Authenticated: true,
			IsAdmin:       false,
		})
		return c.Next()
	}, AdminOnlyMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/admin", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	logger.Stop()
	require.Len(t, repo.events, 1)
	event := repo.events[0]
	assert.Equal(t, models.AuditCategoryAccess, event.Category)
	assert.Equal(t, "admin_denied", event.Action)
	assert.Equal(t, "account", event.SubjectType)
	assert.Equal(t, "acct_100", event.SubjectID)
}

func TestLogDeniedWithoutSetupIsSafe(t *testing.T) {
	Setup(nil)

	app := fiber.New()
	app.Get("/payments", APIKeyAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/payments", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
