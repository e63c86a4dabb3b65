package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/accountcontext"
	"github.com/payflowhq/payflow/internal/pkg/audit"
)

var auditor *audit.Logger

// Setup hands the middleware package its audit sink so boundary denials
// land on the audit trail. Before Setup runs, denials are served but not
// recorded.
func Setup(l *audit.Logger) {
	auditor = l
}

// logDenied records a denied request (401, 403, 429) under the access
// category. Subject is the authenticated account when one exists, the
// client IP otherwise.
func logDenied(c *fiber.Ctx, action, reason string) {
	if auditor == nil {
		return
	}
	subjectType := "account"
	subjectID := accountcontext.GetAccountID(c)
	if subjectID == "" {
		subjectType = "ip"
		subjectID = c.IP()
	}
	auditor.Log(audit.Entry{
		Category:    models.AuditCategoryAccess,
		Action:      action,
		Actor:       "api",
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Detail: map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"reason": reason,
		},
	})
}
