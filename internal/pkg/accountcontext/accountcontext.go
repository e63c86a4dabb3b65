package accountcontext

import "github.com/gofiber/fiber/v2"

const localsKey = "ACCOUNT_CONTEXT"

// AccountContext represents the authenticated caller for a request
type AccountContext struct {
	AccountID     string `json:"account_id"`
	CredentialID  uint   `json:"credential_id"`
	Authenticated bool   `json:"authenticated"`
	IsAdmin       bool   `json:"is_admin"`
}

// Set stores the account context on the request
func Set(c *fiber.Ctx, ctx AccountContext) {
	c.Locals(localsKey, ctx)
}

// Get retrieves the account context from fiber context
// Returns an unauthenticated context if none is set
func Get(c *fiber.Ctx) AccountContext {
	if ctx := c.Locals(localsKey); ctx != nil {
		return ctx.(AccountContext)
	}
	return AccountContext{Authenticated: false}
}

// IsAuthenticated checks if the current request carries a valid credential
func IsAuthenticated(c *fiber.Ctx) bool {
	return Get(c).Authenticated
}

// IsAdmin checks if the current credential has the admin role
func IsAdmin(c *fiber.Ctx) bool {
	return Get(c).IsAdmin
}

// GetAccountID returns the caller's account id, or empty string
func GetAccountID(c *fiber.Ctx) string {
	return Get(c).AccountID
}
