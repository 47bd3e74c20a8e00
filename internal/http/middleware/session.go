package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"webdsl/internal/auth"
)

// SessionLocalKey is the Fiber locals key holding the current auth.Session.
const SessionLocalKey = "session"

// SessionSource resolves session cookies.
type SessionSource interface {
	Session(ctx context.Context, id string) (auth.Session, error)
}

// Session loads the session named by cookie into locals. With required set, a
// request without a valid session gets 401.
func Session(src SessionSource, cookie string, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := c.Cookies(cookie); id != "" {
			if s, err := src.Session(c.UserContext(), id); err == nil {
				c.Locals(SessionLocalKey, s)
				return c.Next()
			}
		}
		if required {
			return fiber.NewError(fiber.StatusUnauthorized, "login required")
		}
		return c.Next()
	}
}

// SessionFrom returns the session stored by Session.
func SessionFrom(c *fiber.Ctx) (auth.Session, bool) {
	s, ok := c.Locals(SessionLocalKey).(auth.Session)
	return s, ok
}
