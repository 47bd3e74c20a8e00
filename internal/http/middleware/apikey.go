package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKeyHeader carries the platform API key.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key does not match key with 401. Requests
// for which skip returns true pass through. An empty key disables the check.
func APIKey(key string, skip func(*fiber.Ctx) bool) fiber.Handler {
	want := []byte(key)
	return func(c *fiber.Ctx) error {
		if key == "" || (skip != nil && skip(c)) {
			return c.Next()
		}
		got := []byte(c.Get(APIKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing API key")
		}
		return c.Next()
	}
}
