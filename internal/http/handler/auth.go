package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"webdsl/internal/auth"
	"webdsl/internal/http/middleware"
	"webdsl/internal/service"
	"webdsl/pkg/wire"
)

// SessionCookie describes the cookie carrying the session id.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (sc SessionCookie) name() string {
	if sc.Name == "" {
		return "webdsl_session"
	}
	return sc.Name
}

// Login godoc
// @Summary  Open a session
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    request body wire.LoginRequest true "credentials"
// @Success  200 {object} wire.Me
// @Failure  400,401,404 {object} errorPayload
// @Router   /auth/login [post]
func Login(svc service.AuthService, cookie SessionCookie) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !svc.Enabled() {
			return writeError(c, fiber.StatusNotFound, "AUTH_DISABLED", "no users are configured")
		}
		var req wire.LoginRequest
		if err := c.BodyParser(&req); err != nil || req.Username == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "username and password are required")
		}

		s, err := svc.Login(c.UserContext(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return writeError(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Cookie(&fiber.Cookie{
			Name:     cookie.name(),
			Value:    s.ID,
			Path:     "/",
			Expires:  s.ExpiresAt,
			HTTPOnly: true,
			Secure:   cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.JSON(meOf(s))
	}
}

// Logout godoc
// @Summary  Close the current session
// @Tags     auth
// @Produce  json
// @Success  200 {object} wire.Status
// @Router   /auth/logout [post]
func Logout(svc service.AuthService, cookie SessionCookie) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := c.Cookies(cookie.name()); id != "" {
			if err := svc.Logout(c.UserContext(), id); err != nil {
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}
		c.ClearCookie(cookie.name())
		return c.JSON(wire.Status{Status: wire.StatusSuccess, Message: "Logged out"})
	}
}

// Me godoc
// @Summary  Current user and WebSocket token
// @Tags     auth
// @Produce  json
// @Success  200 {object} wire.Me
// @Failure  401 {object} errorPayload
// @Router   /me [get]
func Me() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, ok := middleware.SessionFrom(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "login required")
		}
		return c.JSON(meOf(s))
	}
}

func meOf(s auth.Session) wire.Me {
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	return wire.Me{Username: s.Username, Roles: roles, WSToken: s.WSToken}
}
