package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"webdsl/internal/http/middleware"
)

// errorPayload is the body of every non-2xx response except /publish.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func requestIDFromCtx(c *fiber.Ctx) string {
	id, _ := c.Locals(middleware.RequestIDLocalKey).(string)
	return id
}

// writeError writes the error envelope. code is machine readable
// (INVALID_REQUEST, NOT_FOUND, ...); message must not leak internals.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: requestIDFromCtx(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// statusCodes maps statuses raised as *fiber.Error by fiber or middleware.
var statusCodes = map[int]errorEnvelope{
	fiber.StatusBadRequest:            {"BAD_REQUEST", "bad request"},
	fiber.StatusUnauthorized:          {"UNAUTHORIZED", "authentication required"},
	fiber.StatusForbidden:             {"FORBIDDEN", "forbidden"},
	fiber.StatusNotFound:              {"NOT_FOUND", "resource not found"},
	fiber.StatusMethodNotAllowed:      {"METHOD_NOT_ALLOWED", "method not allowed"},
	fiber.StatusRequestEntityTooLarge: {"BODY_TOO_LARGE", "request body too large"},
	fiber.StatusUnprocessableEntity:   {"INVALID_BODY", "unsupported request body"},
	fiber.StatusUpgradeRequired:       {"UPGRADE_REQUIRED", "websocket upgrade required"},
}

// ErrorHandler returns the global Fiber error handler. Errors that are not a
// *fiber.Error become 500 INTERNAL_ERROR.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		env, ok := statusCodes[status]
		if !ok {
			env = errorEnvelope{"INTERNAL_ERROR", "internal server error"}
		}
		return writeError(c, status, env.Code, env.Message)
	}
}
