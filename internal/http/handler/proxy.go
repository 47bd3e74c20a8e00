package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"webdsl/internal/broker"
	"webdsl/internal/connector"
	"webdsl/internal/restproxy"
	"webdsl/internal/service"
	"webdsl/pkg/wire"
)

// RestCall godoc
// @Summary  Proxy a REST call
// @Tags     proxy
// @Accept   json
// @Produce  json
// @Param    request body wire.RestCallRequest true "target and payload"
// @Success  200 {object} map[string]interface{}
// @Failure  400,403,502 {object} errorPayload
// @Router   /restcall [post]
func RestCall(svc service.ProxyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req wire.RestCallRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}

		resp, err := svc.RestCall(c.UserContext(), req)
		switch {
		case err == nil:
		case errors.Is(err, restproxy.ErrInvalidTarget):
			return writeError(c, fiber.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, restproxy.ErrHostNotAllowed):
			return writeError(c, fiber.StatusForbidden, "HOST_NOT_ALLOWED", "host is not in the allowlist")
		case errors.Is(err, restproxy.ErrUpstreamInvalidResponse):
			return writeError(c, fiber.StatusBadGateway, "UPSTREAM_INVALID_RESPONSE", "upstream returned an invalid response")
		case errors.Is(err, restproxy.ErrUpstreamUnavailable):
			return writeError(c, fiber.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "upstream unavailable")
		default:
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(resp.StatusCode).Send(resp.Body)
	}
}

// QueryDB godoc
// @Summary  Read from a configured database connection
// @Tags     proxy
// @Accept   json
// @Produce  json
// @Param    request body wire.DBQueryRequest true "query"
// @Success  200 {array} map[string]interface{}
// @Failure  400,404,500 {object} errorPayload
// @Router   /queryDB [post]
func QueryDB(svc service.ProxyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req wire.DBQueryRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		if req.ConnectionName == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_REQUEST", "connection_name is required")
		}

		rows, err := svc.QueryDB(c.UserContext(), req)
		if err != nil {
			return writeDBError(c, err)
		}
		return c.JSON(rows)
	}
}

// ModifyDB godoc
// @Summary  Write to a configured database connection
// @Tags     proxy
// @Accept   json
// @Produce  json
// @Param    request body wire.DBModifyRequest true "modification"
// @Success  200 {object} wire.ModifyResult
// @Failure  400,404,500 {object} errorPayload
// @Router   /modifyDB [post]
func ModifyDB(svc service.ProxyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req wire.DBModifyRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		if req.ConnectionName == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_REQUEST", "connection_name is required")
		}

		res, err := svc.ModifyDB(c.UserContext(), req)
		if err != nil {
			return writeDBError(c, err)
		}
		return c.JSON(res)
	}
}

func writeDBError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, connector.ErrUnknownConnection):
		return writeError(c, fiber.StatusNotFound, "UNKNOWN_CONNECTION", err.Error())
	case errors.Is(err, connector.ErrInvalidRequest):
		return writeError(c, fiber.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		return writeError(c, fiber.StatusInternalServerError, "DB_ERROR", "database operation failed")
	}
}

// Publish godoc
// @Summary  Publish a message on a broker topic
// @Tags     proxy
// @Accept   json
// @Produce  json
// @Param    request body wire.PublishRequest true "message"
// @Success  200 {object} wire.Status
// @Failure  400,404,502 {object} wire.Status
// @Router   /publish [post]
func Publish(svc service.ProxyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req wire.PublishRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(wire.Status{Status: wire.StatusError, Message: "invalid JSON body"})
		}

		st, err := svc.Publish(c.UserContext(), req)
		switch {
		case err == nil:
			return c.JSON(st)
		case errors.Is(err, broker.ErrUnknownBroker):
			return c.Status(fiber.StatusNotFound).JSON(st)
		case errors.Is(err, broker.ErrEmptyMessage):
			return c.Status(fiber.StatusBadRequest).JSON(st)
		default:
			return c.Status(fiber.StatusBadGateway).JSON(st)
		}
	}
}
