package httpapi

import (
	"errors"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/gofiber/fiber/v2"
)

const msgInternal = "Internal server error"

type errorResponse struct {
	Detail string `json:"detail"`
}

// statusOf maps a domain error kind to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, common.ErrorBadRequest), errors.Is(err, common.ErrorConflict):
		return fiber.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrorGone):
		return fiber.StatusGone
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders every error as {"detail": ...}. Errors without a
// client-facing message are logged and reported as 500.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Detail: fe.Message})
	}

	msg, ok := common.MessageOf(err)
	code := statusOf(err)
	if !ok || code == fiber.StatusInternalServerError {
		s.log.Error(c.UserContext(), "request failed",
			"method", c.Method(), "path", c.Path(), "request_id", c.GetRespHeader(fiber.HeaderXRequestID), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Detail: msgInternal})
	}

	if code == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	}
	return c.Status(code).JSON(errorResponse{Detail: msg})
}

// invalid wraps a payload validation failure.
func invalid(err error) error {
	return common.BadRequest(err.Error())
}
