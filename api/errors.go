package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/frames/pkg/contextstore"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Kind      contextstore.ErrorKind `json:"kind,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind contextstore.ErrorKind) int {
	switch kind {
	case contextstore.KindNotFound:
		return fiber.StatusNotFound
	case contextstore.KindPolicyViolation:
		return fiber.StatusUnprocessableEntity
	case contextstore.KindConflict, contextstore.KindCancelled:
		return fiber.StatusConflict
	case contextstore.KindTransient:
		return fiber.StatusServiceUnavailable
	case contextstore.KindTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(err error) ErrorResponse {
	kind := contextstore.KindOf(err)
	return ErrorResponse{Error: err.Error(), Kind: kind, Retryable: kind.Retryable()}
}

// fail writes err as a classified error response.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	resp := errorResponse(err)
	status := statusFor(resp.Kind)
	switch {
	case resp.Kind == contextstore.KindIntegrityViolation:
		s.logger.Error("integrity violation", "path", c.Path(), "error", err)
	case status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			logger.Error("unhandled api error", "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
	}
}
