package api

import (
	"errors"

	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// getRequestID extracts the request ID from the Fiber context.
// It first checks the requestid middleware local, then falls back to the X-Request-ID header.
func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("requestid"); requestID != nil {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}
	return c.Get("X-Request-ID", "")
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SendError sends a standardized error response with request ID
func SendError(c *fiber.Ctx, statusCode int, errMsg string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithCode sends a standardized error response with error code and request ID
func SendErrorWithCode(c *fiber.Ctx, statusCode int, errMsg, code, message string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		Message:   message,
		RequestID: getRequestID(c),
	})
}

// handleBundleError maps bundle failures to an HTTP response. Build
// failures carry the failing path in the message.
func handleBundleError(c *fiber.Ctx, err error, operation string) error {
	switch {
	case errors.Is(err, bundle.ErrUnknownBundleName):
		return SendErrorWithCode(c, fiber.StatusNotFound, "Bundle not found", "UNKNOWN_BUNDLE", "")
	case errors.Is(err, bundle.ErrNotCached):
		return SendErrorWithCode(c, fiber.StatusNotFound, "Bundle not cached", "NOT_CACHED", "")
	case errors.Is(err, bundle.ErrSourceNotFound):
		return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, "Bundle source not found", "SOURCE_NOT_FOUND", err.Error())
	case errors.Is(err, bundle.ErrUnknownTransform):
		return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, "Unknown transform", "UNKNOWN_TRANSFORM", err.Error())
	case errors.Is(err, bundle.ErrTransform):
		return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, "Bundle transform failed", "TRANSFORM_FAILED", err.Error())
	}

	log.Error().
		Err(err).
		Str("operation", operation).
		Str("request_id", getRequestID(c)).
		Msg("Bundle operation failed")
	return SendError(c, fiber.StatusInternalServerError, "Internal server error")
}
