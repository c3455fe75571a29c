// Package response writes the JSON envelopes every endpoint answers with:
// {status, message, data, metadata} on success and
// {status, error: {message, statusCode, details}} on failure.
package response

import (
	"github.com/gofiber/fiber/v2"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

func success(c *fiber.Ctx, code int, message string, data, metadata interface{}) error {
	if metadata == nil {
		metadata = fiber.Map{}
	}
	return c.Status(code).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Success sends 200 with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return success(c, fiber.StatusOK, message, data, metadata)
}

// SuccessCreated sends 201 with the standard success format.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return success(c, fiber.StatusCreated, message, data, metadata)
}

// List sends 200 with a slice as data and its length as metadata.count. A nil
// slice is sent as [].
func List[T any](c *fiber.Ctx, message string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return success(c, fiber.StatusOK, message, items, fiber.Map{"count": len(items)})
}

// Error sends statusCode with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = fiber.Map{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error: ErrorDetail{
			Message:    message,
			StatusCode: statusCode,
			Details:    details,
		},
	})
}

// Unauthorized sends 401. Auth middleware uses it so every auth failure has
// the same shape.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusUnauthorized, nil)
}
