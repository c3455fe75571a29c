package response

import (
	"errors"

	"corkboard-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps the domain error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTemplate), errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrStaleWrite),
		errors.Is(err, domain.ErrClosed):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrTransient):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// FromError sends err in the standard error format. Unclassified errors are
// reported as "Internal Server Error" without their text. A failed cascade
// step is named in details.
func FromError(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		msg = "Internal Server Error"
	}
	var details interface{}
	var step *domain.DeleteStepError
	if errors.As(err, &step) {
		details = fiber.Map{"step": step.Step}
	}
	return Error(c, msg, code, details)
}
