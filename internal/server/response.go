package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deptrack/deptrack/pkg/models"
)

// SendSuccess sends a success response with the given status code and
// data wrapped in the standard envelope.
func SendSuccess(c *fiber.Ctx, statusCode int, data any) error {
	return c.Status(statusCode).JSON(models.APIResponse{
		Status: "success",
		Data:   data,
	})
}

// SendErrorWithType sends an error response with a specific error type so
// the frontend can distinguish validation problems from server faults.
func SendErrorWithType(c *fiber.Ctx, statusCode int, message string, errorType models.ErrorType) error {
	return c.Status(statusCode).JSON(models.APIResponse{
		Status:    "error",
		Message:   message,
		ErrorType: errorType,
	})
}
