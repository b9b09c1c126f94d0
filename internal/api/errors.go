package api

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

// writeError renders err as the JSON error body shared by every route
func writeError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)

	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Error()
	}
	if status >= fiber.StatusInternalServerError && kind == apperrors.KindInternal {
		log.Printf("[api] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "Internal server error"
	}

	body := fiber.Map{
		"success": false,
		"error":   message,
		"kind":    kind,
	}
	if code := apperrors.CodeOf(err); code != "" {
		body["code"] = code
	}

	var deployErr *services.DeploymentError
	if errors.As(err, &deployErr) {
		body["attemptId"] = deployErr.AttemptID
		body["failedStep"] = deployErr.FailedStep
		body["retryable"] = deployErr.Retryable
		if deployErr.CollectionAddress != "" {
			body["collectionAddress"] = deployErr.CollectionAddress
		}
	}

	return c.Status(status).JSON(body)
}

// errorHandler handles errors returned by handlers and by fiber itself
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		kind := apperrors.KindValidation
		if fiberErr.Code == fiber.StatusNotFound {
			kind = apperrors.KindNotFound
		} else if fiberErr.Code >= fiber.StatusInternalServerError {
			kind = apperrors.KindInternal
		}
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"success": false,
			"error":   fiberErr.Message,
			"kind":    kind,
		})
	}
	return writeError(c, err)
}

func badRequest(message string) error {
	return apperrors.Validation(apperrors.CodeInvalidRequest, message)
}
