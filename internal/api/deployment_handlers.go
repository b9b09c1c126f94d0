package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/cardify-mcp/internal/api/middleware"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
)

// handleGetDeployment returns an attempt's progress to the user who started it
func (s *APIServer) handleGetDeployment(c *fiber.Ctx) error {
	user := middleware.GetAuthenticatedUser(c)

	attempt, err := s.deps.Orchestrator.GetAttempt(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if attempt.UserID != user.Sub {
		return writeError(c, apperrors.NotFound(apperrors.CodeAttemptNotFound, "deployment attempt not found"))
	}

	response := fiber.Map{
		"success": true,
		"attempt": attempt,
		"status":  attempt.Status(),
	}
	if attempt.Step.Reached(models.StepContractDeployed) {
		response["codes"] = []string(attempt.Codes)
	}
	return c.JSON(response)
}
