package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/cardify-mcp/internal/api/middleware"
)

func (s *APIServer) handleGetCredits(c *fiber.Ctx) error {
	user := middleware.GetAuthenticatedUser(c)

	balance, err := s.deps.Credits.GetBalance(c.UserContext(), user.Sub)
	if err != nil {
		return writeError(c, err)
	}
	transactions, err := s.deps.Credits.ListTransactions(c.UserContext(), user.Sub)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"balance":      balance,
		"transactions": transactions,
	})
}
