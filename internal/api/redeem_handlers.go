package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/cardify-mcp/internal/api/middleware"
)

type redeemRequest struct {
	CollectionAddress string `json:"collectionAddress"`
	Code              string `json:"code"`
	Redeemer          string `json:"redeemer"`
}

// handleRedeemCode marks a code as used. Authentication is optional; a signed-in
// caller is recorded as the redeemer unless one is given explicitly.
func (s *APIServer) handleRedeemCode(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, badRequest("invalid request body"))
	}

	redeemer := req.Redeemer
	if user := middleware.GetAuthenticatedUser(c); user != nil && redeemer == "" {
		redeemer = user.Sub
	}

	result, err := s.deps.Ledger.Redeem(c.UserContext(), req.CollectionAddress, req.Code, redeemer)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"collectionAddress": result.CollectionAddress,
		"code":              result.Code,
		"redeemedAt":        result.RedeemedAt,
	})
}
