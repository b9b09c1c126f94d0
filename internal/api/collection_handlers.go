package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/cardify-mcp/internal/api/middleware"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

type activateRequest struct {
	CID    *string `json:"cid"`
	Active *bool   `json:"active"`
}

// handleDeployCollection runs the full deployment and returns the generated codes
func (s *APIServer) handleDeployCollection(c *fiber.Ctx) error {
	user := middleware.GetAuthenticatedUser(c)

	var req models.DeploymentRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, badRequest("invalid request body"))
	}

	result, err := s.deps.Orchestrator.DeployCollectionWithCodes(c.UserContext(), user.Sub, c.Get("Idempotency-Key"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// handleListCollections lists collections by owner wallet, or the caller's own
// collections when no owner is given
func (s *APIServer) handleListCollections(c *fiber.Ctx) error {
	owner := strings.TrimSpace(c.Query("owner"))

	var (
		collections []models.Collection
		err         error
	)
	switch {
	case owner != "":
		collections, err = s.deps.Collections.ListCollectionsByOwner(c.UserContext(), owner)
	case middleware.GetAuthenticatedUser(c) != nil:
		collections, err = s.deps.Collections.ListCollectionsByUser(c.UserContext(), middleware.GetAuthenticatedUser(c).Sub)
	default:
		return writeError(c, badRequest("owner query parameter is required"))
	}
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"collections": collections,
	})
}

func (s *APIServer) handleGetCollection(c *fiber.Ctx) error {
	collection, err := s.deps.Collections.GetCollection(c.UserContext(), c.Params("address"))
	if err != nil {
		return writeError(c, err)
	}

	counts, err := s.deps.Ledger.CountCodes(c.UserContext(), collection.Address)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"collection": collection,
		"codes": fiber.Map{
			"total":     counts.Total,
			"used":      counts.Used,
			"remaining": counts.Total - counts.Used,
		},
	})
}

// ownedCollection loads the collection at :address if the caller created it.
// Other callers get the same not found error as a missing collection.
func (s *APIServer) ownedCollection(c *fiber.Ctx) (*models.Collection, error) {
	user := middleware.GetAuthenticatedUser(c)
	collection, err := s.deps.Collections.GetCollection(c.UserContext(), c.Params("address"))
	if err != nil {
		return nil, err
	}
	if user == nil || collection.UserID != user.Sub {
		return nil, apperrors.NotFound(apperrors.CodeCollectionNotFound, "collection not found")
	}
	return collection, nil
}

// handleListCodes returns the collection's codes to its owner
func (s *APIServer) handleListCodes(c *fiber.Ctx) error {
	collection, err := s.ownedCollection(c)
	if err != nil {
		return writeError(c, err)
	}

	var used *bool
	if raw := c.Query("used"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return writeError(c, badRequest("used must be true or false"))
		}
		used = &value
	}

	rows, err := s.deps.Ledger.ListCodes(c.UserContext(), collection.Address, used)
	if err != nil {
		return writeError(c, err)
	}

	summaries := make([]models.CodeSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.Summary())
	}
	return c.JSON(summaries)
}

func (s *APIServer) handleActivateCollection(c *fiber.Ctx) error {
	collection, err := s.ownedCollection(c)
	if err != nil {
		return writeError(c, err)
	}

	var req activateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, badRequest("invalid request body"))
		}
	}

	updated, err := s.deps.Collections.UpdateActivation(c.UserContext(), collection.Address, services.ActivationUpdate{
		Active: req.Active,
		CID:    req.CID,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"collection": updated,
	})
}
