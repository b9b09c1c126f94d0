package api

import (
	"github.com/gofiber/fiber/v2"
)

func (s *APIServer) handleOAuthProtectedResource(c *fiber.Ctx) error {
	if s.deps.AuthServerURL == "" {
		return fiber.ErrNotFound
	}

	resource := s.deps.PublicURL
	if resource == "" {
		resource = c.BaseURL()
	}

	return c.JSON(map[string]any{
		"authorization_servers":    []string{s.deps.AuthServerURL},
		"bearer_methods_supported": []string{"header"},
		"resource":                 resource,
		"scopes_supported":         []string{},
	})
}
