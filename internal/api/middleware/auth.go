package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

// UserLocalsKey is the fiber locals key the authenticated user is stored under.
// It is a string so handlers mounted through the net/http adaptor can read it
// from the request context.
const UserLocalsKey = "user"

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	// ResourceID is the expected audience for token validation
	ResourceID string
	// JWTAuthenticator validates bearer tokens
	JWTAuthenticator *utils.JwtAuthenticator
	// Optional lets requests without a token through. A token that is present
	// must still be valid.
	Optional bool
	// ResourceMetadataURL is advertised in the WWW-Authenticate header
	ResourceMetadataURL string
	// SkipWellKnown determines if .well-known endpoints should bypass auth
	SkipWellKnown bool
}

// DefaultAuthConfig provides default configuration
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		SkipWellKnown: true,
	}
}

// AuthMiddleware returns a Fiber middleware for Bearer token authentication
func AuthMiddleware(config ...AuthConfig) fiber.Handler {
	cfg := DefaultAuthConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *fiber.Ctx) error {
		// Allow public access to well-known endpoints for metadata discovery
		if cfg.SkipWellKnown && strings.Contains(c.Path(), ".well-known") {
			return c.Next()
		}

		// Extract Bearer token from Authorization header
		authHeader := c.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}

		if token == "" {
			if cfg.Optional {
				return c.Next()
			}
			if cfg.ResourceMetadataURL != "" {
				c.Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="OAuth", resource_metadata="%s"`, cfg.ResourceMetadataURL))
			} else {
				c.Set("WWW-Authenticate", `Bearer realm="Access to protected resource"`)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Missing or invalid Bearer token",
				"kind":    "authorization_error",
				"code":    "Unauthenticated",
			})
		}

		if cfg.JWTAuthenticator == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Authentication is not configured",
				"kind":    "authorization_error",
				"code":    "Unauthenticated",
			})
		}

		user, err := cfg.JWTAuthenticator.ValidateToken(token)
		if err != nil {
			c.Set("WWW-Authenticate", `Bearer realm="Access to protected resource"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid token",
				"details": err.Error(),
				"kind":    "authorization_error",
				"code":    "Unauthenticated",
			})
		}

		// Check if user has required audience (if specified)
		if cfg.ResourceID != "" {
			hasValidAudience := false
			for _, userAud := range user.Aud {
				if userAud == cfg.ResourceID {
					hasValidAudience = true
					break
				}
			}
			if !hasValidAudience {
				c.Set("WWW-Authenticate", `Bearer realm="Access to protected resource"`)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "Invalid audience",
					"kind":    "authorization_error",
					"code":    "Unauthenticated",
				})
			}
		}

		if user.Sub == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Token has no subject",
				"kind":    "authorization_error",
				"code":    "Unauthenticated",
			})
		}

		// Store authenticated user in both the fiber and the request context
		c.Locals(UserLocalsKey, user)
		c.SetUserContext(utils.WithAuthenticatedUser(c.UserContext(), user))

		return c.Next()
	}
}

// GetAuthenticatedUser retrieves the authenticated user from Fiber context
// Returns nil if no user is found or if user is not of correct type
func GetAuthenticatedUser(c *fiber.Ctx) *utils.AuthenticatedUser {
	userInterface := c.Locals(UserLocalsKey)
	if userInterface == nil {
		return nil
	}

	user, ok := userInterface.(*utils.AuthenticatedUser)
	if !ok {
		return nil
	}

	return user
}
