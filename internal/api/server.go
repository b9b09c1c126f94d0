package api

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/cardify-mcp/internal/api/middleware"
	"github.com/rxtech-lab/cardify-mcp/internal/mcp"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

// Dependencies are the services the HTTP API is built on. Storage and Gatherer
// are optional.
type Dependencies struct {
	Orchestrator  services.OrchestratorService
	Ledger        services.LedgerService
	Collections   services.CollectionService
	Credits       services.CreditService
	Storage       services.StorageService
	Gatherer      prometheus.Gatherer
	Authenticator *utils.JwtAuthenticator
	// ResourceID is the expected token audience
	ResourceID string
	// PublicURL and AuthServerURL feed the OAuth protected resource metadata
	PublicURL     string
	AuthServerURL string
}

type APIServer struct {
	app       *fiber.App
	deps      Dependencies
	mcpServer *mcp.MCPServer
	port      int
}

func NewAPIServer(deps Dependencies) *APIServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		BodyLimit:             20 * 1024 * 1024,
	})

	// Add middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	server := &APIServer{
		app:  app,
		deps: deps,
	}
	server.setupRoutes()
	return server
}

func (s *APIServer) authConfig(optional bool) middleware.AuthConfig {
	cfg := middleware.AuthConfig{
		ResourceID:       s.deps.ResourceID,
		JWTAuthenticator: s.deps.Authenticator,
		Optional:         optional,
		SkipWellKnown:    true,
	}
	if s.deps.PublicURL != "" {
		cfg.ResourceMetadataURL = s.deps.PublicURL + "/.well-known/oauth-protected-resource"
	}
	return cfg
}

func (s *APIServer) setupRoutes() {
	requireAuth := middleware.AuthMiddleware(s.authConfig(false))
	optionalAuth := middleware.AuthMiddleware(s.authConfig(true))

	api := s.app.Group("/api")

	// Collections
	api.Post("/deploy-collection", requireAuth, s.handleDeployCollection)
	api.Get("/collections", optionalAuth, s.handleListCollections)
	api.Get("/collections/:address", optionalAuth, s.handleGetCollection)
	api.Get("/collections/:address/codes", requireAuth, s.handleListCodes)
	api.Put("/collections/:address/activate", requireAuth, s.handleActivateCollection)

	// Redemption
	api.Post("/redeem-code", optionalAuth, s.handleRedeemCode)

	// Deployment attempts
	api.Get("/deployments/:id", requireAuth, s.handleGetDeployment)

	// Credits
	api.Get("/credits", requireAuth, s.handleGetCredits)

	// Content-addressed uploads
	api.Post("/uploads", requireAuth, s.handleUploadFile)
	api.Post("/uploads/metadata", requireAuth, s.handleUploadMetadata)

	// OAuth discovery
	s.app.Get("/.well-known/oauth-protected-resource", s.handleOAuthProtectedResource)

	// Metrics
	if s.deps.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Health check
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
}

// EnableStreamableHttp mounts the MCP server on /mcp behind authentication.
// SetMCPServer must be called first.
func (s *APIServer) EnableStreamableHttp() {
	if s.mcpServer == nil {
		log.Println("[api] MCP server not set, /mcp is disabled")
		return
	}

	streamable := server.NewStreamableHTTPServer(s.mcpServer.GetServer(),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			// fiber locals are visible through the request context of adapted handlers
			if user, ok := r.Context().Value(middleware.UserLocalsKey).(*utils.AuthenticatedUser); ok {
				return utils.WithAuthenticatedUser(ctx, user)
			}
			return ctx
		}),
	)

	handler := adaptor.HTTPHandler(streamable)
	s.app.All("/mcp", middleware.AuthMiddleware(s.authConfig(false)), handler)
	s.app.All("/mcp/*", middleware.AuthMiddleware(s.authConfig(false)), handler)
}

// Start starts the server on port, or on a random available port when port is nil or 0
func (s *APIServer) Start(port *int) (int, error) {
	listenPort := 0
	if port != nil {
		listenPort = *port
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", listenPort))
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	go func() {
		if err := s.app.Listener(listener); err != nil {
			log.Printf("[api] server stopped: %v", err)
		}
	}()

	return s.port, nil
}

func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

func (s *APIServer) GetPort() int {
	return s.port
}

func (s *APIServer) GetFiberApp() *fiber.App {
	return s.app
}

// SetMCPServer sets the MCP server instance served by EnableStreamableHttp
func (s *APIServer) SetMCPServer(mcpServer *mcp.MCPServer) {
	s.mcpServer = mcpServer
}

// GetMCPServer returns the MCP server instance
func (s *APIServer) GetMCPServer() *mcp.MCPServer {
	return s.mcpServer
}
