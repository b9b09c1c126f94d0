package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rxtech-lab/cardify-mcp/internal/api"
	"github.com/rxtech-lab/cardify-mcp/internal/config"
	"github.com/rxtech-lab/cardify-mcp/internal/mcp"
	"github.com/rxtech-lab/cardify-mcp/internal/server"
)

var (
	apiServer *api.APIServer
	initOnce  sync.Once
	initErr   error
)

// Handler is the main Vercel function handler
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		initErr = initializeAPIServer()
	})
	if initErr != nil {
		log.Printf("Failed to initialize API server: %v", initErr)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	adaptor.FiberApp(apiServer.GetFiberApp())(w, r)
}

// initializeAPIServer builds the same API as cmd/streamable-http. Background
// reconciliation does not run here; use cardifyctl reconcile on a schedule.
func initializeAPIServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// only /tmp is writable on Vercel
	if cfg.DatabaseDriver == config.DriverSqlite && os.Getenv("VERCEL") == "1" {
		cfg.SqlitePath = "/tmp/cardify.db"
	}

	dbService, err := server.OpenDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	client, err := server.DialChain(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to chain: %w", err)
	}

	svc, err := server.Bootstrap(dbService.GetDB(), client, server.FactoryAddresses(cfg), cfg)
	if err != nil {
		return err
	}

	authenticator, err := server.NewAuthenticator(cfg)
	if err != nil {
		return err
	}

	apiServer = api.NewAPIServer(api.Dependencies{
		Orchestrator:  svc.Orchestrator,
		Ledger:        svc.Ledger,
		Collections:   svc.Collections,
		Credits:       svc.Credits,
		Storage:       svc.Storage,
		Gatherer:      svc.Registry,
		Authenticator: authenticator,
		ResourceID:    cfg.AuthResourceID,
		PublicURL:     cfg.PublicURL,
		AuthServerURL: cfg.AuthServerURL,
	})
	apiServer.SetMCPServer(mcp.NewMCPServer(svc))
	apiServer.EnableStreamableHttp()

	apiServer.GetFiberApp().Get("/", func(c *fiber.Ctx) error {
		return c.JSON(map[string]interface{}{
			"message": "Cardify MCP API",
			"status":  "running",
			"version": "1.0.0",
		})
	})

	return nil
}
