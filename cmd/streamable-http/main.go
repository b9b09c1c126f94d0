package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/joho/godotenv/autoload" // Automatically load .env file if present
	"github.com/rxtech-lab/cardify-mcp/internal/api"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/config"
	"github.com/rxtech-lab/cardify-mcp/internal/mcp"
	"github.com/rxtech-lab/cardify-mcp/internal/server"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

// configureAndStartServer wires the services, the REST API and the MCP endpoint
// and starts listening on port (0 picks a free port)
func configureAndStartServer(cfg *config.Config, dbService services.DBService, client chain.Client, factories map[chain.CollectionKind]common.Address, port int) (*api.APIServer, *server.Services, int, error) {
	svc, err := server.Bootstrap(dbService.GetDB(), client, factories, cfg)
	if err != nil {
		return nil, nil, 0, err
	}

	authenticator, err := server.NewAuthenticator(cfg)
	if err != nil {
		return nil, nil, 0, err
	}
	if authenticator == nil {
		log.Println("[server] neither JWKS_URI nor JWT_SECRET is set, authenticated routes will reject every request")
	}

	apiServer := api.NewAPIServer(api.Dependencies{
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

	var portPtr *int
	if port != 0 {
		portPtr = &port
	}
	startedPort, err := apiServer.Start(portPtr)
	if err != nil {
		return nil, nil, 0, err
	}
	return apiServer, svc, startedPort, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	dbService, err := server.OpenDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database service:", err)
	}
	defer dbService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := server.DialChain(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to chain:", err)
	}
	defer client.Close()

	apiServer, svc, startedPort, err := configureAndStartServer(cfg, dbService, client, server.FactoryAddresses(cfg), cfg.Port)
	if err != nil {
		log.Fatal("Failed to start API server:", err)
	}
	log.Printf("API server started on port %d\n", startedPort)

	go svc.Orchestrator.RunReconciler(ctx, cfg.ReconcileInterval)

	// Set up graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("\nShutting down server...")
	cancel()

	// Shutdown API server
	if err := apiServer.Shutdown(); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	log.Println("Server shut down successfully")
}
