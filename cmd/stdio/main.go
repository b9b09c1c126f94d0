package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/joho/godotenv/autoload" // Automatically load .env file if present
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/config"
	"github.com/rxtech-lab/cardify-mcp/internal/mcp"
	"github.com/rxtech-lab/cardify-mcp/internal/server"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

// Build information (set via ldflags)
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

// configureServer wires the services and the MCP tools. Stdio mode has no
// HTTP surface; every tool call acts as cfg.MCPUserID.
func configureServer(cfg *config.Config, dbService services.DBService, client chain.Client, factories map[chain.CollectionKind]common.Address) (*mcp.MCPServer, error) {
	svc, err := server.Bootstrap(dbService.GetDB(), client, factories, cfg)
	if err != nil {
		return nil, err
	}
	return mcp.NewMCPServer(svc), nil
}

func main() {
	// Command line flags
	var showVersion = flag.Bool("version", false, "Show version information")
	var showHelp = flag.Bool("help", false, "Show help information")
	var enableLog = flag.Bool("log", false, "Enable logging output")
	flag.Parse()

	// stdout carries the MCP protocol, so logs go to stderr or nowhere
	log.SetOutput(os.Stderr)
	if !*enableLog {
		log.SetOutput(io.Discard)
	}

	if *showVersion {
		log.SetOutput(os.Stderr)
		log.Printf("Cardify MCP Server\n")
		log.Printf("Version: %s\n", Version)
		log.Printf("Commit: %s\n", CommitHash)
		log.Printf("Built: %s\n", BuildTime)
		return
	}

	if *showHelp {
		log.SetOutput(os.Stderr)
		log.Printf("Cardify MCP Server\n\n")
		log.Printf("Usage: %s [options]\n\n", os.Args[0])
		log.Printf("Options:\n")
		log.Printf("  --version    Show version information\n")
		log.Printf("  --help       Show this help message\n")
		log.Printf("  --log        Enable logging output\n\n")
		log.Printf("Description:\n")
		log.Printf("  Deploys NFT collections with one-time redemption codes.\n")
		log.Printf("  Provides 6 MCP tools over stdio acting as MCP_USER_ID.\n\n")
		log.Printf("Configuration is read from the environment and an optional .env file.\n")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatal("Invalid configuration:", err)
	}

	dbService, err := server.OpenDatabase(cfg)
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatal("Failed to initialize database:", err)
	}
	defer dbService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := server.DialChain(ctx, cfg)
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatal("Failed to connect to chain:", err)
	}
	defer client.Close()

	mcpServer, err := configureServer(cfg, dbService, client, server.FactoryAddresses(cfg))
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatal("Failed to configure MCP server:", err)
	}

	go mcpServer.GetServices().Orchestrator.RunReconciler(ctx, cfg.ReconcileInterval)

	// ServeStdio returns when stdin closes or on SIGINT/SIGTERM
	if err := mcpServer.StartStdioServer(cfg.MCPUserID); err != nil {
		log.SetOutput(os.Stderr)
		log.SetFlags(0)
		log.Printf("MCP server stopped: %v", err)
	}
}
