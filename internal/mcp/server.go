package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	cardify "github.com/rxtech-lab/cardify-mcp/internal/server"
	"github.com/rxtech-lab/cardify-mcp/internal/tools"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

type MCPServer struct {
	server   *server.MCPServer
	services *cardify.Services
}

func NewMCPServer(svc *cardify.Services) *MCPServer {
	mcpServer := &MCPServer{
		services: svc,
	}
	mcpServer.InitializeTools(svc)
	return mcpServer
}

func (s *MCPServer) InitializeTools(svc *cardify.Services) {
	srv := server.NewMCPServer(
		"Cardify MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv.AddPrompt(mcp.NewPrompt("cardify-usage",
		mcp.WithPromptDescription("Instructions and guidance for using Cardify MCP tools"),
		mcp.WithArgument("tool_category",
			mcp.ArgumentDescription("Category of tools to get instructions for (collections, redemption, credits, or all)"),
			mcp.RequiredArgument(),
		),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		category := request.Params.Arguments["tool_category"]
		if category == "" {
			return nil, fmt.Errorf("tool_category is required")
		}

		instructions := getToolInstructions(category)

		return mcp.NewGetPromptResult(
			fmt.Sprintf("Cardify MCP Tools - %s", category),
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(
					mcp.RoleUser,
					mcp.NewTextContent(instructions),
				),
			},
		), nil
	})

	// Collection tools
	deployCollectionTool := tools.NewDeployCollectionTool(svc.Orchestrator)
	srv.AddTool(deployCollectionTool.GetTool(), deployCollectionTool.GetHandler())

	getDeploymentAttemptTool := tools.NewGetDeploymentAttemptTool(svc.Orchestrator)
	srv.AddTool(getDeploymentAttemptTool.GetTool(), getDeploymentAttemptTool.GetHandler())

	listCollectionCodesTool := tools.NewListCollectionCodesTool(svc.Collections, svc.Ledger)
	srv.AddTool(listCollectionCodesTool.GetTool(), listCollectionCodesTool.GetHandler())

	verifyCollectionCodesTool := tools.NewVerifyCollectionCodesTool(svc.Collections, svc.Verifier)
	srv.AddTool(verifyCollectionCodesTool.GetTool(), verifyCollectionCodesTool.GetHandler())

	// Redemption tools
	redeemCodeTool := tools.NewRedeemCodeTool(svc.Ledger)
	srv.AddTool(redeemCodeTool.GetTool(), redeemCodeTool.GetHandler())

	// Credit tools
	getCreditBalanceTool := tools.NewGetCreditBalanceTool(svc.Credits)
	srv.AddTool(getCreditBalanceTool.GetTool(), getCreditBalanceTool.GetHandler())

	s.server = srv
}

func getToolInstructions(category string) string {
	switch category {
	case "collections":
		return `Collection Tools:

1. deploy_collection - Deploy an NFT collection with one-time redemption codes
   Usage: Provide name, symbol, metadata_uri, max_supply (5 to 1000) and owner_address.
   The response contains the plaintext codes. They are only returned to the creator.
   Pass idempotency_key to make retries safe.

2. get_deployment_attempt - Inspect a deployment attempt
   Usage: Use the attempt id from a failed deploy_collection call. Set resume=true
   to continue a retryable attempt from its last completed step.

3. list_collection_codes - List the codes of a collection you created
   Usage: Optionally filter by used=true or used=false

4. verify_collection_codes - Check every stored code against the on-chain registry
   Usage: Reports codes whose commitment is missing or does not match`

	case "redemption":
		return `Redemption Tools:

1. redeem_code - Consume a redemption code
   Usage: Provide collection_address and code. Codes are case-insensitive.
   A code can be redeemed exactly once. Unknown and used codes return the same error.`

	case "credits":
		return `Credit Tools:

1. get_credit_balance - Show your credit balance
   Usage: Each deployment deducts credits once, after the codes are stored`

	case "all":
		return `Cardify MCP Tools Overview:

This MCP server provides 6 tools for issuing NFT collections backed by one-time redemption codes:

COLLECTIONS (4 tools):
- deploy_collection: Deploy a collection and generate its codes
- get_deployment_attempt: Inspect or resume a deployment
- list_collection_codes: List a collection's codes
- verify_collection_codes: Check codes against the chain

REDEMPTION (1 tool):
- redeem_code: Redeem a code once

CREDITS (1 tool):
- get_credit_balance: Show your credit balance

Only code hashes are written on-chain. Plaintext codes never leave the server
except in the deploy_collection response and to the collection creator.`

	default:
		return `Invalid category. Available categories: collections, redemption, credits, all`
	}
}

// StartStdioServer serves MCP over stdin/stdout, acting as userID for every call
func (s *MCPServer) StartStdioServer(userID string) error {
	return server.ServeStdio(s.server, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return utils.WithAuthenticatedUser(ctx, &utils.AuthenticatedUser{Sub: userID})
	}))
}

// GetServer returns the underlying MCP server
func (s *MCPServer) GetServer() *server.MCPServer {
	return s.server
}

// GetServices returns the services the tools are built on
func (s *MCPServer) GetServices() *cardify.Services {
	return s.services
}
