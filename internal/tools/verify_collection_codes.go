package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

type verifyCollectionCodesTool struct {
	collections services.CollectionService
	verifier    services.VerifierService
}

type VerifyCollectionCodesArguments struct {
	CollectionAddress string `json:"collection_address" validate:"required"`
}

func NewVerifyCollectionCodesTool(collections services.CollectionService, verifier services.VerifierService) *verifyCollectionCodesTool {
	return &verifyCollectionCodesTool{
		collections: collections,
		verifier:    verifier,
	}
}

func (t *verifyCollectionCodesTool) GetTool() mcp.Tool {
	tool := mcp.NewTool("verify_collection_codes",
		mcp.WithDescription("Check every stored code of a collection you deployed against the contract: the stored hash must match the code and the hash must be registered on-chain."),
		mcp.WithString("collection_address",
			mcp.Required(),
			mcp.Description("Address of the collection"),
		),
	)

	return tool
}

func (t *verifyCollectionCodesTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := currentUser(ctx)
		if errResult != nil {
			return errResult, nil
		}

		var args VerifyCollectionCodesArguments
		if result, err := bindArguments(request, &args); result != nil || err != nil {
			return result, err
		}

		if err := ownedCollection(ctx, t.collections, args.CollectionAddress, user.Sub); err != nil {
			return errorResult("Collection not found", err), nil
		}

		report, err := t.verifier.VerifyCollection(ctx, args.CollectionAddress)
		if err != nil {
			return errorResult("Verification failed", err), nil
		}

		message := fmt.Sprintf("All %d codes are registered on-chain", report.Total)
		if !report.OK() {
			message = fmt.Sprintf("%d of %d codes failed verification", len(report.Issues), report.Total)
		}
		return jsonResult(message, report)
	}
}
