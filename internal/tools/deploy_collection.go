package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

type deployCollectionTool struct {
	orchestrator services.OrchestratorService
}

type DeployCollectionArguments struct {
	Name             string `json:"name" validate:"required"`
	Symbol           string `json:"symbol" validate:"required"`
	Description      string `json:"description"`
	MetadataURI      string `json:"metadata_uri" validate:"required"`
	ImageURI         string `json:"image_uri"`
	MaxSupply        int    `json:"max_supply" validate:"required"`
	MintPrice        string `json:"mint_price"`
	RoyaltyBps       int    `json:"royalty_bps"`
	RoyaltyRecipient string `json:"royalty_recipient"`
	OwnerAddress     string `json:"owner_address" validate:"required"`
	CollectionType   string `json:"collection_type"`
	IdempotencyKey   string `json:"idempotency_key"`
}

func NewDeployCollectionTool(orchestrator services.OrchestratorService) *deployCollectionTool {
	return &deployCollectionTool{
		orchestrator: orchestrator,
	}
}

func (t *deployCollectionTool) GetTool() mcp.Tool {
	tool := mcp.NewTool("deploy_collection",
		mcp.WithDescription("Deploy an NFT collection with one-time redemption codes. Generates max_supply codes, deploys the collection through the factory, transfers ownership to owner_address, registers the code hashes on-chain, stores the codes and deducts credits. Returns the plaintext codes. Repeating a call with the same idempotency_key resumes or replays the same deployment."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Collection name"),
		),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Collection symbol"),
		),
		mcp.WithString("description",
			mcp.Description("Collection description"),
		),
		mcp.WithString("metadata_uri",
			mcp.Required(),
			mcp.Description("Metadata location: a CID, an ipfs:// URI or a gateway URL"),
		),
		mcp.WithString("image_uri",
			mcp.Description("Collection image URI"),
		),
		mcp.WithNumber("max_supply",
			mcp.Required(),
			mcp.Description("Number of tokens and redemption codes (5 to 1000)"),
		),
		mcp.WithString("mint_price",
			mcp.Description("Mint price in ether (default 0)"),
		),
		mcp.WithNumber("royalty_bps",
			mcp.Description("Royalty in basis points (0 to 10000)"),
		),
		mcp.WithString("royalty_recipient",
			mcp.Description("Royalty recipient address. Defaults to owner_address"),
		),
		mcp.WithString("owner_address",
			mcp.Required(),
			mcp.Description("Wallet that will own the collection"),
		),
		mcp.WithString("collection_type",
			mcp.Description("erc1155 (default) or erc721"),
			mcp.Enum(string(chain.KindERC1155), string(chain.KindERC721)),
		),
		mcp.WithString("idempotency_key",
			mcp.Description("Client chosen key that identifies this deployment across retries"),
		),
	)

	return tool
}

func (t *deployCollectionTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := currentUser(ctx)
		if errResult != nil {
			return errResult, nil
		}

		var args DeployCollectionArguments
		if result, err := bindArguments(request, &args); result != nil || err != nil {
			return result, err
		}

		req := models.DeploymentRequest{
			Name:             args.Name,
			Symbol:           args.Symbol,
			Description:      args.Description,
			MetadataURI:      args.MetadataURI,
			ImageURI:         args.ImageURI,
			MaxSupply:        args.MaxSupply,
			MintPrice:        args.MintPrice,
			RoyaltyBps:       args.RoyaltyBps,
			RoyaltyRecipient: args.RoyaltyRecipient,
			OwnerAddress:     args.OwnerAddress,
			CollectionType:   chain.CollectionKind(args.CollectionType),
		}

		result, err := t.orchestrator.DeployCollectionWithCodes(ctx, user.Sub, args.IdempotencyKey, req)
		if err != nil {
			return errorResult("Deployment failed", err), nil
		}

		message := fmt.Sprintf("Collection deployed at %s with %d codes (status: %s)", result.CollectionAddress, len(result.Codes), result.Status)
		if result.Replayed {
			message = fmt.Sprintf("Collection %s was already deployed for this request (status: %s)", result.CollectionAddress, result.Status)
		}
		return jsonResult(message, result)
	}
}
