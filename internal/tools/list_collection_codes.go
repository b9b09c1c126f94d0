package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

type listCollectionCodesTool struct {
	collections services.CollectionService
	ledger      services.LedgerService
}

type ListCollectionCodesArguments struct {
	CollectionAddress string `json:"collection_address" validate:"required"`
	Used              *bool  `json:"used"`
}

type ListCollectionCodesResult struct {
	CollectionAddress string               `json:"collection_address"`
	Total             int64                `json:"total"`
	Used              int64                `json:"used"`
	Codes             []models.CodeSummary `json:"codes"`
}

func NewListCollectionCodesTool(collections services.CollectionService, ledger services.LedgerService) *listCollectionCodesTool {
	return &listCollectionCodesTool{
		collections: collections,
		ledger:      ledger,
	}
}

func (t *listCollectionCodesTool) GetTool() mcp.Tool {
	tool := mcp.NewTool("list_collection_codes",
		mcp.WithDescription("List the redemption codes of a collection you deployed, newest first, with their used state."),
		mcp.WithString("collection_address",
			mcp.Required(),
			mcp.Description("Address of the collection"),
		),
		mcp.WithBoolean("used",
			mcp.Description("Only return used (true) or unused (false) codes. Leave empty for all codes"),
		),
	)

	return tool
}

func (t *listCollectionCodesTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := currentUser(ctx)
		if errResult != nil {
			return errResult, nil
		}

		var args ListCollectionCodesArguments
		if result, err := bindArguments(request, &args); result != nil || err != nil {
			return result, err
		}

		if err := ownedCollection(ctx, t.collections, args.CollectionAddress, user.Sub); err != nil {
			return errorResult("Collection not found", err), nil
		}

		rows, err := t.ledger.ListCodes(ctx, args.CollectionAddress, args.Used)
		if err != nil {
			return errorResult("Error retrieving codes", err), nil
		}
		counts, err := t.ledger.CountCodes(ctx, args.CollectionAddress)
		if err != nil {
			return errorResult("Error counting codes", err), nil
		}

		result := ListCollectionCodesResult{
			CollectionAddress: args.CollectionAddress,
			Total:             counts.Total,
			Used:              counts.Used,
			Codes:             make([]models.CodeSummary, 0, len(rows)),
		}
		for _, row := range rows {
			result.Codes = append(result.Codes, row.Summary())
		}

		return jsonResult(fmt.Sprintf("Found %d codes (%d of %d used)", len(result.Codes), counts.Used, counts.Total), result)
	}
}
