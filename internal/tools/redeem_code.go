package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

type redeemCodeTool struct {
	ledger services.LedgerService
}

type RedeemCodeArguments struct {
	CollectionAddress string `json:"collection_address" validate:"required"`
	Code              string `json:"code" validate:"required"`
	Redeemer          string `json:"redeemer"`
}

func NewRedeemCodeTool(ledger services.LedgerService) *redeemCodeTool {
	return &redeemCodeTool{
		ledger: ledger,
	}
}

func (t *redeemCodeTool) GetTool() mcp.Tool {
	tool := mcp.NewTool("redeem_code",
		mcp.WithDescription("Redeem a one-time code of a collection. Each code can be redeemed exactly once."),
		mcp.WithString("collection_address",
			mcp.Required(),
			mcp.Description("Address of the collection the code belongs to"),
		),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("The redemption code"),
		),
		mcp.WithString("redeemer",
			mcp.Description("Who redeemed the code. Defaults to the caller"),
		),
	)

	return tool
}

func (t *redeemCodeTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args RedeemCodeArguments
		if result, err := bindArguments(request, &args); result != nil || err != nil {
			return result, err
		}

		redeemer := args.Redeemer
		if user, ok := utils.GetAuthenticatedUser(ctx); ok && redeemer == "" {
			redeemer = user.Sub
		}

		result, err := t.ledger.Redeem(ctx, args.CollectionAddress, args.Code, redeemer)
		if err != nil {
			return errorResult("Redemption failed", err), nil
		}

		return jsonResult(fmt.Sprintf("Code %s redeemed", result.Code), result)
	}
}
