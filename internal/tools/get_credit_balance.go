package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

type getCreditBalanceTool struct {
	credits services.CreditService
}

type GetCreditBalanceResult struct {
	Balance int64 `json:"balance"`
}

func NewGetCreditBalanceTool(credits services.CreditService) *getCreditBalanceTool {
	return &getCreditBalanceTool{
		credits: credits,
	}
}

func (t *getCreditBalanceTool) GetTool() mcp.Tool {
	tool := mcp.NewTool("get_credit_balance",
		mcp.WithDescription("Show how many credits you have left for collection deployments."),
	)

	return tool
}

func (t *getCreditBalanceTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := currentUser(ctx)
		if errResult != nil {
			return errResult, nil
		}

		balance, err := t.credits.GetBalance(ctx, user.Sub)
		if err != nil {
			return errorResult("Error retrieving balance", err), nil
		}

		return jsonResult(fmt.Sprintf("You have %d credits", balance), GetCreditBalanceResult{Balance: balance})
	}
}
