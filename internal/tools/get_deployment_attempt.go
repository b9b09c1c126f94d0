package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

type getDeploymentAttemptTool struct {
	orchestrator services.OrchestratorService
}

type GetDeploymentAttemptArguments struct {
	AttemptID string `json:"attempt_id" validate:"required"`
	Resume    bool   `json:"resume"`
}

type GetDeploymentAttemptResult struct {
	Attempt *models.DeploymentAttempt `json:"attempt"`
	Status  models.DeploymentStep     `json:"status"`
	Codes   []string                  `json:"codes,omitempty"`
}

func NewGetDeploymentAttemptTool(orchestrator services.OrchestratorService) *getDeploymentAttemptTool {
	return &getDeploymentAttemptTool{
		orchestrator: orchestrator,
	}
}

func (t *getDeploymentAttemptTool) GetTool() mcp.Tool {
	tool := mcp.NewTool("get_deployment_attempt",
		mcp.WithDescription("Show the progress of a collection deployment: the last completed step, the failed step and error if any, and the transaction hashes. Set resume to true to continue a failed or interrupted attempt from where it stopped."),
		mcp.WithString("attempt_id",
			mcp.Required(),
			mcp.Description("Deployment attempt ID returned by deploy_collection"),
		),
		mcp.WithBoolean("resume",
			mcp.Description("Resume the attempt if it is not completed"),
		),
	)

	return tool
}

func (t *getDeploymentAttemptTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, errResult := currentUser(ctx)
		if errResult != nil {
			return errResult, nil
		}

		var args GetDeploymentAttemptArguments
		if result, err := bindArguments(request, &args); result != nil || err != nil {
			return result, err
		}

		attempt, err := t.orchestrator.GetAttempt(ctx, args.AttemptID)
		if err == nil && attempt.UserID != user.Sub {
			err = apperrors.NotFound(apperrors.CodeAttemptNotFound, "deployment attempt not found")
		}
		if err != nil {
			return errorResult("Deployment attempt not found", err), nil
		}

		if args.Resume && attempt.Step != models.StepCompleted {
			if _, err := t.orchestrator.Resume(ctx, attempt.ID); err != nil {
				return errorResult("Resume failed", err), nil
			}
			if attempt, err = t.orchestrator.GetAttempt(ctx, attempt.ID); err != nil {
				return errorResult("Deployment attempt not found", err), nil
			}
		}

		result := GetDeploymentAttemptResult{
			Attempt: attempt,
			Status:  attempt.Status(),
		}
		if attempt.Step.Reached(models.StepContractDeployed) {
			result.Codes = []string(attempt.Codes)
		}

		return jsonResult(fmt.Sprintf("Deployment attempt %s is %s", attempt.ID, result.Status), result)
	}
}
