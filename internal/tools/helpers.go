package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

var argumentValidator = validator.New()

// currentUser returns the caller, or a tool error result when there is none
func currentUser(ctx context.Context) (*utils.AuthenticatedUser, *mcp.CallToolResult) {
	user, ok := utils.GetAuthenticatedUser(ctx)
	if !ok || user.Sub == "" {
		return nil, mcp.NewToolResultError("Authentication required")
	}
	return user, nil
}

// bindArguments decodes and validates the tool arguments into args
func bindArguments(request mcp.CallToolRequest, args interface{}) (*mcp.CallToolResult, error) {
	if err := request.BindArguments(args); err != nil {
		return nil, fmt.Errorf("failed to bind arguments: %w", err)
	}
	if err := argumentValidator.Struct(args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}
	return nil, nil
}

// errorResult formats err with its kind and code so the client can decide whether to retry
func errorResult(prefix string, err error) *mcp.CallToolResult {
	message := fmt.Sprintf("%s: %v", prefix, err)
	if code := apperrors.CodeOf(err); code != "" {
		message = fmt.Sprintf("%s: %v [kind=%s code=%s]", prefix, err, apperrors.KindOf(err), code)
	}

	var deployErr *services.DeploymentError
	if errors.As(err, &deployErr) {
		message += fmt.Sprintf(" [attempt=%s failed_step=%s retryable=%t", deployErr.AttemptID, deployErr.FailedStep, deployErr.Retryable)
		if deployErr.CollectionAddress != "" {
			message += " collection=" + deployErr.CollectionAddress
		}
		message += "]"
	}
	return mcp.NewToolResultError(message)
}

func jsonResult(message string, value interface{}) (*mcp.CallToolResult, error) {
	resultJSON, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message + ": "),
			mcp.NewTextContent(string(resultJSON)),
		},
	}, nil
}

// ownedCollection loads a collection the caller deployed
func ownedCollection(ctx context.Context, collections services.CollectionService, address, userID string) error {
	collection, err := collections.GetCollection(ctx, address)
	if err != nil {
		return err
	}
	if collection.UserID != userID {
		return apperrors.NotFound(apperrors.CodeCollectionNotFound, "collection not found")
	}
	return nil
}
